package rabbitmq

// ExchangeHelpers exchange событий подбора помощников.
const ExchangeHelpers = "helpers"

// Ключи маршрутизации.
const (
	RoutingRequestPosted  = "request.posted"
	RoutingDispatchReport = "dispatch.report"
	RoutingProfileUpdated = "subscriber.updated"
)

// Очереди.
const (
	QueueRequestPosted  = "request.posted"
	QueueDispatchReport = "dispatch.report"
	QueueProfileUpdated = "subscriber.updated"
)

// QueueConfig очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetDispatcherQueues очереди, которые слушает и наполняет рассыльщик.
func GetDispatcherQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueRequestPosted, RoutingKey: RoutingRequestPosted},
		{QueueName: QueueDispatchReport, RoutingKey: RoutingDispatchReport},
		{QueueName: QueueProfileUpdated, RoutingKey: RoutingProfileUpdated},
	}
}
