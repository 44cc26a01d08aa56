package models

import "time"

// DeliveryStatus статус попытки доставки уведомления.
type DeliveryStatus string

// Статусы доставки.
const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending: {DeliverySent, DeliveryFailed},
	DeliverySent:    {DeliveryDelivered},
}

// CanTransition сообщает, допустим ли переход из s в next.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CountsTowardCap сообщает, учитывается ли запись в дневном лимите.
func (s DeliveryStatus) CountsTowardCap() bool {
	return s != DeliveryFailed
}

// DeliveryRecord одна попытка отправки уведомления подписчику по запросу.
type DeliveryRecord struct {
	ID           string         `json:"id"`
	SubscriberID string         `json:"subscriber_id"`
	RequestID    string         `json:"request_id"`
	Status       DeliveryStatus `json:"status"`
	ExternalID   *string        `json:"external_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	ErrorReason  *string        `json:"error_reason,omitempty"`
}

// ReceiptRequest уведомление канала о доставке сообщения.
type ReceiptRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
}
