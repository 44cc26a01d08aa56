package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
)

// ErrDrop обработчик отказался от сообщения навсегда: оно подтверждается
// отрицательно без возврата в очередь.
var ErrDrop = errors.New("drop message")

// ConsumerMessage запускает потребителя очереди. Одновременно обрабатывается не более
// concurrency сообщений. Ошибка обработчика возвращает сообщение в очередь,
// кроме ошибок, обернувших ErrDrop. wg учитывает цикл чтения и каждый запущенный
// обработчик: после отмены ctx wg.Wait дожидается подтверждения всех взятых сообщений.
func ConsumerMessage(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, concurrency int, wg *sync.WaitGroup, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				wg.Add(1)
				go func(d amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()
					if err := handler(d.Body); err != nil {
						requeue := !errors.Is(err, ErrDrop)
						log.Warn("message handling failed",
							slog.String("queue", queueName),
							slog.Bool("requeue", requeue),
							sl.Err(err),
						)
						if nackErr := d.Nack(false, requeue); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := d.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
