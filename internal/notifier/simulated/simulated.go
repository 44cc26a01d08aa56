// Package simulated реализует канал доставки без внешних вызовов для локального запуска и тестов.
package simulated

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
)

// ErrSimulatedFailure отказ, выбранный по доле неуспешных отправок.
var ErrSimulatedFailure = errors.New("simulated delivery failure")

// Notifier детерминированно решает исход по адресу получателя.
type Notifier struct {
	failureRate float64
	log         *slog.Logger
}

// New создает канал с долей отказов failureRate в диапазоне [0, 1].
func New(failureRate float64, log *slog.Logger) *Notifier {
	return &Notifier{failureRate: failureRate, log: log}
}

func bucket(destination string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(destination))
	return float64(h.Sum32()%1000) / 1000
}

// Send выдает внешний идентификатор вида sim-<uuid> либо ErrSimulatedFailure.
func (n *Notifier) Send(ctx context.Context, p notifier.Payload, destination string) (notifier.Result, error) {
	if err := ctx.Err(); err != nil {
		return notifier.Result{}, err
	}
	if destination == "" {
		return notifier.Result{}, notifier.ErrNoDestination
	}
	if bucket(destination) < n.failureRate {
		return notifier.Result{}, ErrSimulatedFailure
	}
	id := "sim-" + uuid.NewString()
	n.log.Debug("simulated send",
		slog.String("destination", destination),
		slog.String("external_id", id),
		slog.Any("params", p.Params()),
	)
	return notifier.Result{ExternalID: id}, nil
}
