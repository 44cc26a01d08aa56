// Package notifier описывает порт внешнего канала доставки уведомлений.
package notifier

import (
	"context"
	"errors"
)

// ErrNoDestination у подписчика нет адреса в канале.
var ErrNoDestination = errors.New("notifier: empty destination")

// Payload параметры шаблонного сообщения о новом запросе рядом.
type Payload struct {
	CategoryLabel string
	Title         string
	Distance      string
	PosterName    string
	Price         string
}

// Params возвращает ровно пять параметров шаблона в фиксированном порядке.
func (p Payload) Params() []string {
	return []string{p.CategoryLabel, p.Title, p.Distance, p.PosterName, p.Price}
}

// Result итог успешной отправки.
type Result struct {
	ExternalID string
}

// Notifier отправляет сообщение во внешний канал. Одна попытка на вызов, без повторов.
type Notifier interface {
	Send(ctx context.Context, payload Payload, destination string) (Result, error)
}
