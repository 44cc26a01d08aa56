// Package email доставляет уведомления о запросах помощи письмом через SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/smtp"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
)

// Notifier отправляет письмо по шаблону нового запроса.
type Notifier struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает почтовый канал поверх SMTP транспорта.
func New(transport smtp.TransportInterface, log *slog.Logger) *Notifier {
	return &Notifier{transport: transport, log: log}
}

// headerLine переводы строк в значении заголовка начали бы новый заголовок.
var headerLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// subject кодируется по RFC 2047, если содержит не-ASCII символы.
func subject(p notifier.Payload) string {
	return mime.QEncoding.Encode("utf-8", headerLine.Replace(fmt.Sprintf("[%s] %s", p.CategoryLabel, p.Title)))
}

func body(p notifier.Payload) string {
	return fmt.Sprintf("%s needs help %s from you.\n\n%s: %s\nOffer: %s\n\nOpen the app to respond.",
		p.PosterName, p.Distance, p.CategoryLabel, p.Title, p.Price)
}

// Send отправляет одно письмо, идентификатор Message-ID используется как внешний.
func (n *Notifier) Send(ctx context.Context, p notifier.Payload, destination string) (notifier.Result, error) {
	const op = "email.Send"
	if destination == "" {
		return notifier.Result{}, notifier.ErrNoDestination
	}
	log := n.log.With(sl.Op(op))

	from := n.transport.GetSMTPUser()
	messageID := uuid.NewString()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + headerLine.Replace(destination),
		"Subject: " + subject(p),
		"Message-ID: <" + messageID + ">",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body(p),
	}, "\r\n")

	client, err := n.transport.Connect(ctx)
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: connect: %w", op, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Debug("failed to close SMTP client", sl.Err(err))
		}
	}()

	if err := client.Mail(from); err != nil {
		return notifier.Result{}, fmt.Errorf("%s: mail from: %w", op, err)
	}
	if err := client.Rcpt(destination); err != nil {
		return notifier.Result{}, fmt.Errorf("%s: rcpt to: %w", op, err)
	}
	wc, err := client.Data()
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: data: %w", op, err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return notifier.Result{}, fmt.Errorf("%s: write body: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		return notifier.Result{}, fmt.Errorf("%s: close data: %w", op, err)
	}
	if err := client.Quit(); err != nil {
		log.Warn("failed to quit SMTP client", sl.Err(err))
	}

	return notifier.Result{ExternalID: messageID}, nil
}
