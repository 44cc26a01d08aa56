// Package whatsapp отправляет шаблонные сообщения через WhatsApp Business Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
)

// Client HTTP-клиент Cloud API.
type Client struct {
	cfg        config.WhatsApp
	httpClient *http.Client
}

// NewClient создаёт клиент. Таймаут запроса задается контекстом вызывающего.
func NewClient(cfg config.WhatsApp, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type textParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []textParam `json:"parameters"`
}

type templateMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Template         struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []component `json:"components"`
	} `json:"template"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) buildMessage(p notifier.Payload, to string) templateMessage {
	var msg templateMessage
	msg.MessagingProduct = "whatsapp"
	msg.To = strings.TrimPrefix(to, "+")
	msg.Type = "template"
	msg.Template.Name = c.cfg.TemplateName
	msg.Template.Language.Code = c.cfg.Language

	params := make([]textParam, 0, 5)
	for _, v := range p.Params() {
		params = append(params, textParam{Type: "text", Text: v})
	}
	msg.Template.Components = []component{{Type: "body", Parameters: params}}
	return msg
}

// Send отправляет шаблон new_help_request на номер destination.
func (c *Client) Send(ctx context.Context, p notifier.Payload, destination string) (notifier.Result, error) {
	const op = "whatsapp.Send"
	if destination == "" {
		return notifier.Result{}, notifier.ErrNoDestination
	}

	body, err := json.Marshal(c.buildMessage(p, destination))
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	url := strings.TrimRight(c.cfg.APIURL, "/") + "/" + c.cfg.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return notifier.Result{}, fmt.Errorf("%s: read body: %w", op, err)
	}
	var out sendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return notifier.Result{}, fmt.Errorf("%s: decode body: %w", op, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return notifier.Result{}, fmt.Errorf("%s: http status %d: %s (code %d)", op, resp.StatusCode, out.Error.Message, out.Error.Code)
		}
		return notifier.Result{}, fmt.Errorf("%s: http status %d", op, resp.StatusCode)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return notifier.Result{}, fmt.Errorf("%s: response without message id", op)
	}
	return notifier.Result{ExternalID: out.Messages[0].ID}, nil
}
