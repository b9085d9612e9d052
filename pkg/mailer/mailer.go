// Package mailer delivers transactional email through SendGrid or, in development, the log.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/go-resty/resty/v2"
)

// Message is a plain text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a SendGrid mailer when an API key is configured and a log mailer otherwise.
func New(cfg config.SendgridConfig, logg *logger.Logger) Mailer {
	if !cfg.Enabled() {
		return NewLogMailer(logg, cfg.DefaultFrom)
	}
	return NewSendgridMailer(cfg, nil)
}

// SendgridMailer posts to the SendGrid v3 mail/send endpoint.
type SendgridMailer struct {
	client *resty.Client
	from   string
}

// NewSendgridMailer builds a SendGrid client. A nil client gets a fresh resty client.
func NewSendgridMailer(cfg config.SendgridConfig, client *resty.Client) *SendgridMailer {
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	client.
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &SendgridMailer{client: client, from: cfg.DefaultFrom}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send delivers msg. Any non-2xx answer is an error.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}
	from := msg.From
	if from == "" {
		from = m.from
	}

	to := make([]sgAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, sgAddress{Email: addr})
	}

	var apiErr sgErrorResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(sgRequest{
			Personalizations: []sgPersonalization{{To: to}},
			From:             sgAddress{Email: from},
			Subject:          msg.Subject,
			Content:          []sgContent{{Type: "text/plain", Value: msg.Body}},
		}).
		SetError(&apiErr).
		Post("/v3/mail/send")
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.IsError() {
		if len(apiErr.Errors) > 0 {
			return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode(), apiErr.Errors[0].Message)
		}
		return fmt.Errorf("sendgrid status %d", resp.StatusCode())
	}
	return nil
}

// LogMailer writes messages to the structured log instead of sending them.
type LogMailer struct {
	logg *logger.Logger
	from string
}

func NewLogMailer(logg *logger.Logger, from string) *LogMailer {
	return &LogMailer{logg: logg, from: from}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}
	if m.logg == nil {
		return nil
	}
	from := msg.From
	if from == "" {
		from = m.from
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"mail_from":    from,
		"mail_to":      strings.Join(msg.To, ","),
		"mail_subject": msg.Subject,
		"mail_body":    msg.Body,
	})
	m.logg.Info(ctx, "mail.logged")
	return nil
}
