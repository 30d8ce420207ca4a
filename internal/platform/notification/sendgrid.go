package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// SendGridConfig holds the v3 mail API settings.
type SendGridConfig struct {
	BaseURL   string
	APIKey    string
	FromEmail string
	FromName  string
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To      []sendGridAddress `json:"to"`
	Subject string            `json:"subject"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

type sendGridMail struct {
	From             sendGridAddress           `json:"from"`
	Personalizations []sendGridPersonalization `json:"personalizations"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
}

type sendGridError struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// SendGridSender delivers email through the SendGrid v3 mail/send API.
type SendGridSender struct {
	httpClient *resty.Client
	from       sendGridAddress
	logger     zerolog.Logger
}

func NewSendGridSender(cfg SendGridConfig, logger zerolog.Logger) *SendGridSender {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &SendGridSender{
		httpClient: client,
		from:       sendGridAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		logger:     logger.With().Str("component", "sendgrid").Logger(),
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, n *Notification) error {
	mail := sendGridMail{
		From: s.from,
		Personalizations: []sendGridPersonalization{{
			To:      []sendGridAddress{{Email: n.Recipient}},
			Subject: n.Subject,
		}},
		Content: []sendGridContent{{Type: "text/plain", Value: n.Body}},
	}
	for _, a := range n.Attachments {
		mail.Attachments = append(mail.Attachments, sendGridAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}

	var apiErr sendGridError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(mail).
		SetError(&apiErr).
		Post("/v3/mail/send")
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		s.logger.Error().
			Int("status_code", resp.StatusCode()).
			Str("notification_id", n.ID).
			Msg("sendgrid rejected message")
		return fmt.Errorf("sendgrid error: %s (status: %d)", msg, resp.StatusCode())
	}
	return nil
}
