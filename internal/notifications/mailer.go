package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mercaline/marketplace-backend/pkg/config"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
)

// Email is a single outbound message.
type Email struct {
	To        string
	Subject   string
	PlainBody string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

const (
	mailSendPath       = "/v3/mail/send"
	mailSendTimeout    = 10 * time.Second
	mailRetryBaseDelay = 500 * time.Millisecond
	mailRetryAttempts  = 3
)

type sendgridMailer struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	logg    *logger.Logger
}

// NewSendgridMailer builds a Mailer backed by the SendGrid v3 mail send API.
func NewSendgridMailer(cfg config.SendgridConfig, logg *logger.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("sendgrid sender address is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	return &sendgridMailer{
		apiKey:  cfg.APIKey,
		from:    cfg.DefaultFrom,
		baseURL: baseURL,
		client:  &http.Client{Timeout: mailSendTimeout},
		logg:    logg,
	}, nil
}

type sendgridRequest struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send posts the message, retrying transient SendGrid failures with backoff.
func (m *sendgridMailer) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}

	body, err := json.Marshal(sendgridRequest{
		Personalizations: []sendgridPersonalization{{To: []sendgridAddress{{Email: email.To}}}},
		From:             sendgridAddress{Email: m.from},
		Subject:          email.Subject,
		Content:          []sendgridContent{{Type: "text/plain", Value: email.PlainBody}},
	})
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(mailRetryAttempts, retry.NewExponential(mailRetryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return m.post(ctx, body)
	})
}

func (m *sendgridMailer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+mailSendPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		// network errors are worth another attempt
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	sendErr := pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("sendgrid returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(sendErr)
	}
	return sendErr
}
