// Package otp delivers one-time passwords to farmers over SMS.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/JaimeStill/kisaanseva/pkg/formatting"
)

// ErrDelivery is returned when the SMS gateway rejects a message.
var ErrDelivery = errors.New("sms delivery failed")

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Gateway posts messages to an HTTP SMS gateway.
type Gateway struct {
	url     string
	authKey string
	sender  string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the gateway's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// NewGateway creates an SMS gateway client. Phone numbers are sent with the
// India country code prefixed.
func NewGateway(url, authKey, sender string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		url:     strings.TrimRight(url, "/"),
		authKey: authKey,
		sender:  sender,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("module", "otp"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type payload struct {
	Sender  string `json:"sender"`
	Mobiles string `json:"mobiles"`
	Message string `json:"message"`
}

func (g *Gateway) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(payload{
		Sender:  g.sender,
		Mobiles: "91" + phone,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.authKey != "" {
		req.Header.Set("authkey", g.authKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d body %s", ErrDelivery, resp.StatusCode, string(detail))
	}

	g.logger.Info("sms sent", "phone", formatting.MaskPhone(phone))
	return nil
}

// codePattern matches digit runs long enough to be a one-time password.
var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

func redact(message string) string {
	return codePattern.ReplaceAllStringFunc(message, func(code string) string {
		return strings.Repeat("*", len(code))
	})
}

type logSender struct {
	logger *slog.Logger
}

// NewLogSender returns a Sender that logs messages instead of delivering
// them, for environments without an SMS gateway. Codes in the message are
// masked before logging.
func NewLogSender(logger *slog.Logger) Sender {
	return &logSender{logger: logger.With("module", "otp")}
}

func (s *logSender) Send(_ context.Context, phone, message string) error {
	s.logger.Info("sms not sent, no gateway configured",
		"phone", formatting.MaskPhone(phone),
		"message", redact(message),
	)
	return nil
}
