// Package mailer delivers composed messages through a pluggable transport.
//
// Transports never return errors. Every attempt is reported as a
// DeliveryStatus so callers can surface the outcome without treating a
// provider rejection as a request failure.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"troupon/internal/platform/config"
	"troupon/pkg/platform/circuit"
)

// Message is a fully composed email.
type Message struct {
	Sender    string
	Recipient string
	Subject   string
	HTML      string
	Text      string
}

// DeliveryStatus reports a single send attempt.
type DeliveryStatus struct {
	Delivered bool   `json:"delivered"`
	ID        string `json:"id,omitempty"`
	Message   string `json:"message,omitempty"`
	Transport string `json:"transport"`
}

// Transport sends a message once. Implementations must not retry.
type Transport interface {
	Send(ctx context.Context, msg Message) DeliveryStatus
}

// New selects the transport named in cfg. When a fallback is configured the
// primary is wrapped in a Failover.
func New(cfg config.MailConfig, logger *slog.Logger) (Transport, error) {
	primary, err := newTransport(cfg.Transport, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Transport {
		return primary, nil
	}
	fallback, err := newTransport(cfg.Fallback, cfg, logger)
	if err != nil {
		return nil, err
	}
	breaker := circuit.New("mail:"+cfg.Transport,
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.FailoverCooldown),
	)
	return NewFailover(primary, fallback, breaker, logger), nil
}

func newTransport(name string, cfg config.MailConfig, logger *slog.Logger) (Transport, error) {
	switch name {
	case "", "log":
		return NewLogTransport(logger), nil
	case "mailgun":
		return NewMailgun(cfg.MailgunBaseURL, cfg.MailgunDomain, cfg.MailgunAPIKey,
			WithHTTPClient(&http.Client{Timeout: cfg.Timeout})), nil
	case "smtp":
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", name)
	}
}
