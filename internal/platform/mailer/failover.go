package mailer

import (
	"context"
	"log/slog"

	"troupon/pkg/platform/circuit"
)

// Failover sends through primary until its breaker opens, then through
// fallback. Each Send still makes exactly one attempt.
type Failover struct {
	primary  Transport
	fallback Transport
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailover(primary, fallback Transport, breaker *circuit.Breaker, logger *slog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (f *Failover) Send(ctx context.Context, msg Message) DeliveryStatus {
	if !f.breaker.Allow() {
		return f.fallback.Send(ctx, msg)
	}

	status := f.primary.Send(ctx, msg)
	if status.Delivered {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "mail transport recovered", "breaker", f.breaker.Name())
		}
		return status
	}
	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.WarnContext(ctx, "mail transport failing, switching to fallback",
			"breaker", f.breaker.Name(),
			"reason", status.Message,
		)
	}
	return status
}
