package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport writes messages to the structured log instead of sending them.
// Used in development so recovery links can be copied from the console.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) DeliveryStatus {
	messageID := uuid.NewString()
	t.logger.InfoContext(ctx, "email logged",
		"message_id", messageID,
		"sender", msg.Sender,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return DeliveryStatus{Delivered: true, ID: messageID, Message: "Logged", Transport: "log"}
}
