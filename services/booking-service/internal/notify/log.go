package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the service log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, kind Kind, recipient string, payload any) error {
	n.logger.InfoContext(ctx, "notification", "kind", kind, "recipient", recipient, "payload", payload)
	return nil
}
