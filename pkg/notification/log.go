package notification

import (
	"context"
	"log/slog"
)

// LogSender writes messages to a slog.Logger instead of delivering them.
// Useful for local development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "Email (not delivered)", "to", m.To, "subject", m.Subject, "body", m.Text)
	return nil
}
