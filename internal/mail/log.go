package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to the log instead of sending them.
// It is selected when no SMTP host is configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport returns a transport logging through logger.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	t.logger.Info("email",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
