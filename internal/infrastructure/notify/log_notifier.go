package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
)

// LogNotifier writes notifications to the log. Used when no messaging
// credentials are configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify never fails
func (n *LogNotifier) Notify(_ context.Context, msg port.Message) error {
	n.logger.Info("Notification",
		zap.Int64("person_id", msg.RecipientID),
		zap.String("handle", msg.Handle),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body))
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
