package shift

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type NotificationType string

const (
	NotifyRequestSubmitted NotificationType = "request_submitted"
	NotifyRequestReviewed  NotificationType = "request_reviewed"
	NotifyAutoClockOut     NotificationType = "shift_auto_clocked_out"
)

// Notification is handed to the delivery collaborator after a commit.
// An empty RecipientID addresses the admins.
type Notification struct {
	RecipientID ActorID
	SenderID    ActorID
	SenderName  string
	Type        NotificationType
	ResourceID  string
	Content     string
	At          time.Time
}

// Notifier delivers notifications. Delivery is best-effort: the engine
// logs a failed Notify and carries on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	loggerOrNop(l.Logger).Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", string(n.RecipientID)),
		zap.String("resource_id", n.ResourceID),
		zap.String("content", n.Content),
	)
	return nil
}

func notify(ctx context.Context, notifier Notifier, logger *zap.Logger, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		loggerOrNop(logger).Warn("notification delivery failed",
			zap.String("type", string(n.Type)),
			zap.String("resource_id", n.ResourceID),
			zap.Error(err),
		)
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
