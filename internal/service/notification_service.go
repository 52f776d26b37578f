package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
)

// NotificationService turns account lifecycle events into audit log lines and counters.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventUserRegistered,
		events.EventActivationEmailSent,
		events.EventUserActivated,
		events.EventUserLoggedIn,
		events.EventUserLoggedOut,
	} {
		n.dispatcher.Subscribe(t, n.handleLifecycle)
	}
	n.dispatcher.Subscribe(events.EventActivationEmailError, n.handleActivationEmailFailed)
	n.dispatcher.Subscribe(events.EventUserLoginFailed, n.handleLoginFailed)
}

func (n *NotificationService) handleLifecycle(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleActivationEmailFailed(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	n.logger.Warn(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleLoginFailed(_ context.Context, event events.Event) error {
	reason := "unknown"
	if p, ok := event.Payload.(events.LoginFailedPayload); ok {
		reason = p.Reason
	}
	n.metrics.RecordEvent(string(event.Type) + ":" + reason)
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("reason", reason))
	return nil
}
