package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/config"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/service"
)

// StartNotificationWorker subscribes run notifications to the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, cfg config.NotificationConfig, logger *zap.Logger) *service.NotificationService {
	if dispatcher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WebhookURL == "" {
		logger.Info("NOTIFY_WEBHOOK_URL not set; run events are only logged")
	}

	notifications := service.NewNotificationService(dispatcher, logger.Named("notifications"), cfg)
	notifications.RegisterHandlers()
	return notifications
}
