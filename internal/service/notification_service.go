package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/config"
	"github.com/spec-kit/subscription-reconciler/internal/events"
)

const webhookTimeout = 5 * time.Second

// NotificationService handles emitting notifications for run events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRunCompleted, n.handleRunCompleted)
	n.dispatcher.Subscribe(events.EventClaimsWriteFailed, n.handleClaimsWriteFailed)
}

func (n *NotificationService) handleRunCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("RunCompleted", zap.String("run_id", event.RunID), zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleClaimsWriteFailed(ctx context.Context, event events.Event) error {
	n.logger.Warn("ClaimsWriteFailed", zap.String("run_id", event.RunID), zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

// sendWebhook posts the event. The request is bounded by webhookTimeout and by
// whatever remains of ctx's deadline.
func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}

	timeout := webhookTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, context.DeadlineExceeded)
	}

	agent := fiber.Post(url).Timeout(timeout).JSON(event)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, errs[0])
	}
	if status >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook %s: unexpected status %d", event.Type, status)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_type", string(event.Type)),
		zap.String("run_id", event.RunID),
		zap.Int("status", status))
	return nil
}
