package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/subscription-reconciler/internal/api/dto"
	"github.com/spec-kit/subscription-reconciler/internal/auth"
	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
	"github.com/spec-kit/subscription-reconciler/internal/service"
)

// ReconcileRunner executes reconciliation runs.
type ReconcileRunner interface {
	Run(ctx context.Context, input service.RunInput) (*reconcile.Report, error)
}

// ReconcileHandler exposes the reconciliation trigger.
type ReconcileHandler struct {
	runner ReconcileRunner
}

// NewReconcileHandler constructs the handler.
func NewReconcileHandler(runner ReconcileRunner) *ReconcileHandler {
	return &ReconcileHandler{runner: runner}
}

// Trigger runs one reconciliation and returns its result. The body shape is the
// same for every status code.
func (h *ReconcileHandler) Trigger(c *fiber.Ctx) error {
	input := service.RunInput{
		DebugIdentityKey: strings.TrimSpace(c.Query("debugIdentityKey")),
	}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		input.Actor = events.Actor{Type: principal.SubjectType, SubjectID: principal.SubjectID}
	}

	report, err := h.runner.Run(c.UserContext(), input)
	return c.Status(StatusForRun(err)).JSON(dto.NewRunResultResponse(report))
}

// StatusForRun maps a run error to an HTTP status.
func StatusForRun(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case billing.IsSourceFetchError(err):
		return fiber.StatusBadGateway
	case errors.Is(err, reconcile.ErrRunCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
