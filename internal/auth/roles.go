package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
	apperrors "github.com/spec-kit/subscription-reconciler/pkg/util"
)

// RequireTrigger allows the scheduler or an operator holding one of the allowed roles.
func RequireTrigger(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType == domain.SubjectTypeScheduler {
			return c.Next()
		}
		if principal.SubjectType != domain.SubjectTypeOperator {
			return apperrors.NewForbidden("unknown subject")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
