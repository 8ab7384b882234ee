package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
	apperrors "github.com/spec-kit/subscription-reconciler/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	SubjectID   string
	Role        domain.Role
}

// AuthMiddleware accepts either the scheduler's shared secret or an operator JWT.
type AuthMiddleware struct {
	tokens              *TokenManager
	schedulerSecretHash string
}

// NewAuthMiddleware constructs middleware. An empty schedulerSecretHash disables secret auth.
func NewAuthMiddleware(tokens *TokenManager, schedulerSecretHash string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, schedulerSecretHash: schedulerSecretHash}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}
	credential := strings.TrimSpace(parts[1])

	if m.schedulerSecretHash != "" && CompareSecret(m.schedulerSecretHash, credential) == nil {
		c.Locals(principalKey, &Principal{SubjectType: domain.SubjectTypeScheduler, SubjectID: "scheduler"})
		return c.Next()
	}

	if m.tokens == nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	claims, err := m.tokens.ParseToken(credential)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{SubjectType: claims.Subject, SubjectID: claims.SubjectID, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
