package middleware

import (
	"context"
	"errors"

	"certverify-backend/internal/auth"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/pkg/constants"
	"certverify-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	APIKeyHeader   = "X-API-Key"
	principalLocal = "principal"
)

type PrincipalResolver interface {
	Resolve(ctx context.Context, key string) (*auth.Principal, error)
}

// Authenticate resolves X-API-Key when present. Requests without a key pass through anonymous;
// a key that does not resolve is rejected with 401.
func Authenticate(resolver PrincipalResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(APIKeyHeader)
		if key == "" {
			return c.Next()
		}
		p, err := resolver.Resolve(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidAPIKey) {
				return response.Unauthorized(c, domain.ErrInvalidAPIKey.Error())
			}
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Msg("api key lookup failed")
			return response.Error(c, domain.ErrStoreUnavailable.Error(), fiber.StatusServiceUnavailable, nil)
		}
		c.Locals(principalLocal, p)
		return c.Next()
	}
}

// RequireAuth ensures a principal was resolved. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetPrincipal(c) == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// AuthorizePermission checks the principal's role against constants.PermissionRoles.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		if len(constants.PermissionRoles[permission]) == 0 {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, p.Role) {
			return response.Error(c, "Forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

// GetPrincipal returns the resolved caller, or nil for anonymous requests.
func GetPrincipal(c *fiber.Ctx) *auth.Principal {
	p, _ := c.Locals(principalLocal).(*auth.Principal)
	return p
}
