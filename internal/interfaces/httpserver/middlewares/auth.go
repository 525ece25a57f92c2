package middlewares

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bastion-server/internal/infrastructure/auth"
	"bastion-server/internal/utils/platformerrors"
)

const principalContextKey = "principal"

// TokenValidator turns a bearer token into a principal.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*auth.Principal, error)
}

// AuthMiddleware resolves the caller. Requests without a bearer token continue as anonymous; an
// invalid token is rejected with 401. With validation disabled every request acts as
// anonymousUserID.
func AuthMiddleware(validator TokenValidator, enabled bool, anonymousUserID string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			setPrincipal(c, auth.Principal{ID: anonymousUserID})
			c.Next()
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			setPrincipal(c, auth.Principal{})
			c.Next()
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			logger.Warn().Err(err).Str("path", c.FullPath()).Msg("jwt validation failed")
			platformerrors.WriteUnauthorized(c, "invalid token")
			return
		}
		setPrincipal(c, *principal)
		c.Next()
	}
}

// PrincipalFromContext returns the caller resolved by AuthMiddleware.
func PrincipalFromContext(c *gin.Context) auth.Principal {
	if val, ok := c.Get(principalContextKey); ok {
		if principal, ok := val.(auth.Principal); ok {
			return principal
		}
	}
	return auth.Principal{}
}

func setPrincipal(c *gin.Context, principal auth.Principal) {
	c.Set(principalContextKey, principal)
	if principal.ID != "" {
		c.Set("user_id", principal.ID)
	}
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
