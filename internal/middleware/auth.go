package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
)

const (
	ContextKeyUID   = "uid"
	ContextKeyActor = "actor"
)

type AuthMiddleware struct {
	provider identity.Provider
}

func NewAuthMiddleware(provider identity.Provider) *AuthMiddleware {
	return &AuthMiddleware{provider: provider}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		actor, err := m.provider.Verify(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		c.Set(ContextKeyUID, actor.UID)
		c.Set(ContextKeyActor, actor)
		req := c.Request()
		c.SetRequest(req.WithContext(reqctx.WithUID(req.Context(), actor.UID)))
		return next(c)
	}
}

func (m *AuthMiddleware) Provider() identity.Provider {
	return m.provider
}

// Actor returns the actor stored by RequireAuth, or nil.
func Actor(c echo.Context) *identity.Actor {
	a, _ := c.Get(ContextKeyActor).(*identity.Actor)
	return a
}
