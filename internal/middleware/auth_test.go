package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct{}

func (staticProvider) Verify(_ context.Context, token string) (*identity.Actor, error) {
	if token == "good" {
		return &identity.Actor{UID: "u1", DisplayName: "Aki"}, nil
	}
	return nil, identity.ErrInvalidToken
}

func (staticProvider) Lookup(_ context.Context, uid string) (*identity.Actor, error) {
	return nil, identity.ErrUserNotFound
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	e.Use(echomw.RequestID(), RequestContext)
	auth := NewAuthMiddleware(staticProvider{})
	e.GET("/me", func(c echo.Context) error {
		actor := Actor(c)
		require.NotNil(t, actor)
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"uid":    c.Get(ContextKeyUID).(string),
			"ctxUid": reqctx.UID(ctx),
			"hasRid": map[bool]string{true: "yes", false: "no"}[reqctx.RID(ctx) != ""],
		})
	}, auth.RequireAuth)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"bad token", "Bearer bad", http.StatusUnauthorized, `{"error":"invalid_token"}`},
		{"ok", "Bearer good", http.StatusOK, `{"uid":"u1","ctxUid":"u1","hasRid":"yes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
