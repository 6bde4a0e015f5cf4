package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/collab-messaging/internal/gateway"
	"github.com/shinyyama/collab-messaging/internal/handler"
	"github.com/shinyyama/collab-messaging/internal/identity"
	appmw "github.com/shinyyama/collab-messaging/internal/middleware"
	"github.com/shinyyama/collab-messaging/internal/service"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Messaging     service.MessagingService
	Notifications service.NotificationService
	Identity      identity.Provider
	Hub           *gateway.Hub
	Logger        *logrus.Logger
	// OriginSuffix is the host suffix accepted by CORS besides localhost.
	OriginSuffix string
	SHA          string
	BuildTime    string
}

type Server struct {
	e *echo.Echo
}

func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestContext)
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(d.OriginSuffix),
	}))

	authMw := appmw.NewAuthMiddleware(d.Identity)
	msgHandler := handler.NewMessageHandler(d.Messaging)
	notifHandler := handler.NewNotificationHandler(d.Notifications)
	userHandler := handler.NewUserHandler(d.Identity)
	socketHandler := handler.NewSocketHandler(d.Messaging, d.Hub, d.Logger)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    d.SHA,
			"build_time": d.BuildTime,
		})
	})
	e.GET("/ws", d.Hub.Handler(socketHandler))

	api := e.Group("/api", authMw.RequireAuth)

	messages := api.Group("/messages")
	messages.POST("", msgHandler.Send)
	messages.GET("/conversations", msgHandler.ListConversations)
	messages.POST("/conversations", msgHandler.CreateConversation)
	messages.GET("/conversation/:conversationId", msgHandler.GetConversation)
	messages.PUT("/read", msgHandler.MarkRead)
	messages.POST("/conversations/:id/archive", msgHandler.Archive)
	messages.DELETE("/conversations/:id/archive", msgHandler.Unarchive)
	messages.DELETE("/conversations/:id", msgHandler.Delete)
	messages.GET("/:otherUserId", msgHandler.OpenWith)

	api.GET("/notifications", notifHandler.List)
	api.PUT("/notifications/read", notifHandler.MarkRead)
	api.PUT("/notifications/read-all", notifHandler.MarkAllRead)

	api.GET("/users/:uid/public", userHandler.GetPublic)

	return &Server{e: e}
}

func allowOrigin(suffix string) func(origin string) (bool, error) {
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		host := u.Hostname()
		if suffix != "" && strings.HasSuffix(host, suffix) {
			return true, nil
		}
		return false, nil
	}
}

// CheckOrigin applies the CORS origin policy to websocket upgrades. Requests without an
// Origin header come from non-browser clients and are accepted.
func CheckOrigin(suffix string) func(r *http.Request) bool {
	allow := allowOrigin(suffix)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		ok, _ := allow(origin)
		return ok
	}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.e
}
