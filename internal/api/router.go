package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/gateway"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/redis"
)

// Dependencies holds all handler instances and middleware for route wiring.
type Dependencies struct {
	ReadStatuses *ReadStatusHandler
	Gateway      *gateway.Manager

	TokenService *auth.TokenService
	Redis        *redis.Client
	RateLimit    RateLimitPolicy
}

// SetupRouter registers all API routes on the Echo instance.
func SetupRouter(e *echo.Echo, deps *Dependencies) {
	e.GET("/health", func(c echo.Context) error {
		if err := deps.Redis.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "redis": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// WebSocket gateway
	e.GET("/gateway", deps.Gateway.HandleWebSocket)

	policy := deps.RateLimit
	if policy.Reads <= 0 {
		policy.Reads = 120
	}
	if policy.Writes <= 0 {
		policy.Writes = 60
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	protected := e.Group("/api/v1", deps.TokenService.Middleware(),
		RateLimitMiddleware(deps.Redis, policy),
	)

	// Documents
	protected.GET("/documents/:id/read-status", deps.ReadStatuses.GetReadStatus)
	protected.PUT("/documents/:id/read", deps.ReadStatuses.MarkRead)
	protected.DELETE("/documents/:id/read", deps.ReadStatuses.MarkUnread)
	protected.POST("/documents/read-status/query", deps.ReadStatuses.QueryBatch)
	protected.PUT("/documents/read-status", deps.ReadStatuses.UpdateBatch)

	// Users
	protected.GET("/users/@me/read-statuses", deps.ReadStatuses.ListMine)
	protected.DELETE("/users/@me/read-statuses", deps.ReadStatuses.ClearMine)
}
