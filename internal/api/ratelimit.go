package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/redis"
)

// RateLimitPolicy sets separate budgets for lookups and for changes to read
// state. Each budget is counted per caller over Window.
type RateLimitPolicy struct {
	Reads  int
	Writes int
	Window time.Duration
}

type limitClass string

const (
	classRead  limitClass = "read"
	classWrite limitClass = "write"
)

// classify puts a request in the read or write bucket. Batch queries are
// POSTs but never change state.
func classify(c echo.Context) limitClass {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return classRead
	}
	if strings.HasSuffix(c.Path(), "/query") {
		return classRead
	}
	return classWrite
}

func (p RateLimitPolicy) limit(class limitClass) int {
	if class == classWrite {
		return p.Writes
	}
	return p.Reads
}

// RateLimitMiddleware throttles callers per user, or per IP before
// authentication, using a fixed window in Redis. Redis errors let the request
// through.
func RateLimitMiddleware(redisClient *redis.Client, policy RateLimitPolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			class := classify(c)
			limit := policy.limit(class)

			caller := "ip:" + c.RealIP()
			if uid, ok := auth.LookupUserID(c); ok {
				caller = fmt.Sprintf("user:%d", uid)
			}
			key := fmt.Sprintf("rl:readstatus:%s:%s", class, caller)

			allowed, count, ttlMs, err := redisClient.CheckRateLimit(c.Request().Context(), key, limit, policy.Window)
			if err != nil {
				slog.Warn("rate limit check failed", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-count, 0), 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(ttlMs)*time.Millisecond).Unix(), 10))

			if !allowed {
				h.Set("Retry-After", strconv.FormatInt((ttlMs+999)/1000, 10))
				return Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many read status requests, please try again later")
			}
			return next(c)
		}
	}
}
