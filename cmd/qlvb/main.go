package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/api"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/config"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/database"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/gateway"
	redisclient "github.com/Phambanam99/qlvb-thanh-sub004/internal/redis"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/service"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	// --- Infrastructure ---

	var repo database.ReadStatusRepository
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("postgres", err)
		}
		defer pool.Close()
		repo = database.NewReadStatusRepository(pool)
	} else {
		slog.Warn("DATABASE_URL not set, read statuses are kept in memory only")
	}

	rdb, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		fatal("redis", err)
	}
	defer rdb.Close()

	tokenSvc := auth.NewTokenService(cfg.JWTSecret)

	// --- Services ---

	readStatuses := service.NewReadStatusService(repo, time.Now)

	// --- Gateway ---

	gwManager := gateway.NewManager(tokenSvc, readStatuses, rdb)

	limits := api.RateLimitPolicy{
		Reads:  cfg.RateLimitPerMinute,
		Writes: cfg.WriteLimitPerMinute,
		Window: time.Minute,
	}

	deps := &api.Dependencies{
		ReadStatuses: api.NewReadStatusHandler(readStatuses),
		Gateway:      gwManager,
		TokenService: tokenSvc,
		Redis:        rdb,
		RateLimit:    limits,
	}

	// --- Echo ---

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.SetupRouter(e, deps)

	// --- Start ---

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("qlvb starting", "addr", cfg.ServerAddr, "persistent", readStatuses.Persistent())
		if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			fatal("server", err)
		}
	}()

	<-sigCtx.Done()
	slog.Info("shutting down")
	gwManager.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func fatal(what string, err error) {
	slog.Error(what+" failed", "error", err)
	os.Exit(1)
}
