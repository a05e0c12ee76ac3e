package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohdtalal3/immowelt-backend/internal/config"
	"github.com/mohdtalal3/immowelt-backend/internal/db"
	"github.com/mohdtalal3/immowelt-backend/internal/immowelt"
	"github.com/mohdtalal3/immowelt-backend/internal/scheduler"
	"github.com/mohdtalal3/immowelt-backend/internal/scraper"
	"github.com/mohdtalal3/immowelt-backend/internal/session"
	"github.com/mohdtalal3/immowelt-backend/internal/store"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file is fine in containerized deployments.
		slog.Info("no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	accounts := store.New(pool)

	transport := immowelt.NewHTTPTransport(cfg.RequestRPS)
	caller := immowelt.NewCaller(transport, log)
	newClient := func(proxyURL string) scraper.Client {
		return immowelt.NewClient(caller, proxyURL, log)
	}

	guard := session.NewGuard(accounts, log)
	dispatcher := scraper.NewDispatcher(cfg.ContactHistoryCap, log)
	worker := scraper.NewWorker(accounts, guard, dispatcher, newClient, cfg.ProxyBaseURL, log)

	sched := scheduler.New(accounts, worker, rdb, cfg.ScrapeIntervalMinutes, log)
	if err := sched.Start(ctx); err != nil {
		log.Error("scheduler start failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sched.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:  "ok",
			Service: "immowelt-backend",
			Version: "0.1.0",
		})
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()
	log.Info("service started", slog.String("port", cfg.Port))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}
