package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/lverdier/meteo-vigilance/internal/alert"
	"github.com/lverdier/meteo-vigilance/internal/api"
	"github.com/lverdier/meteo-vigilance/internal/billing"
	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/logging"
	"github.com/lverdier/meteo-vigilance/internal/observability"
	"github.com/lverdier/meteo-vigilance/internal/otp"
	"github.com/lverdier/meteo-vigilance/internal/repository"
	"github.com/lverdier/meteo-vigilance/internal/scheduler"
	"github.com/lverdier/meteo-vigilance/internal/stream"
	"github.com/lverdier/meteo-vigilance/internal/weather"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sms := delivery.NewBrevoSMS(cfg.Brevo)
	email := delivery.NewBrevoEmail(cfg.Brevo)
	weatherClient := weather.NewClient(cfg.Weather)
	metrics := observability.NewMetrics()
	feed := stream.NewFeed()

	engine := alert.NewEngine(weatherClient, db, db, sms, email, cfg.Worker.Count, metrics, cfg.Alert)
	if err := engine.LoadState(ctx); err != nil {
		logging.Fatalf("Failed to load alert state: %v", err)
	}
	engine.AlertHook = func(result alert.BroadcastResult) {
		feed.Publish(stream.Event{
			Phenomenon: result.Phenomenon,
			Color:      result.Color,
			Sent:       result.Sent,
			Failed:     result.Failed,
			Timestamp:  time.Now().UTC(),
		})
	}

	verifier := otp.NewService(sms, email, nil)

	runner := scheduler.New(engine, weatherClient, db, verifier, nil,
		cfg.Weather.CheckInterval, cfg.Weather.ForecastInterval)
	if cfg.Weather.VigilanceEnabled {
		runner.Start(ctx)
	} else {
		slog.Warn("vigilance polling disabled")
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(10)) // 10 req/s global limit

	handler := api.NewHandler(api.Deps{
		Subscribers: db,
		Snapshots:   db,
		Verifier:    verifier,
		SMS:         sms,
		Email:       email,
		Weather:     weatherClient,
		Runner:      runner,
		Feed:        feed,
		Billing:     billing.NewService(cfg.Stripe),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if cfg.Weather.VigilanceEnabled {
		runner.Stop()
	}
	feed.Close() // Close all SSE streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
