package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"client/internal/app"
	"client/internal/config"
	"client/internal/utils"

	"go.uber.org/zap"
)

func main() {
	logger, err := utils.NewLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}

	utils.LoadEnv(logger)

	cfg := config.LoadConfig()
	if logger, err = utils.NewLogger(cfg.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded",
		zap.String("server_port", cfg.ServerPort),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("socket_url", cfg.SocketURL),
		zap.String("push_protocol", cfg.PushProtocol),
		zap.String("redis_url", cfg.RedisURL),
		zap.String("env", cfg.Env),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	application, err := app.Bootstrap(ctx, &cfg, logger)
	if err != nil {
		logger.Fatal("Failed to bootstrap application", zap.Error(err))
	}

	if token := os.Getenv("SESSION_TOKEN"); token != "" {
		restoreCtx, cancel := context.WithTimeout(ctx, cfg.ReadTimeout)
		if sess, err := application.Sessions.Restore(restoreCtx, token); err != nil {
			logger.Warn("Failed to restore session", zap.Error(err))
		} else {
			logger.Info("Session restored", zap.String("user_id", sess.UserID))
		}
		cancel()
	}

	addr := "127.0.0.1:" + cfg.ServerPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           application.Router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	application.Shutdown(shutdownCtx)
	stop()

	logger.Info("Server exited gracefully")
}
