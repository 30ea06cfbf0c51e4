package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"kennel-assistant/internal/app"
	"kennel-assistant/internal/config"
	"kennel-assistant/internal/transport/web"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build application", "err", err)
		os.Exit(1)
	}

	socket, err := web.NewChatSocket(web.SocketConfig{
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxFrameSize:   cfg.MaxFrameSize,
		MaxMessageLen:  cfg.MaxMessageLen,
		AllowedOrigins: cfg.AllowedOrigins,
	}, a.NewEngine, a.Lookups, logger)
	if err != nil {
		logger.Error("failed to create chat socket", "err", err)
		os.Exit(1)
	}

	srv := web.NewServer(a.Handler, socket, logger)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server stopped", "err", err)
			os.Exit(1)
		}
	}()
	logger.Info("web server started", "port", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
