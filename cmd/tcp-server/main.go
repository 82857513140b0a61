package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"relayhub/internal/config"
	"relayhub/internal/microservices/tcp"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed_to_load_config", "error", err.Error())
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid_config", "error", err.Error())
		return 1
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting_tcp_server",
		"tcp_addr", cfg.TCPAddr(),
		"admin_enabled", cfg.AdminEnabled,
	)

	server := tcp.NewServer(cfg.TCPAddr(), tcp.ServerOptions{
		AcceptInterval: cfg.AcceptInterval,
		PollInterval:   cfg.PollInterval,
		SendTimeout:    cfg.SendTimeout,
		IdleTimeout:    cfg.IdleTimeout,
	}, logger)
	if err := server.Start(); err != nil {
		logger.Error("server_error", "error", err.Error())
		return 1
	}

	var admin *http.Server
	if cfg.AdminEnabled {
		if !cfg.IsDevelopment() {
			gin.SetMode(gin.ReleaseMode)
		}
		admin = &http.Server{
			Addr:    cfg.AdminAddr(),
			Handler: tcp.NewAdminRouter(server.Manager),
		}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin_server_error", "error", err.Error())
			}
		}()
		logger.Info("admin_server_started", "addr", cfg.AdminAddr())
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// the console blocks on stdin, so it gets its own goroutine
	var consoleResult chan error
	if cfg.ConsoleEnabled {
		consoleResult = make(chan error, 1)
		go func() {
			consoleResult <- tcp.NewConsole(server.Manager, os.Stdin, os.Stdout).Run(server.Done())
		}()
	} else {
		logger.Info("console_disabled")
	}

wait:
	for {
		select {
		case <-sigChan:
			logger.Info("received_shutdown_signal")
			break wait
		case err := <-consoleResult:
			if err == nil {
				logger.Info("operator_requested_exit")
				break wait
			}
			// no stdin (detached or piped): keep relaying until a signal arrives
			logger.Warn("console_input_closed", "error", err.Error())
			consoleResult = nil
		}
	}

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(ctx); err != nil {
			logger.Warn("admin_shutdown_error", "error", err.Error())
		}
	}
	server.Stop()
	logger.Info("server_stopped_gracefully")
	return 0
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	// stdout carries the operator console, so logs go to stderr
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
