// Command rovabot streams Rova radio stations into Discord voice channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidcole1340/rovabot/internal/app"
	"github.com/davidcole1340/rovabot/internal/config"
	"github.com/davidcole1340/rovabot/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file; empty reads settings from the environment only")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "rovabot: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rovabot: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rovabot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("rovabot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"prefix", cfg.Discord.Prefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, application.Reload)
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── HTTP: health + metrics ────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		application.Health().Register(mux)
		mux.Handle("GET /metrics", telemetry.Handler())
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
				stop()
			}
		}()
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
	}

	slog.Info("rovabot ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "error", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "error", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv(os.LookupEnv)
	}
	return config.Load(path)
}
