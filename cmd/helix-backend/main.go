// ABOUTME: Entry point for the helix development backend.
// ABOUTME: Serves the chat API with a scripted agent and sqlite persistence.

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
	"path/filepath"
	"syscall"
	"time"

	"github.com/2389/helix-console/internal/agent"
	"github.com/2389/helix-console/internal/auth"
	"github.com/2389/helix-console/internal/config"
	"github.com/2389/helix-console/internal/dedupe"
	"github.com/2389/helix-console/internal/server"
	"github.com/2389/helix-console/internal/store"
)

var version = "dev"

const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("helix-backend %s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath resolves the config file location. Priority: the -config
// flag, HELIX_CONFIG, then backend.yaml under the XDG config directory.
// Returns "" when no config file exists anywhere.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("HELIX_CONFIG"); env != "" {
		return env
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	path := filepath.Join(dir, "helix", "backend.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if path := getConfigPath(configPath); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var script *agent.Script
	if cfg.Agent.Script != "" {
		script, err = agent.LoadScript(cfg.Agent.Script)
		if err != nil {
			return fmt.Errorf("loading agent script: %w", err)
		}
		logger.Info("agent script loaded", "path", cfg.Agent.Script, "scenarios", len(script.Scenarios))
	} else {
		logger.Info("no agent script configured, using echo scenario")
	}

	cache := dedupe.New(dedupeTTL, dedupeMaxSize)
	defer cache.Close()

	srv := server.New(st, agent.NewScripted(script, cfg.Agent.TokenDelay, logger), cache, server.Options{
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		CompressThreshold: cfg.Chat.CompressThreshold,
		BaseDir:           cfg.Agent.BaseDir,
	}, logger)

	handler := srv.Handler()
	if cfg.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		handler = auth.Middleware(verifier)(handler)
		logger.Info("bearer authentication enabled")
	} else {
		logger.Warn("no jwt_secret configured, API is open")
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("helix-backend listening", "addr", cfg.Server.HTTPAddr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
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
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
