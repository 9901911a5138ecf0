package main

import (
	"fmt"
	"log/slog"

	"github.com/clubworks/backend/internal/config"
	"github.com/clubworks/backend/internal/platform/logger"
)

// loadConfiguration loads application config from the environment and the
// optional config file.
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the process-wide structured logger.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)
	return log, nil
}
