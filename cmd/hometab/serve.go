package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/hometab/internal/app"
	"github.com/MrSnakeDoc/hometab/internal/config"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the autosync loop (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	loggerClient := newLogger(cfg)
	defer func() { _ = loggerClient.Sync() }()

	a, err := app.New(context.Background(), cfg, loggerClient)
	if err != nil {
		loggerClient.Error("failed to start", logger.Error(err))
		return fmt.Errorf("startup: %w", err)
	}
	return a.Run()
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:      cfg.LogLevel,
		Pretty:     cfg.PrettyLog,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}
