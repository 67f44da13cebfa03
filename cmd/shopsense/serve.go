package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ShopSense/internal/api"
	"github.com/IshaanNene/ShopSense/internal/config"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serve POST /analyze-url and POST /chat until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	logger := setupLogger(cfg, false)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var opts []api.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetrics(cfg.Metrics.Path, a.metrics))
	}
	srv := api.NewServer(cfg.Server, a.analyzer, logger, opts...)

	logger.Info("ShopSense starting",
		"version", config.Version,
		"port", cfg.Server.Port,
		"llm_provider", cfg.LLM.Provider,
		"metrics", cfg.Metrics.Enabled,
	)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	a.metrics.LogSummary()
	logger.Info("server stopped")
	return nil
}
