package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/tower/pkg/config"
	"github.com/aeolun/tower/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local RAC/WRAC server for development",
	Long: `Runs an in-memory chat server speaking RAC on the [server] rac_addr
and WRAC on the [server] wrac_addr. Messages are lost on exit.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := newLogger(os.Stderr).With().Str("component", "server").Logger()

	reg := newRegistry()
	srv := server.NewServer(cfg.ToServerConfig(), server.NewMessageLog(), server.NewMetrics(reg), logger)
	if err := srv.Start(); err != nil {
		return err
	}

	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		serveMetrics(addr, reg, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	return srv.Stop()
}
