package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/client/ui"
	"github.com/aeolun/tower/pkg/config"
	"github.com/aeolun/tower/pkg/engine"
	"github.com/aeolun/tower/pkg/notify"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	debugMode   bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "tower",
	Short: "Terminal client for RAC and WRAC chat servers",
	Long: `Tower connects to a RAC (TCP) or WRAC (WebSocket) chat server, polls it
for new messages and lets you post to it.

Addresses look like rac://host[:port] or wrac://host[:port].`,
	RunE:          runTUI,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides [metrics] addr)")
	rootCmd.AddCommand(serveCmd)
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("tower %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("tower %s\n", version)
}

// newLogger writes to w, human readable in debug mode and JSON otherwise
func newLogger(w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if debugMode {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// openLogFile opens the client log. The TUI owns the terminal, so logs
// never go to stderr while it runs.
func openLogFile(cfg config.TOMLConfig) (*os.File, error) {
	path, err := cfg.GetLogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// serveMetrics exposes reg on addr until the process exits
func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logFile, err := openLogFile(cfg)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()
	logger := newLogger(logFile)

	if !cfg.PollIntervalRecommended() {
		logger.Warn().
			Dur("interval", cfg.PollInterval()).
			Dur("min", config.MinRecommendedPollInterval).
			Dur("max", config.MaxRecommendedPollInterval).
			Msg("poll interval outside the recommended range")
	}

	statePath, err := cfg.GetStatePath()
	if err != nil {
		return err
	}
	state, err := client.OpenState(statePath)
	if err != nil {
		return fmt.Errorf("error opening state: %w", err)
	}
	defer state.Close()

	// Config values win over remembered ones only when set
	if cfg.Client.Address != "" {
		if err := state.SetLastAddress(cfg.Client.Address); err != nil {
			logger.Warn().Err(err).Msg("failed to apply configured address")
		}
		if err := state.SetUseTLS(cfg.Client.UseTLS); err != nil {
			logger.Warn().Err(err).Msg("failed to apply configured TLS setting")
		}
	}
	if cfg.Client.Username != "" {
		if err := state.SetLastUsername(cfg.Client.Username); err != nil {
			logger.Warn().Err(err).Msg("failed to apply configured username")
		}
	}

	var metrics *engine.Metrics
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		reg := newRegistry()
		metrics = engine.NewMetrics(reg)
		serveMetrics(addr, reg, logger)
	}

	bridge := &ui.Bridge{}
	notifiers := notify.Multi{bridge, notify.NewLog(logger)}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktop("Tower", "", logger))
	}

	anchor := engine.NewScrollAnchor(bridge, engine.SystemClock, cfg.Scroll.BottomThreshold, cfg.SettleDelay())
	defer anchor.Stop()

	dialer := &client.Dialer{
		Timeout:     cfg.RequestTimeout(),
		LoadHistory: cfg.Sync.LoadHistory,
		Logger:      logger.With().Str("component", "dialer").Logger(),
	}
	ctrl := engine.NewController(dialer, engine.Options{
		PollInterval: cfg.PollInterval(),
		Clock:        engine.SystemClock,
		Notifier:     notifiers,
		Anchor:       anchor,
		Metrics:      metrics,
		Logger:       logger.With().Str("component", "engine").Logger(),
		OnEvent:      bridge.OnEvent,
	})

	model := ui.NewModel(ctrl, state, anchor, version, logger.With().Str("component", "ui").Logger())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	bridge.Attach(p)

	logger.Info().Str("version", version).Msg("starting")
	_, runErr := p.Run()

	// Nothing may reach the program once it stopped
	bridge.Detach()
	ctrl.Shutdown()

	if runErr != nil {
		return fmt.Errorf("error running app: %w", runErr)
	}
	return nil
}
