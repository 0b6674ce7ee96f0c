package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aeolun/tower/pkg/server"
)

// DefaultPath is where the config file lives unless --config says otherwise
const DefaultPath = "~/.tower/config.toml"

// Recommended polling range. Values outside it are accepted but logged.
const (
	MinRecommendedPollInterval = 2000 * time.Millisecond
	MaxRecommendedPollInterval = 2500 * time.Millisecond
)

// TOMLConfig represents the structure of the config file
type TOMLConfig struct {
	Client        ClientSection        `toml:"client"`
	Sync          SyncSection          `toml:"sync"`
	Scroll        ScrollSection        `toml:"scroll"`
	Notifications NotificationsSection `toml:"notifications"`
	Metrics       MetricsSection       `toml:"metrics"`
	Server        ServerSection        `toml:"server"`
}

type ClientSection struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	UseTLS    bool   `toml:"use_tls"`
	StatePath string `toml:"state_path"`
	LogPath   string `toml:"log_path"`
}

type SyncSection struct {
	PollIntervalMs   int  `toml:"poll_interval_ms"`
	RequestTimeoutMs int  `toml:"request_timeout_ms"`
	LoadHistory      bool `toml:"load_history"`
}

type ScrollSection struct {
	BottomThreshold int `toml:"bottom_threshold"`
	SettleDelayMs   int `toml:"settle_delay_ms"`
}

type NotificationsSection struct {
	Desktop bool `toml:"desktop"`
}

type MetricsSection struct {
	Addr string `toml:"addr"`
}

type ServerSection struct {
	RACAddr          string `toml:"rac_addr"`
	WRACAddr         string `toml:"wrac_addr"`
	MaxMessageLength int    `toml:"max_message_length"`
}

// DefaultTOMLConfig returns the default configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Client: ClientSection{
			StatePath: "~/.tower/state.db",
			LogPath:   "~/.tower/tower.log",
		},
		Sync: SyncSection{
			PollIntervalMs:   2500,
			RequestTimeoutMs: 10000,
		},
		Scroll: ScrollSection{
			BottomThreshold: 10,
			SettleDelayMs:   10,
		},
		Notifications: NotificationsSection{
			Desktop: true,
		},
		Server: ServerSection{
			RACAddr:          ":42666",
			WRACAddr:         ":52666",
			MaxMessageLength: 4096,
		},
	}
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// A read-only home still gets a working client
		_ = writeDefaultConfig(path)
		config := applyEnvOverrides(DefaultTOMLConfig())
		if err := config.Validate(); err != nil {
			return TOMLConfig{}, err
		}
		return config, nil
	}

	// Start from defaults so keys missing from the file keep their default
	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	config = applyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return TOMLConfig{}, err
	}
	return config, nil
}

// Validate rejects values the client cannot run with
func (c TOMLConfig) Validate() error {
	if c.Sync.PollIntervalMs <= 0 {
		return fmt.Errorf("sync.poll_interval_ms must be positive, got %d", c.Sync.PollIntervalMs)
	}
	if c.Sync.RequestTimeoutMs <= 0 {
		return fmt.Errorf("sync.request_timeout_ms must be positive, got %d", c.Sync.RequestTimeoutMs)
	}
	if c.Scroll.BottomThreshold < 0 {
		return fmt.Errorf("scroll.bottom_threshold must not be negative, got %d", c.Scroll.BottomThreshold)
	}
	if c.Scroll.SettleDelayMs < 0 {
		return fmt.Errorf("scroll.settle_delay_ms must not be negative, got %d", c.Scroll.SettleDelayMs)
	}
	return nil
}

// PollInterval returns the sync interval
func (c TOMLConfig) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

// PollIntervalRecommended reports whether the interval is in the usual range
func (c TOMLConfig) PollIntervalRecommended() bool {
	d := c.PollInterval()
	return d >= MinRecommendedPollInterval && d <= MaxRecommendedPollInterval
}

// RequestTimeout returns the per-request network timeout
func (c TOMLConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Sync.RequestTimeoutMs) * time.Millisecond
}

// SettleDelay returns the scroll settle delay
func (c TOMLConfig) SettleDelay() time.Duration {
	return time.Duration(c.Scroll.SettleDelayMs) * time.Millisecond
}

// GetStatePath returns the state database path with ~ expanded
func (c TOMLConfig) GetStatePath() (string, error) {
	return ExpandPath(c.Client.StatePath)
}

// GetLogPath returns the log file path with ~ expanded
func (c TOMLConfig) GetLogPath() (string, error) {
	return ExpandPath(c.Client.LogPath)
}

// ToServerConfig converts the [server] section to a dev server config
func (c TOMLConfig) ToServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.RACAddr = c.Server.RACAddr
	cfg.WRACAddr = c.Server.WRACAddr
	if c.Server.MaxMessageLength != 0 {
		cfg.MaxMessageLength = c.Server.MaxMessageLength
	}
	if c.Sync.RequestTimeoutMs > 0 {
		cfg.RequestTimeout = c.RequestTimeout()
	}
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: TOWER_SECTION_KEY
// Example: TOWER_SYNC_POLL_INTERVAL_MS=2000
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	// Client section
	if val := os.Getenv("TOWER_CLIENT_ADDRESS"); val != "" {
		config.Client.Address = val
	}
	if val := os.Getenv("TOWER_CLIENT_USERNAME"); val != "" {
		config.Client.Username = val
	}
	if val := os.Getenv("TOWER_CLIENT_USE_TLS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Client.UseTLS = b
		}
	}
	if val := os.Getenv("TOWER_CLIENT_STATE_PATH"); val != "" {
		config.Client.StatePath = val
	}
	if val := os.Getenv("TOWER_CLIENT_LOG_PATH"); val != "" {
		config.Client.LogPath = val
	}

	// Sync section
	if val := os.Getenv("TOWER_SYNC_POLL_INTERVAL_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Sync.PollIntervalMs = ms
		}
	}
	if val := os.Getenv("TOWER_SYNC_REQUEST_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Sync.RequestTimeoutMs = ms
		}
	}
	if val := os.Getenv("TOWER_SYNC_LOAD_HISTORY"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Sync.LoadHistory = b
		}
	}

	// Scroll section
	if val := os.Getenv("TOWER_SCROLL_BOTTOM_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Scroll.BottomThreshold = n
		}
	}
	if val := os.Getenv("TOWER_SCROLL_SETTLE_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Scroll.SettleDelayMs = ms
		}
	}

	// Notifications section
	if val := os.Getenv("TOWER_NOTIFICATIONS_DESKTOP"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Notifications.Desktop = b
		}
	}

	// Metrics section
	if val := os.Getenv("TOWER_METRICS_ADDR"); val != "" {
		config.Metrics.Addr = val
	}

	// Server section
	if val := os.Getenv("TOWER_SERVER_RAC_ADDR"); val != "" {
		config.Server.RACAddr = val
	}
	if val := os.Getenv("TOWER_SERVER_WRAC_ADDR"); val != "" {
		config.Server.WRACAddr = val
	}
	if val := os.Getenv("TOWER_SERVER_MAX_MESSAGE_LENGTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Server.MaxMessageLength = n
		}
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# Tower Configuration
# This file was auto-generated with default values
# Commented settings show available options with their defaults
#
# Environment variables can override these settings:
# TOWER_SECTION_KEY (e.g., TOWER_SYNC_POLL_INTERVAL_MS=2000)

[client]
# Pre-fills the connect form (rac://host[:port] or wrac://host[:port])
# address = "rac://localhost:42666"
# username = ""
use_tls = false

# Remembered connect details and connection history
state_path = "~/.tower/state.db"

# The terminal UI owns stdout, so logs go here
log_path = "~/.tower/tower.log"

[sync]
# How often to poll the server for new messages (2000-2500 recommended)
poll_interval_ms = 2500

# Timeout for a single request to the server
request_timeout_ms = 10000

# Fetch the whole server log on connect instead of only new messages
load_history = false

[scroll]
# Rows from the bottom that still count as "at the bottom"
bottom_threshold = 10

# Delay before following new messages, so the view can size them first
settle_delay_ms = 10

[notifications]
# Desktop notifications for connection, sync and send errors
desktop = true

[metrics]
# Serve Prometheus metrics on this address (empty = disabled)
# addr = "127.0.0.1:9091"

[server]
# Listen addresses for "tower serve" (empty disables that transport)
rac_addr = ":42666"
wrac_addr = ":52666"

# Maximum message length in bytes
max_message_length = 4096
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
