package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/markus/pkg/templating"
)

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DatabasePath string `json:"database_path"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
	CacheEnabled bool   `json:"cache_enabled"`
	// CacheMaxAgeHours is used by prune requests that do not name an age.
	CacheMaxAgeHours int `json:"cache_max_age_hours"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig         `json:"server_config"`
	Tags   *templating.TagConfig `json:"tag_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:          ":7290",
		LogLevel:         "info",
		DatabasePath:     "./data/markus.db?_journal_mode=WAL&_busy_timeout=5000",
		MaxBodyBytes:     1 << 20,
		CacheEnabled:     true,
		CacheMaxAgeHours: 24 * 7,
	}
}

// DefaultConfig returns a Config with every section set to its defaults.
func DefaultConfig() *Config {
	tags := templating.DefaultConfig()
	return &Config{
		Server: DefaultServerConfig(),
		Tags:   &tags,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Tags == nil {
		config.Tags = DefaultConfig().Tags
	}
	return config, nil
}

// parseLogLevel maps a config log level to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigManager handles thread-safe access to the configuration and keeps the
// tag manager in step with it.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TagManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetTagManager registers the tag manager to receive config updates.
func (cm *ConfigManager) SetTagManager(tm *templating.TagManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Tags)
	}
}

func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	tags := *cm.config.Tags
	return Config{Server: &server, Tags: &tags}
}

// Update validates the new configuration against the tag manager, saves it
// to disk and makes it current. A tag configuration whose directory fails to
// load is rejected and the previous one stays active.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Tags == nil {
		return fmt.Errorf("configuration must contain server_config and tag_config")
	}

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldTags := cm.config.Tags
	rollback := func() {
		if cm.tm != nil {
			cm.tm.SetConfig(oldTags)
			_ = cm.tm.Refresh()
		}
	}
	if cm.tm != nil {
		cm.tm.SetConfig(newConfig.Tags)
		if err = cm.tm.Refresh(); err != nil {
			rollback()
			return fmt.Errorf("tag configuration rejected: %w", err)
		}
	}

	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		rollback()
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig
	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}
