package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/beacon/beacon.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "beacon", "beacon.yaml"))
	}

	paths = append(paths, "beacon.yaml")

	if envPath := os.Getenv("BEACON_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/beacon/beacon.yaml < ~/.config/beacon/beacon.yaml < ./beacon.yaml < $BEACON_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("BEACON_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.AuthToken = token
	}
	if token := os.Getenv("BEACON_GH_TOKEN"); token != "" {
		cfg.Reconcile.GHToken = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "0.0.0.0" {
		return fmt.Errorf("server.host must not be 0.0.0.0, beacon listens on localhost only (enable the tunnel for remote access)")
	}

	positive := map[string]time.Duration{
		"activity.idle_delay":          cfg.Activity.IdleDelay,
		"reconcile.interval":           cfg.Reconcile.Interval,
		"reconcile.query_timeout":      cfg.Reconcile.QueryTimeout,
		"broadcast.heartbeat_interval": cfg.Broadcast.HeartbeatInterval,
		"claims.settle_window":         cfg.Claims.SettleWindow,
		"claims.ttl":                   cfg.Claims.TTL,
		"claims.sound_interval":        cfg.Claims.SoundInterval,
		"claims.sound_settle":          cfg.Claims.SoundSettle,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if cfg.Claims.TTL <= cfg.Claims.SettleWindow {
		return fmt.Errorf("claims.ttl (%s) must exceed claims.settle_window (%s)", cfg.Claims.TTL, cfg.Claims.SettleWindow)
	}

	if cfg.Broadcast.SendBuffer < 1 {
		return fmt.Errorf("broadcast.send_buffer must be at least 1")
	}
	if cfg.Broadcast.QueueSize < 1 {
		return fmt.Errorf("broadcast.queue_size must be at least 1")
	}

	if cfg.Tunnel.Enabled && cfg.Tunnel.Provider != "ngrok" {
		return fmt.Errorf("tunnel.provider %q is not supported", cfg.Tunnel.Provider)
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.SecretFile = ExpandHome(cfg.Auth.SecretFile)
	cfg.Claims.Dir = ExpandHome(cfg.Claims.Dir)

	return nil
}
