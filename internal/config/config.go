package config

import "time"

// Config is the root configuration for Beacon.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Database      DatabaseConfig      `yaml:"database"`
	Activity      ActivityConfig      `yaml:"activity"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Broadcast     BroadcastConfig     `yaml:"broadcast"`
	Claims        ClaimsConfig        `yaml:"claims"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Tunnel        TunnelConfig        `yaml:"tunnel"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

type AuthConfig struct {
	// SecretFile holds the bearer token clients present. Created on first run.
	SecretFile     string   `yaml:"secret_file"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type ActivityConfig struct {
	IdleDelay time.Duration `yaml:"idle_delay"`
}

type ReconcileConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	GHPath       string        `yaml:"gh_path"`
	GHToken      string        `yaml:"gh_token"`
}

type BroadcastConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendBuffer        int           `yaml:"send_buffer"`
	QueueSize         int           `yaml:"queue_size"`
}

type ClaimsConfig struct {
	Dir           string        `yaml:"dir"`
	SettleWindow  time.Duration `yaml:"settle_window"`
	TTL           time.Duration `yaml:"ttl"`
	SoundInterval time.Duration `yaml:"sound_interval"`
	SoundSettle   time.Duration `yaml:"sound_settle"`
}

type NotificationsConfig struct {
	MCP     bool `yaml:"mcp"`
	Desktop bool `yaml:"desktop"`
}

type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8421,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			SecretFile: "~/.config/beacon/secret",
		},
		Database: DatabaseConfig{
			Path:          "~/.config/beacon/beacon.db",
			RetentionDays: 90,
		},
		Activity: ActivityConfig{
			IdleDelay: 1500 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			Enabled:      true,
			Interval:     60 * time.Second,
			QueryTimeout: 15 * time.Second,
			GHPath:       "gh",
		},
		Broadcast: BroadcastConfig{
			HeartbeatInterval: 30 * time.Second,
			SendBuffer:        64,
			QueueSize:         1024,
		},
		Claims: ClaimsConfig{
			Dir:           "~/.config/beacon/claims",
			SettleWindow:  50 * time.Millisecond,
			TTL:           10 * time.Second,
			SoundInterval: 2 * time.Second,
			SoundSettle:   20 * time.Millisecond,
		},
		Notifications: NotificationsConfig{
			MCP: true,
		},
		Tunnel: TunnelConfig{
			Provider: "ngrok",
		},
	}
}
