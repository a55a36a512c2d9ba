// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = 30 * time.Second
	defaultDatabasePath              = "./data/simulcast.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultDatabaseEnableWAL         = true
	defaultMigrationsPath            = "file://./migrations"
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false

	defaultChannelName  = "Simulcast"
	defaultChannelEpoch = "2023-01-01T00:00:00Z"

	defaultSyncTickInterval        = time.Second
	defaultSyncDriftThreshold      = 0.2
	defaultSyncReadyCheckDelay     = 500 * time.Millisecond
	defaultSyncReadyDriftThreshold = 0.2
	defaultSyncEndCooldown         = 500 * time.Millisecond
	defaultSyncStalenessWindow     = 2 * time.Second
	defaultSyncPlayerRetryBackoff  = 3 * time.Second
	defaultSyncInitRetryBackoff    = time.Second
	defaultSyncAnnounceDelay       = time.Second
	defaultSyncCrossCheckTTL       = 5 * time.Second
	defaultSyncCrossCheckInterval  = 30 * time.Second
	defaultSyncUpcomingCount       = 10
	defaultSyncBroadcastName       = "simulcast-sync"
	defaultSyncServerURL           = "http://localhost:8080"

	defaultMetricsEnabled = true
	defaultMetricsPath    = "/metrics"

	envPrefix = "SIMULCAST"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Channel  ChannelConfig
	Sync     SyncConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	EnableWAL         bool
	MigrationsPath    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// ChannelConfig describes the broadcast channel: its epoch and program lineup.
// When Programs is empty the lineup already stored in the database is used.
type ChannelConfig struct {
	Name string

	// Epoch is an RFC3339 instant. Changing it moves every viewer to a different position.
	Epoch string

	// AllowEpochChange permits starting with an epoch that differs from the stored one
	AllowEpochChange bool

	Programs []ProgramConfig
}

// ProgramConfig is one program of the configured lineup
type ProgramConfig struct {
	ID          string
	MediaRef    string
	Title       string
	Description string
	Category    string
	Language    string
	Thumbnail   string
	Duration    int64 // seconds
}

// SyncConfig holds client reconciliation tuning
type SyncConfig struct {
	TickInterval        time.Duration
	DriftThreshold      float64 // seconds
	ReadyCheckDelay     time.Duration
	ReadyDriftThreshold float64 // seconds
	EndCooldown         time.Duration
	StalenessWindow     time.Duration
	PlayerRetryBackoff  time.Duration
	InitRetryBackoff    time.Duration
	AnnounceDelay       time.Duration
	CrossCheckTTL       time.Duration
	CrossCheckInterval  time.Duration
	UpcomingCount       int
	BroadcastName       string
	ServerURL           string
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the default locations.
func LoadFrom(configFile string) (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/simulcast")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.enablewal", defaultDatabaseEnableWAL)
	v.SetDefault("database.migrationspath", defaultMigrationsPath)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("channel.name", defaultChannelName)
	v.SetDefault("channel.epoch", defaultChannelEpoch)
	v.SetDefault("channel.allowepochchange", false)

	v.SetDefault("sync.tickinterval", defaultSyncTickInterval)
	v.SetDefault("sync.driftthreshold", defaultSyncDriftThreshold)
	v.SetDefault("sync.readycheckdelay", defaultSyncReadyCheckDelay)
	v.SetDefault("sync.readydriftthreshold", defaultSyncReadyDriftThreshold)
	v.SetDefault("sync.endcooldown", defaultSyncEndCooldown)
	v.SetDefault("sync.stalenesswindow", defaultSyncStalenessWindow)
	v.SetDefault("sync.playerretrybackoff", defaultSyncPlayerRetryBackoff)
	v.SetDefault("sync.initretrybackoff", defaultSyncInitRetryBackoff)
	v.SetDefault("sync.announcedelay", defaultSyncAnnounceDelay)
	v.SetDefault("sync.crosscheckttl", defaultSyncCrossCheckTTL)
	v.SetDefault("sync.crosscheckinterval", defaultSyncCrossCheckInterval)
	v.SetDefault("sync.upcomingcount", defaultSyncUpcomingCount)
	v.SetDefault("sync.broadcastname", defaultSyncBroadcastName)
	v.SetDefault("sync.serverurl", defaultSyncServerURL)

	v.SetDefault("metrics.enabled", defaultMetricsEnabled)
	v.SetDefault("metrics.path", defaultMetricsPath)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q (must start with /)", c.Metrics.Path)
	}

	return nil
}

// Validate checks the channel epoch and lineup
func (c *ChannelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("channel name is required")
	}
	if _, err := c.EpochTime(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Programs))
	for i, p := range c.Programs {
		if p.MediaRef == "" {
			return fmt.Errorf("program %d: media reference is required", i)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("program %d (%s): invalid duration %d (must be > 0)", i, p.MediaRef, p.Duration)
		}
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("program %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// EpochTime parses the configured epoch
func (c *ChannelConfig) EpochTime() (time.Time, error) {
	epoch, err := time.Parse(time.RFC3339, c.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid channel epoch %q (must be RFC3339): %w", c.Epoch, err)
	}
	return epoch.UTC(), nil
}

// Validate checks reconciliation timings
func (c *SyncConfig) Validate() error {
	durations := map[string]time.Duration{
		"tick interval":        c.TickInterval,
		"ready check delay":    c.ReadyCheckDelay,
		"end cooldown":         c.EndCooldown,
		"staleness window":     c.StalenessWindow,
		"player retry backoff": c.PlayerRetryBackoff,
		"init retry backoff":   c.InitRetryBackoff,
		"cross-check ttl":      c.CrossCheckTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("invalid sync %s: %v (must be > 0)", name, d)
		}
	}

	if c.AnnounceDelay < 0 || c.CrossCheckInterval < 0 {
		return errors.New("sync announce delay and cross-check interval must not be negative")
	}
	if c.DriftThreshold <= 0 || c.ReadyDriftThreshold <= 0 {
		return fmt.Errorf("invalid sync drift thresholds: %v/%v (must be > 0)", c.DriftThreshold, c.ReadyDriftThreshold)
	}
	if c.UpcomingCount < 0 {
		return fmt.Errorf("invalid sync upcoming count: %d", c.UpcomingCount)
	}
	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
