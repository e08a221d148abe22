package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultApplication is the registry name of the sidecar HTTP application.
const DefaultApplication = "main:app"

// ServerConfig controls the single listening socket owned by the process.
type ServerConfig struct {
	// Host is the bind address (SIDECAR_SERVER_HOST, default: 0.0.0.0)
	Host string `mapstructure:"host"`
	// Port is the TCP port (SIDECAR_SERVER_PORT, default: 5000)
	Port int `mapstructure:"port"`
	// App names the application served by the process (default: main:app)
	App               string        `mapstructure:"app"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig holds per client IP token bucket settings.
// RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// APIConfig holds HTTP application settings.
type APIConfig struct {
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
	TrustProxy   bool            `mapstructure:"trust_proxy"`
	DocsEnabled  bool            `mapstructure:"docs_enabled"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// GroupsConfig controls how the group directory is maintained after startup.
type GroupsConfig struct {
	Watch bool `mapstructure:"watch"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LockConfig points at the module lock files checked by `deps verify`.
type LockConfig struct {
	ModFile string `mapstructure:"mod_file"`
	SumFile string `mapstructure:"sum_file"`
}

// Config holds all configuration for the sidecar.
type Config struct {
	// DataDir is nanoclaw's shared DATA_DIR volume (NANOCLAW_DATA_DIR, default: /data)
	DataDir string `mapstructure:"data_dir"`
	// GroupsConfig is the group name to JID mapping file (GROUPS_CONFIG, default: /config/groups.json)
	GroupsConfig string `mapstructure:"groups_config"`
	// DefaultGroup is used when a send request omits the group (DEFAULT_GROUP)
	DefaultGroup string `mapstructure:"default_group"`

	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Groups  GroupsConfig  `mapstructure:"groups"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Lock    LockConfig    `mapstructure:"lock"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("data_dir", "/data")
	viper.SetDefault("groups_config", "/config/groups.json")
	viper.SetDefault("default_group", "")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("server.app", DefaultApplication)
	viper.SetDefault("server.read_header_timeout", 10*time.Second)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	viper.SetDefault("api.max_body_bytes", 1<<20) // 1MB
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.docs_enabled", true)
	viper.SetDefault("api.rate_limit.requests_per_second", 50)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("groups.watch", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("lock.mod_file", "go.mod")
	viper.SetDefault("lock.sum_file", "go.sum")
}

// loadFromEnv wires environment variables. The three nanoclaw variables keep
// their historical unprefixed names; everything else uses SIDECAR_<KEY>.
func loadFromEnv() {
	viper.SetEnvPrefix("SIDECAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("data_dir", "NANOCLAW_DATA_DIR", "SIDECAR_DATA_DIR")
	_ = viper.BindEnv("groups_config", "GROUPS_CONFIG", "SIDECAR_GROUPS_CONFIG")
	_ = viper.BindEnv("default_group", "DEFAULT_GROUP", "SIDECAR_DEFAULT_GROUP")
}

// LoadConfig loads configuration from file, defaults and environment.
// An empty configFile searches for config.yaml in the usual locations; a
// missing file is not an error, a named file that cannot be read is.
func LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/nanoclaw-sidecar")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.ResolvePaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ResolvePaths cleans configured file system paths.
func (c *Config) ResolvePaths() {
	if c.DataDir == "" {
		c.DataDir = "/data"
	}
	c.DataDir = filepath.Clean(c.DataDir)
	if c.GroupsConfig != "" {
		c.GroupsConfig = filepath.Clean(c.GroupsConfig)
	}
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprintf("%d", c.Server.Port))
}

// MessagesDir returns nanoclaw's IPC messages directory inside DataDir.
func (c *Config) MessagesDir() string {
	return filepath.Join(c.DataDir, "ipc", "main", "messages")
}

func validateConfig(config *Config) error {
	// Port 0 would let the kernel choose a port, which the bootstrap contract forbids.
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", config.Server.Port)
	}
	if config.Server.App == "" {
		return fmt.Errorf("server.app cannot be empty")
	}
	if config.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if config.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}
	if config.API.RateLimit.RequestsPerSecond > 0 && config.API.RateLimit.Burst < 1 {
		return fmt.Errorf("api.rate_limit.burst must be at least 1 when rate limiting is enabled")
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (must be debug, info, warn or error)", config.Log.Level)
	}
	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format %q (must be console or json)", config.Log.Format)
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
