package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. BREAKOUT_SERVER_TCP_ADDR.
const EnvPrefix = "BREAKOUT"

// Config is the broker's full runtime configuration.
type Config struct {
	Server    *ServerConfig    `mapstructure:"server"`
	HTTP      *HTTPConfig      `mapstructure:"http"`
	Transport *TransportConfig `mapstructure:"transport"`
	Broker    *BrokerConfig    `mapstructure:"broker"`
	Database  *DatabaseConfig  `mapstructure:"database"`
	Log       *LogConfig       `mapstructure:"log"`
}

// ServerConfig is the raw TCP listener.
type ServerConfig struct {
	TCPAddr         string `mapstructure:"tcp_addr"`
	MaxMessageBytes int    `mapstructure:"max_message_bytes"`
}

// HTTPConfig is the status API and WebSocket gateway.
type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TransportConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
}

// BrokerConfig holds the session timing knobs.
type BrokerConfig struct {
	PresenceInterval  time.Duration `mapstructure:"presence_interval"`
	DefaultMute       time.Duration `mapstructure:"default_mute"`
	MuteSweepInterval time.Duration `mapstructure:"mute_sweep_interval"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout"`
}

// DatabaseConfig controls the audit log.
type DatabaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the settings used when neither a file nor the environment
// overrides them.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			TCPAddr:         ":7777",
			MaxMessageBytes: 1024,
		},
		HTTP: &HTTPConfig{
			Enabled:      true,
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Transport: &TransportConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			PongWait:     60 * time.Second,
		},
		Broker: &BrokerConfig{
			PresenceInterval:  200 * time.Millisecond,
			DefaultMute:       60 * time.Second,
			MuteSweepInterval: 30 * time.Second,
			LoginTimeout:      30 * time.Second,
		},
		Database: &DatabaseConfig{
			Enabled: true,
			Path:    "./data/breakout.db",
			Timeout: 30 * time.Second,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the broker cannot run with.
func (c *Config) Validate() error {
	if c.Server == nil {
		return errors.New("server configuration is required")
	}
	if c.Server.TCPAddr == "" {
		return errors.New("server tcp_addr cannot be empty")
	}
	if c.Server.MaxMessageBytes <= 0 {
		return errors.New("server max_message_bytes must be positive")
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return errors.New("HTTP addr cannot be empty")
		}
		if c.HTTP.ReadTimeout <= 0 {
			return errors.New("HTTP read timeout must be positive")
		}
		if c.HTTP.WriteTimeout <= 0 {
			return errors.New("HTTP write timeout must be positive")
		}
	}

	if c.Transport == nil {
		return errors.New("transport configuration is required")
	}
	if c.Transport.WriteTimeout < 0 {
		return errors.New("transport write timeout cannot be negative")
	}
	if c.Transport.PingInterval <= 0 {
		return errors.New("transport ping interval must be positive")
	}
	if c.Transport.PongWait <= c.Transport.PingInterval {
		return errors.New("transport pong wait must exceed the ping interval")
	}

	if c.Broker == nil {
		return errors.New("broker configuration is required")
	}
	if c.Broker.PresenceInterval <= 0 {
		return errors.New("broker presence interval must be positive")
	}
	if c.Broker.DefaultMute <= 0 {
		return errors.New("broker default mute must be positive")
	}
	if c.Broker.MuteSweepInterval <= 0 {
		return errors.New("broker mute sweep interval must be positive")
	}
	if c.Broker.LoginTimeout <= 0 {
		return errors.New("broker login timeout must be positive")
	}

	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if c.Database.Enabled {
		if c.Database.Path == "" {
			return errors.New("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return errors.New("database timeout must be positive")
		}
	}

	if c.Log == nil {
		return errors.New("log configuration is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.tcp_addr", d.Server.TCPAddr)
	v.SetDefault("server.max_message_bytes", d.Server.MaxMessageBytes)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.ping_interval", d.Transport.PingInterval)
	v.SetDefault("transport.pong_wait", d.Transport.PongWait)

	v.SetDefault("broker.presence_interval", d.Broker.PresenceInterval)
	v.SetDefault("broker.default_mute", d.Broker.DefaultMute)
	v.SetDefault("broker.mute_sweep_interval", d.Broker.MuteSweepInterval)
	v.SetDefault("broker.login_timeout", d.Broker.LoginTimeout)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.timeout", d.Database.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load builds the configuration with precedence env > file > defaults. When path is
// empty, breakout.yaml (or .json/.toml) in the working directory is used if present;
// an explicit path that cannot be read is an error.
func Load(logger *slog.Logger, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("breakout")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Debug("No config file found, using defaults and environment")
	} else {
		logger.Info("Loaded config file", slog.String("path", v.ConfigFileUsed()))
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
