package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	WS      WSConfig      `mapstructure:"ws"`
	Store   StoreConfig   `mapstructure:"store"`
	Exec    ExecConfig    `mapstructure:"exec"`
	Persist PersistConfig `mapstructure:"persist"`

	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// ExecConfig controls POST /api/rooms/:id/execute. The runner starts
// interpreters with the server's own privileges, so only enable it inside a
// sandbox (a locked-down container, nsjail, gVisor).
type ExecConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxOutput int           `mapstructure:"max_output"`
	NodeBin   string        `mapstructure:"node_bin"`
	PythonBin string        `mapstructure:"python_bin"`
}

type PersistConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "coderoom-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("ws.read_limit", 1<<20)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.rate_limit", 120)
	v.SetDefault("ws.rate_window", "1s")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "./data/coderoom")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "coderoom")

	v.SetDefault("exec.enabled", false)
	v.SetDefault("exec.timeout", "5s")
	v.SetDefault("exec.max_output", 64<<10)
	v.SetDefault("exec.node_bin", "node")
	v.SetDefault("exec.python_bin", "python3")

	v.SetDefault("persist.timeout", "3s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Any key can be
// overridden with CODEROOM_<KEY>, dots becoming underscores.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CODEROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "badger", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Backpressure {
	case "kick", "drop":
	default:
		errs = append(errs, fmt.Errorf("unknown backpressure policy %q", c.Backpressure))
	}
	if c.Port <= 0 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.Exec.Timeout <= 0 {
		errs = append(errs, errors.New("exec.timeout must be positive"))
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		errs = append(errs, errors.New("ws.ping_period must be shorter than ws.pong_wait"))
	}
	return errors.Join(errs...)
}
