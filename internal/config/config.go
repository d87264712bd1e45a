package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	AuthTimeout  time.Duration `mapstructure:"auth_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	MediaBuffer  int           `mapstructure:"media_buffer"`
	HistorySize  int           `mapstructure:"history_size"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	Backpressure string        `mapstructure:"backpressure"`
	Origins      []string      `mapstructure:"allowed_origins"`
	CookieSecret string        `mapstructure:"cookie_secret"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type AuthConfig struct {
	Store         string        `mapstructure:"store"`
	DSN           string        `mapstructure:"dsn"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AllowVisitors bool          `mapstructure:"allow_visitors"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

type StreamConfig struct {
	ValidateRTP bool     `mapstructure:"validate_rtp"`
	ICEServers  []string `mapstructure:"ice_servers"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("auth_timeout", "10s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("media_buffer", 64)
	v.SetDefault("history_size", 100)
	v.SetDefault("max_body_bytes", 4096)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("cookie_secret", "")

	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "10s")

	v.SetDefault("auth.store", "memory")
	v.SetDefault("auth.dsn", "data/chatter.db")
	v.SetDefault("auth.redis_addr", "localhost:6379")
	v.SetDefault("auth.redis_password", "")
	v.SetDefault("auth.redis_db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.allow_visitors", true)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("stream.validate_rtp", false)
	v.SetDefault("stream.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "chatter")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then CHATTER_* env overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

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
	v.SetEnvPrefix("CHATTER")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("auth_store", cfg.Auth.Store).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SendBuffer <= 0 || c.MediaBuffer <= 0 {
		return errors.New("send_buffer and media_buffer must be positive")
	}
	if c.HistorySize < 0 {
		return errors.New("history_size must not be negative")
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if c.RateLimit.Messages < 0 {
		return errors.New("rate_limit.messages must not be negative")
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Interval <= 0 {
		return fmt.Errorf("rate_limit.interval (%s) must be positive when rate_limit.messages is set", c.RateLimit.Interval)
	}
	return nil
}
