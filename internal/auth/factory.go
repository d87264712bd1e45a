package auth

import (
	"fmt"

	"github.com/dkeye/Chatter/internal/config"
	"github.com/rs/zerolog/log"
)

// NewStore creates a credential store based on configuration.
func NewStore(cfg config.AuthConfig) (Store, error) {
	log.Info().Str("module", "auth").Str("store", cfg.Store).Msg("initializing credential store")
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported credential store type: %s", cfg.Store)
	}
}
