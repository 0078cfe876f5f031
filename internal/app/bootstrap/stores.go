package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dentbot/internal/bookings"
	appconfig "github.com/wolfman30/dentbot/internal/config"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/pkg/logging"
)

var (
	// ErrUnknownStore is returned when BOOKING_STORE or SESSION_STORE names
	// an unsupported backend.
	ErrUnknownStore = errors.New("bootstrap: unknown store backend")
	// ErrStoreUnavailable is returned when the selected backend has no
	// connection to run on.
	ErrStoreUnavailable = errors.New("bootstrap: store backend unavailable")
)

// BuildBookingStore selects the appointment store named by cfg.BookingStore.
// The postgres store needs a pool; without one it is an error rather than a
// silent downgrade, since the in-process store cannot arbitrate between
// replicas.
func BuildBookingStore(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (bookings.Store, string, error) {
	if cfg == nil {
		return nil, "", errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.BookingStore {
	case "", "postgres":
		if pool == nil {
			return nil, "postgres", fmt.Errorf("%w: postgres booking store needs DATABASE_URL", ErrStoreUnavailable)
		}
		return bookings.NewPostgresStore(pool), "postgres", nil
	case "sqlite":
		store, err := bookings.OpenSQLiteStore(cfg.SQLiteDSN)
		if err != nil {
			return nil, "sqlite", err
		}
		return store, "sqlite", nil
	case "memory":
		logger.Warn("using in-memory booking store; appointments are lost on restart")
		return bookings.NewMemoryStore(), "memory", nil
	default:
		return nil, cfg.BookingStore, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.BookingStore)
	}
}

// BuildTurnStore selects the session store named by cfg.SessionStore. A
// missing Redis client degrades to the in-memory store with a warning.
func BuildTurnStore(cfg *appconfig.Config, redisClient *redis.Client, sqlDB *sql.DB, logger *logging.Logger) (conversation.TurnStore, string, error) {
	if cfg == nil {
		return nil, "", errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionStore {
	case "", "redis":
		if redisClient == nil {
			logger.Warn("redis unavailable; falling back to in-memory session store")
			return conversation.NewMemoryTurnStore(), "memory", nil
		}
		return conversation.NewRedisTurnStore(redisClient, cfg.SessionTTL), "redis", nil
	case "postgres":
		if sqlDB == nil {
			return nil, "postgres", fmt.Errorf("%w: postgres session store needs DATABASE_URL", ErrStoreUnavailable)
		}
		return conversation.NewPostgresTurnStore(sqlDB), "postgres", nil
	case "memory":
		return conversation.NewMemoryTurnStore(), "memory", nil
	default:
		return nil, cfg.SessionStore, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.SessionStore)
	}
}
