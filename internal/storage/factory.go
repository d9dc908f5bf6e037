package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bher20/kwhmedio/internal/log"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	logger := log.Ctx(ctx).With(slog.String("driver", drv))

	switch drv {
	case "memory":
		logger.InfoContext(ctx, "storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		logger.InfoContext(ctx, "storage: using gorm backend")
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return st, nil

	case "postgrespool":
		logger.InfoContext(ctx, "storage: using pgx pool backend")
		return OpenPostgresPool(ctx, cfg.DSN)

	case "redis":
		logger.InfoContext(ctx, "storage: using redis backend")
		return OpenRedis(ctx, cfg.DSN, 0)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
