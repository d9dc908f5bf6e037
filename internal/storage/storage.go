package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for cache snapshots, runtime settings and
// scheduled job bookkeeping.
type Storage interface {
	// Snapshots
	GetSnapshot(ctx context.Context, key string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Scheduled jobs
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}

// Locker is implemented by backends that can coordinate several replicas.
type Locker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
}
