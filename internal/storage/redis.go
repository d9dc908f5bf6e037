package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisSnapshotPrefix = "kwhmedio:snapshot:"
	redisSettingPrefix  = "kwhmedio:setting:"
	redisJobPrefix      = "kwhmedio:job:"

	redisLockTTL = 30 * time.Minute
)

// releaseLock deletes a lock only while it still holds the caller's token.
var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStorage keeps snapshots as plain redis values. Every key is written
// independently, so concurrent refreshes of different keys never contend.
type RedisStorage struct {
	rdb *redis.Client
	// ttl bounds how long a snapshot survives without a refresh. Zero keeps
	// snapshots forever.
	ttl time.Duration

	mu sync.Mutex
	// locks maps held lock keys to the token written on acquire.
	locks map[int64]string
}

// OpenRedis connects to addr (host:port or a redis:// URL).
func OpenRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisStorage, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisStorage{rdb: rdb, ttl: ttl, locks: map[int64]string{}}, nil
}

func (s *RedisStorage) Close() error { return s.rdb.Close() }

func (s *RedisStorage) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStorage) GetSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, redisSnapshotPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *RedisStorage) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisSnapshotPrefix+snap.Key, raw, s.ttl).Err()
}

func (s *RedisStorage) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, redisSettingPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisStorage) SetSetting(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, redisSettingPrefix+key, value, 0).Err()
}

func (s *RedisStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	return s.rdb.HSet(ctx, redisJobPrefix+name,
		"last_run_at", started.Format(time.RFC3339),
		"last_duration_ms", dur.Milliseconds(),
		"last_success", status,
		"last_error", errMsg,
	).Err()
}

// AcquireAdvisoryLock uses SET NX with a safety expiry so a crashed holder
// cannot wedge the lock. Each acquisition writes a fresh token.
func (s *RedisStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, redisLockKey(key), token, redisLockTTL).Result()
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.locks[key] = token
	s.mu.Unlock()
	return true, nil
}

// ReleaseAdvisoryLock deletes the lock only if it still carries the token
// of our acquisition. A lock that expired and was taken by another holder
// is left alone and false is returned.
func (s *RedisStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	token, ok := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	n, err := releaseLock.Run(ctx, s.rdb, []string{redisLockKey(key)}, token).Int()
	return n > 0, err
}

func redisLockKey(key int64) string {
	return "kwhmedio:lock:" + strconv.FormatInt(key, 10)
}
