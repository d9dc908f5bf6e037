// Package cache holds the last-known-good fallback used by the ANEEL
// client when the live API is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/bher20/kwhmedio/internal/storage"
)

// Cache is a keyed store of values of type T. Get reports false when the key
// has never been written.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
}

// Memory is a process-local Cache. Keys are independent; there is no lock
// shared across keys. Slice values are copied on Set and on Get so callers
// can sort or edit what they hold without touching the cached copy.
type Memory[T any] struct {
	m sync.Map
}

// NewMemory returns an empty in-memory cache.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (c *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	v, ok := c.m.Load(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	return clone(v.(T)), true, nil
}

func (c *Memory[T]) Set(ctx context.Context, key string, value T) error {
	c.m.Store(key, clone(value))
	return nil
}

// clone copies the backing array of a slice value. Other kinds are returned
// as they are.
func clone[T any](v T) T {
	rv := reflect.ValueOf(&v).Elem()
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out.Interface().(T)
}

// Snapshots persists values as JSON snapshots in a storage backend.
type Snapshots[T any] struct {
	store storage.Storage
}

// NewSnapshots wraps st as a typed Cache.
func NewSnapshots[T any](st storage.Storage) *Snapshots[T] {
	return &Snapshots[T]{store: st}
}

func (c *Snapshots[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	snap, err := c.store.GetSnapshot(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if snap == nil || len(snap.Payload) == 0 {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(snap.Payload, &v); err != nil {
		return zero, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return v, true, nil
}

func (c *Snapshots[T]) Set(ctx context.Context, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.store.SaveSnapshot(ctx, storage.Snapshot{
		Key:       key,
		Payload:   payload,
		FetchedAt: time.Now(),
	})
}

// WriteOnly wraps c so that reads always miss. A client given a write-only
// cache refreshes it on success but never serves from it, which is what a
// warm-up run needs to see real upstream failures.
func WriteOnly[T any](c Cache[T]) Cache[T] {
	return writeOnly[T]{c}
}

type writeOnly[T any] struct {
	next Cache[T]
}

func (w writeOnly[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (w writeOnly[T]) Set(ctx context.Context, key string, value T) error {
	return w.next.Set(ctx, key, value)
}
