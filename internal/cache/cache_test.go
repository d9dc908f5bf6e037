package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bher20/kwhmedio/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   int    `json:"_id"`
	Name string `json:"name"`
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[[]record]()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []record{{ID: 1, Name: "Verde"}}))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []record{{ID: 1, Name: "Verde"}}, v)
}

func TestMemory_CopiesSlices(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[[]record]()

	in := []record{{ID: 1, Name: "Verde"}, {ID: 2, Name: "Amarela"}}
	require.NoError(t, c.Set(ctx, "k", in))
	in[0].Name = "Vermelha"

	got, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Verde", got[0].Name)

	got[0], got[1] = got[1], got[0]
	again, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []record{{ID: 1, Name: "Verde"}, {ID: 2, Name: "Amarela"}}, again)

	scalar := NewMemory[int]()
	require.NoError(t, scalar.Set(ctx, "n", 7))
	n, ok, err := scalar.Get(ctx, "n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, n)
}

func TestSnapshots_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	c := NewSnapshots[[]record](st)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	want := []record{{ID: 2, Name: "Amarela"}, {ID: 3, Name: "Vermelha P1"}}
	require.NoError(t, c.Set(ctx, "k", want))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	snap, err := st.GetSnapshot(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.JSONEq(t, `[{"_id":2,"name":"Amarela"},{"_id":3,"name":"Vermelha P1"}]`, string(snap.Payload))
}

func TestSnapshots_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, st.SaveSnapshot(ctx, storage.Snapshot{Key: "k", Payload: []byte("{not json")}))

	_, ok, err := NewSnapshots[[]record](st).Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, err)
}

type failingStore struct{ storage.Storage }

func (failingStore) GetSnapshot(ctx context.Context, key string) (*storage.Snapshot, error) {
	return nil, errors.New("db down")
}

func (failingStore) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	return errors.New("db down")
}

func (failingStore) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	return nil
}

func TestSnapshots_StoreErrors(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshots[[]record](failingStore{})

	_, ok, err := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "db down")
	assert.Error(t, c.Set(ctx, "k", nil))
}

func TestWriteOnly(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory[[]record]()
	c := WriteOnly[[]record](inner)

	require.NoError(t, c.Set(ctx, "k", []record{{ID: 1}}))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []record{{ID: 1}}, v)
}
