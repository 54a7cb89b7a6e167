package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitevault/protocol"
)

// mapKV is an in-memory KV for tests. TTLs are recorded but never enforced.
type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapKV() *mapKV {
	return &mapKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mapKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

func (m *mapKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	return raw, ok, nil
}

func (m *mapKV) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func sampleEntries(n int) []protocol.FileEntry {
	out := make([]protocol.FileEntry, n)
	for i := range out {
		out[i] = protocol.FileEntry{
			Path:  fmt.Sprintf("wp-content/uploads/img-%04d.jpg", i),
			Size:  int64(100 + i),
			MTime: 1700000000 + int64(i),
		}
	}
	return out
}

func TestManifestRoundTrip(t *testing.T) {
	kv := newMapKV()
	store := NewFromKV(kv, time.Minute)
	ctx := context.Background()
	entries := sampleEntries(4500)

	require.NoError(t, store.SaveManifest(ctx, "job-1", entries))

	// 4500 entries split across three chunk values plus one meta record.
	assert.Len(t, kv.data, 4)
	for key, ttl := range kv.ttls {
		assert.Equal(t, time.Minute, ttl, key)
	}

	got, err := store.LoadManifest(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestManifestEmpty(t *testing.T) {
	store := NewFromKV(newMapKV(), time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveManifest(ctx, "job-1", nil))
	got, err := store.LoadManifest(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestManifestUnknownJob(t *testing.T) {
	store := NewFromKV(newMapKV(), time.Minute)
	_, err := store.LoadManifest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManifestDelete(t *testing.T) {
	kv := newMapKV()
	store := NewFromKV(kv, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveManifest(ctx, "job-1", sampleEntries(2500)))
	require.NoError(t, store.DeleteManifest(ctx, "job-1"))

	_, err := store.LoadManifest(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, kv.data, "no chunk keys left behind")

	assert.NoError(t, store.DeleteManifest(ctx, "job-1"), "second delete is a no-op")
}

// A manifest with an expired chunk must read as missing, never as a shorter
// list than was saved.
func TestManifestMissingChunkIsNotFound(t *testing.T) {
	kv := newMapKV()
	store := NewFromKV(kv, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveManifest(ctx, "job-1", sampleEntries(4500)))
	require.NoError(t, kv.Del(ctx, manifestChunkKey("job-1", 1)))

	_, err := store.LoadManifest(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCursorRoundTrip(t *testing.T) {
	store := NewFromKV(newMapKV(), time.Minute)
	ctx := context.Background()

	_, err := store.LoadCursor(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveCursor(ctx, "job-1", "opaque-token"))
	got, err := store.LoadCursor(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", got)

	// Overwrite wins.
	require.NoError(t, store.SaveCursor(ctx, "job-1", "newer-token"))
	got, err = store.LoadCursor(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "newer-token", got)

	require.NoError(t, store.DeleteCursor(ctx, "job-1"))
	_, err = store.LoadCursor(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSplitEntries(t *testing.T) {
	assert.Nil(t, splitEntries(nil, 10))

	chunks := splitEntries(sampleEntries(25), 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[2], 5)
}
