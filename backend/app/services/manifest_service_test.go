package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitevault/backend/app/jobstore"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	return raw, ok, nil
}

func (m *memKV) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestManifestWalkAndPage(t *testing.T) {
	root := newSiteRoot(t, map[string]string{
		"index.php":                "<?php",
		"wp-content/uploads/a.jpg": "aaaa",
		"wp-content/themes/x.css":  "body{}",
	})
	// Workspace under the site root must never appear in a manifest.
	workspace := filepath.Join(root, ".sitevault")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "database.sql"), []byte("-- dump"), 0o644))

	store := jobstore.NewFromKV(newMemKV(), time.Minute)
	svc := NewManifestService(store, root, workspace)
	ctx := context.Background()

	init, err := svc.InitJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, init.TotalFiles)
	assert.Equal(t, int64(5+4+6), init.TotalBytes)

	page, err := svc.Page(ctx, init.JobID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page.Files, 2)
	assert.Equal(t, 3, page.TotalFiles)

	page, err = svc.Page(ctx, init.JobID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Files, 1)

	seen := map[string]bool{}
	for _, offset := range []int{0, 2} {
		p, err := svc.Page(ctx, init.JobID, offset, 2)
		require.NoError(t, err)
		for _, f := range p.Files {
			assert.False(t, seen[f.Path], "duplicate entry %s", f.Path)
			seen[f.Path] = true
			assert.NotContains(t, f.Path, ".sitevault")
		}
	}
	assert.Len(t, seen, 3)

	// Out-of-range pages are empty, not errors.
	page, err = svc.Page(ctx, init.JobID, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Files)

	require.NoError(t, svc.Finish(ctx, init.JobID))
	_, err = svc.Page(ctx, init.JobID, 0, 10)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManifestPageUnknownJob(t *testing.T) {
	store := jobstore.NewFromKV(newMemKV(), time.Minute)
	svc := NewManifestService(store, t.TempDir())
	_, err := svc.Page(context.Background(), "missing", 0, 10)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
