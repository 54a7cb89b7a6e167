package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sitevault/protocol"
)

var ErrNotFound = errors.New("job not found")

const (
	// DefaultTTL bounds how long an abandoned job survives. Every write
	// refreshes it, so a live job never expires mid-run.
	DefaultTTL = 15 * time.Minute

	// entriesPerChunk splits large manifests across values so no single
	// value exceeds the store's practical size ceiling.
	entriesPerChunk = 2000
)

// KV is the narrow slice of redis the store needs; tests substitute an
// in-memory map.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, keys ...string) error
}

type redisKV struct {
	rdb *redis.Client
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *redisKV) Del(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

// Store persists per-job state (partitioned manifests and export cursors)
// under a TTL so abandoned jobs clean themselves up.
type Store struct {
	kv  KV
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return NewFromKV(&redisKV{rdb: rdb}, ttl)
}

// NewFromKV builds a store on any KV backend.
func NewFromKV(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

type manifestMeta struct {
	CreatedAt  int64 `json:"created_at"`
	TotalFiles int   `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
	ChunkCount int   `json:"chunk_count"`
}

func manifestMetaKey(jobID string) string { return "sitevault:manifest:" + jobID + ":meta" }
func manifestChunkKey(jobID string, n int) string {
	return fmt.Sprintf("sitevault:manifest:%s:chunk:%d", jobID, n)
}
func cursorKey(jobID string) string { return "sitevault:export:" + jobID + ":cursor" }

// SaveManifest writes the entry list in chunks, then the metadata record.
// Writing meta last means a reader never sees meta pointing at chunks that
// do not exist yet.
func (s *Store) SaveManifest(ctx context.Context, jobID string, entries []protocol.FileEntry) error {
	chunks := splitEntries(entries, entriesPerChunk)
	var totalBytes int64
	for _, e := range entries {
		totalBytes += e.Size
	}
	for i, chunk := range chunks {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("marshal manifest chunk: %w", err)
		}
		if err := s.kv.Set(ctx, manifestChunkKey(jobID, i), raw, s.ttl); err != nil {
			return fmt.Errorf("store manifest chunk %d: %w", i, err)
		}
	}
	meta := manifestMeta{
		CreatedAt:  time.Now().Unix(),
		TotalFiles: len(entries),
		TotalBytes: totalBytes,
		ChunkCount: len(chunks),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal manifest meta: %w", err)
	}
	if err := s.kv.Set(ctx, manifestMetaKey(jobID), raw, s.ttl); err != nil {
		return fmt.Errorf("store manifest meta: %w", err)
	}
	return nil
}

// LoadManifest reassembles the full entry list. A missing chunk or a length
// mismatch is reported as ErrNotFound, never as a truncated result.
func (s *Store) LoadManifest(ctx context.Context, jobID string) ([]protocol.FileEntry, error) {
	raw, ok, err := s.kv.Get(ctx, manifestMetaKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("load manifest meta: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	var meta manifestMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode manifest meta: %w", err)
	}
	entries := make([]protocol.FileEntry, 0, meta.TotalFiles)
	for i := 0; i < meta.ChunkCount; i++ {
		raw, ok, err := s.kv.Get(ctx, manifestChunkKey(jobID, i))
		if err != nil {
			return nil, fmt.Errorf("load manifest chunk %d: %w", i, err)
		}
		if !ok {
			return nil, ErrNotFound
		}
		var chunk []protocol.FileEntry
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("decode manifest chunk %d: %w", i, err)
		}
		entries = append(entries, chunk...)
	}
	if len(entries) != meta.TotalFiles {
		return nil, ErrNotFound
	}
	return entries, nil
}

// DeleteManifest removes the meta record and every chunk. Best effort: a
// chunk left behind expires with the TTL.
func (s *Store) DeleteManifest(ctx context.Context, jobID string) error {
	raw, ok, err := s.kv.Get(ctx, manifestMetaKey(jobID))
	if err != nil {
		return fmt.Errorf("load manifest meta: %w", err)
	}
	if !ok {
		return nil
	}
	var meta manifestMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		meta.ChunkCount = 0
	}
	keys := []string{manifestMetaKey(jobID)}
	for i := 0; i < meta.ChunkCount; i++ {
		keys = append(keys, manifestChunkKey(jobID, i))
	}
	return s.kv.Del(ctx, keys...)
}

// SaveCursor persists the encoded export cursor for a job, refreshing the
// TTL on every slice.
func (s *Store) SaveCursor(ctx context.Context, jobID, token string) error {
	if err := s.kv.Set(ctx, cursorKey(jobID), []byte(token), s.ttl); err != nil {
		return fmt.Errorf("store cursor: %w", err)
	}
	return nil
}

func (s *Store) LoadCursor(ctx context.Context, jobID string) (string, error) {
	raw, ok, err := s.kv.Get(ctx, cursorKey(jobID))
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return string(raw), nil
}

func (s *Store) DeleteCursor(ctx context.Context, jobID string) error {
	return s.kv.Del(ctx, cursorKey(jobID))
}

func splitEntries(entries []protocol.FileEntry, per int) [][]protocol.FileEntry {
	if len(entries) == 0 {
		return nil
	}
	chunks := make([][]protocol.FileEntry, 0, (len(entries)+per-1)/per)
	for start := 0; start < len(entries); start += per {
		end := start + per
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}
