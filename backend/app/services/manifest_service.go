package services

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sitevault/backend/app/jobstore"
	"sitevault/backend/global"
	"sitevault/protocol"
)

// ManifestService enumerates the site's file tree into a TTL-bounded job so
// the agent can page through it across requests.
type ManifestService struct {
	store    *jobstore.Store
	siteRoot string
	// skip holds absolute paths never included in a manifest, e.g. the
	// export workspace when it lives under the site root.
	skip []string
}

func NewManifestService(store *jobstore.Store, siteRoot string, skip ...string) *ManifestService {
	abs := make([]string, 0, len(skip))
	for _, s := range skip {
		if a, err := filepath.Abs(s); err == nil {
			abs = append(abs, a)
		}
	}
	return &ManifestService{store: store, siteRoot: siteRoot, skip: abs}
}

// InitJob walks the site root and persists the manifest under a new job id.
func (s *ManifestService) InitJob(ctx context.Context) (*protocol.ManifestInitResponse, error) {
	root, err := filepath.Abs(s.siteRoot)
	if err != nil {
		return nil, err
	}
	var entries []protocol.FileEntry
	var totalBytes int64
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: log and keep walking.
			global.Logger.Warn().Err(err).Str("path", path).Msg("manifest walk error")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.skipped(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		entries = append(entries, protocol.FileEntry{
			Path:  filepath.ToSlash(rel),
			Size:  info.Size(),
			MTime: info.ModTime().Unix(),
		})
		totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	if err := s.store.SaveManifest(ctx, jobID, entries); err != nil {
		return nil, err
	}
	global.Logger.Info().
		Str("job", jobID).
		Int("files", len(entries)).
		Int64("bytes", totalBytes).
		Msg("manifest job initialized")
	return &protocol.ManifestInitResponse{
		JobID:      jobID,
		TotalFiles: len(entries),
		TotalBytes: totalBytes,
	}, nil
}

// Page returns one window of the stored manifest.
func (s *ManifestService) Page(ctx context.Context, jobID string, offset, limit int) (*protocol.ManifestPageResponse, error) {
	entries, err := s.store.LoadManifest(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var totalBytes int64
	for _, e := range entries {
		totalBytes += e.Size
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + limit
	if limit <= 0 || end > len(entries) {
		end = len(entries)
	}
	return &protocol.ManifestPageResponse{
		JobID:      jobID,
		Files:      entries[offset:end],
		TotalFiles: len(entries),
		TotalBytes: totalBytes,
	}, nil
}

func (s *ManifestService) Finish(ctx context.Context, jobID string) error {
	return s.store.DeleteManifest(ctx, jobID)
}

func (s *ManifestService) skipped(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, sk := range s.skip {
		if abs == sk || strings.HasPrefix(abs, sk+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
