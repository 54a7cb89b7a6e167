package services

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sitevault/backend/global"
)

var ErrBadPath = errors.New("path escapes site root")

// FileService streams site files, confining every request to the site root.
type FileService struct {
	root string
}

func NewFileService(siteRoot string) (*FileService, error) {
	root, err := filepath.Abs(siteRoot)
	if err != nil {
		return nil, err
	}
	return &FileService{root: root}, nil
}

// Resolve maps a slash-separated manifest path onto the local filesystem,
// rejecting anything that would land outside the site root.
func (s *FileService) Resolve(rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "\x00") {
		return "", ErrBadPath
	}
	clean := path.Clean("/" + rel)[1:] // strips any leading ../ sequences by anchoring
	if clean == "" || clean == "." {
		return "", ErrBadPath
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrBadPath
	}
	return full, nil
}

// Open opens one file for streaming.
func (s *FileService) Open(rel string) (*os.File, os.FileInfo, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", rel, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrBadPath
	}
	return f, info, nil
}

// WriteBatch streams the requested files as one zip so a batch of small
// files costs a single transfer. Files that disappeared since the manifest
// walk are skipped with a log line; the agent reconciles counts on its side.
func (s *FileService) WriteBatch(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	for _, rel := range paths {
		f, info, err := s.Open(rel)
		if err != nil {
			if errors.Is(err, ErrBadPath) {
				zw.Close()
				return err
			}
			global.Logger.Warn().Err(err).Str("path", rel).Msg("batch member skipped")
			continue
		}
		hdr := &zip.FileHeader{Name: rel, Method: zip.Deflate}
		hdr.Modified = info.ModTime()
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			f.Close()
			zw.Close()
			return err
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			zw.Close()
			return err
		}
		f.Close()
	}
	return zw.Close()
}
