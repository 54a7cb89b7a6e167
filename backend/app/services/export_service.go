package services

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sitevault/backend/app/export"
	"sitevault/backend/app/jobstore"
	"sitevault/backend/global"
	"sitevault/protocol"
)

var ErrJobNotFound = errors.New("export job not found")

// ExportService drives the pagination engine one slice per request, keeping
// the cursor in the job store between calls so the server process holds no
// job state of its own.
type ExportService struct {
	engine    *export.Engine
	store     *jobstore.Store
	workspace string
	compress  bool
	budget    time.Duration
}

func NewExportService(engine *export.Engine, store *jobstore.Store, workspace string, compress bool, budget time.Duration) (*ExportService, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create export workspace: %w", err)
	}
	if budget <= 0 {
		budget = export.DefaultTimeBudget
	}
	return &ExportService{
		engine:    engine,
		store:     store,
		workspace: workspace,
		compress:  compress,
		budget:    budget,
	}, nil
}

func (s *ExportService) artifactName() string {
	if s.compress {
		return "database.sql.gz"
	}
	return "database.sql"
}

func (s *ExportService) artifactPath(jobID string) string {
	return filepath.Join(s.workspace, jobID, s.artifactName())
}

// InitJob enumerates the database, writes the dump preamble and parks the
// starting cursor under a fresh job id.
func (s *ExportService) InitJob(ctx context.Context) (*protocol.DBInitResponse, error) {
	res, err := s.engine.Init(ctx, 0)
	if err != nil {
		return nil, err
	}
	jobID := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(s.artifactPath(jobID)), 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	if err := s.appendSlice(jobID, []byte(res.Preamble)); err != nil {
		return nil, err
	}
	token, err := res.Cursor.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCursor(ctx, jobID, token); err != nil {
		return nil, err
	}
	written, _ := s.artifactSize(jobID)
	global.Logger.Info().
		Str("job", jobID).
		Int("tables", res.Meta.TableCount).
		Int64("est_rows", res.Meta.EstimatedRows).
		Msg("export job initialized")
	return &protocol.DBInitResponse{
		JobID:          jobID,
		TotalTables:    res.Meta.TableCount,
		EstimatedRows:  res.Meta.EstimatedRows,
		EstimatedBytes: res.Meta.EstimatedBytes,
		ChunkSize:      res.Meta.ChunkSize,
		ArtifactName:   s.artifactName(),
		BytesWritten:   written,
	}, nil
}

// Process emits the next dump slice under the request time budget and saves
// the advanced cursor. On any failure the stored cursor is left untouched,
// so the caller simply retries the same slice.
func (s *ExportService) Process(ctx context.Context, jobID string, budget time.Duration) (*protocol.DBProcessResponse, error) {
	token, err := s.store.LoadCursor(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	cur, err := export.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	if budget <= 0 || budget > s.budget {
		budget = s.budget
	}
	res, err := s.engine.Next(ctx, cur, budget)
	if err != nil {
		return nil, err
	}
	if len(res.Slice) > 0 {
		if err := s.appendSlice(jobID, res.Slice); err != nil {
			return nil, err
		}
	}
	newToken, err := res.Cursor.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCursor(ctx, jobID, newToken); err != nil {
		return nil, err
	}
	written, _ := s.artifactSize(jobID)
	return &protocol.DBProcessResponse{
		JobID:           jobID,
		BytesWritten:    written,
		RowsEmitted:     res.Stats.RowsEmitted,
		CompletedTables: res.Cursor.TableIndex,
		TotalTables:     len(res.Cursor.Tables),
		ChunkSize:       res.Stats.ChunkSize,
		Done:            res.Complete,
	}, nil
}

// Open returns the finished artifact for streaming.
func (s *ExportService) Open(ctx context.Context, jobID string) (io.ReadCloser, int64, error) {
	if _, err := s.store.LoadCursor(ctx, jobID); errors.Is(err, jobstore.ErrNotFound) {
		return nil, 0, ErrJobNotFound
	} else if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.artifactPath(jobID))
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, 0, fmt.Errorf("artifact for job %s is empty", jobID)
	}
	return f, info.Size(), nil
}

// Finish drops the cursor and the artifact. Best effort by contract.
func (s *ExportService) Finish(ctx context.Context, jobID string) error {
	if err := s.store.DeleteCursor(ctx, jobID); err != nil {
		global.Logger.Warn().Err(err).Str("job", jobID).Msg("cursor delete failed")
	}
	return os.RemoveAll(filepath.Join(s.workspace, jobID))
}

// appendSlice appends dump text to the artifact. With compression on, each
// slice becomes its own gzip member; concatenated members are a valid
// stream, which is what makes appending possible at all.
func (s *ExportService) appendSlice(jobID string, slice []byte) error {
	f, err := os.OpenFile(s.artifactPath(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	if !s.compress {
		_, err = f.Write(slice)
		return err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(slice); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (s *ExportService) artifactSize(jobID string) (int64, error) {
	info, err := os.Stat(s.artifactPath(jobID))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
