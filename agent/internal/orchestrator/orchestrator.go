package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sitevault/agent/internal/archive"
	"sitevault/agent/internal/client"
	"sitevault/agent/internal/fetch"
	"sitevault/agent/internal/logger"
	"sitevault/agent/internal/manifest"
	"sitevault/agent/internal/progress"
	"sitevault/protocol"
)

type State string

const (
	StateInit         State = "INIT"
	StateDBExport     State = "DB_EXPORT"
	StateDBDownload   State = "DB_DOWNLOAD"
	StateManifestInit State = "MANIFEST_INIT"
	StatePartition    State = "PARTITION"
	StateRetrieve     State = "RETRIEVE"
	StatePackage      State = "PACKAGE"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// ErrTransfer marks failures of the network protocol or of individual file
// units; the CLI maps it to its own exit code.
var ErrTransfer = errors.New("transfer failed")

type Options struct {
	OutputDir     string
	Concurrency   int
	ProcessBudget time.Duration
	// Pacing is the delay between export slices, keeping the endpoint's
	// host responsive for its real traffic.
	Pacing    time.Duration
	PageLimit int
	OnState   func(State)
}

// Orchestrator runs one full backup: DB export drain, artifact download,
// manifest paging, partitioning, concurrent retrieval and packaging. One
// orchestrator owns its job ids exclusively; runs are never shared.
type Orchestrator struct {
	api  *client.Client
	prog *progress.Tracker
	opts Options
}

func New(api *client.Client, prog *progress.Tracker, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ProcessBudget <= 0 {
		opts.ProcessBudget = 10 * time.Second
	}
	if opts.Pacing <= 0 {
		opts.Pacing = 300 * time.Millisecond
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 5000
	}
	return &Orchestrator{api: api, prog: prog, opts: opts}
}

func (o *Orchestrator) setState(s State) {
	if o.opts.OnState != nil {
		o.opts.OnState(s)
	}
}

// Run executes the state machine and returns the archive path. On any
// failure the transient workspace and any partial archive are removed:
// a failed run leaves nothing behind.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	o.setState(StateInit)
	workspace := filepath.Join(o.opts.OutputDir, fmt.Sprintf(".sitevault-work-%d", time.Now().Unix()))
	archivePath := filepath.Join(o.opts.OutputDir, fmt.Sprintf("sitevault-%s.zip", time.Now().Format("20060102-150405")))
	if err := os.MkdirAll(filepath.Join(workspace, "files"), 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	fail := func(err error) (string, error) {
		o.setState(StateFailed)
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			logger.Errorf("workspace cleanup failed: %v", rmErr)
		}
		if _, statErr := os.Stat(archivePath); statErr == nil {
			_ = os.Remove(archivePath)
		}
		return "", err
	}

	if err := o.exportDB(ctx, workspace); err != nil {
		return fail(err)
	}
	result, err := o.retrieveFiles(ctx, filepath.Join(workspace, "files"))
	if err != nil {
		return fail(err)
	}
	if result.FilesFailed > 0 {
		for _, e := range result.Errors {
			logger.Errorf("unit failed: %v", e)
		}
		return fail(fmt.Errorf("%w: %d file(s) failed", ErrTransfer, result.FilesFailed))
	}

	o.setState(StatePackage)
	if err := archive.Build(archivePath, workspace); err != nil {
		return fail(fmt.Errorf("package archive: %w", err))
	}
	if err := os.RemoveAll(workspace); err != nil {
		logger.Warnf("workspace cleanup failed: %v", err)
	}
	o.setState(StateDone)
	return archivePath, nil
}

// exportDB drains the paginated export strictly sequentially: each process
// call returns before the next starts, so slices apply in cursor order.
func (o *Orchestrator) exportDB(ctx context.Context, workspace string) error {
	o.setState(StateDBExport)
	job, err := o.api.DBInit(ctx)
	if err != nil {
		return fmt.Errorf("%w: db export init: %v", ErrTransfer, err)
	}
	logger.Infof("db export started: %d tables, ~%d rows", job.TotalTables, job.EstimatedRows)

	for {
		resp, err := o.api.DBProcess(ctx, job.JobID, o.opts.ProcessBudget)
		if err != nil {
			// The export has no unit-level isolation: a protocol error
			// here fails the whole run.
			return fmt.Errorf("%w: db export slice: %v", ErrTransfer, err)
		}
		logger.Infof("db export progress: %d/%d tables, %d bytes",
			resp.CompletedTables, resp.TotalTables, resp.BytesWritten)
		if resp.Done {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.opts.Pacing):
		}
	}

	o.setState(StateDBDownload)
	dbDir := filepath.Join(workspace, "database")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	name := job.ArtifactName
	if name == "" {
		name = "database.sql"
	}
	out, err := os.Create(filepath.Join(dbDir, name))
	if err != nil {
		return fmt.Errorf("create db artifact: %w", err)
	}
	n, err := o.api.DBDownload(ctx, job.JobID, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: db download: %v", ErrTransfer, err)
	}
	logger.Infof("db artifact downloaded: %d bytes", n)

	if err := o.api.DBFinish(ctx, job.JobID); err != nil {
		logger.Warnf("db export finish failed: %v", err)
	}
	return nil
}

func (o *Orchestrator) retrieveFiles(ctx context.Context, destRoot string) (fetch.Result, error) {
	o.setState(StateManifestInit)
	job, err := o.api.ManifestInit(ctx)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("%w: manifest init: %v", ErrTransfer, err)
	}
	entries := make([]protocol.FileEntry, 0, job.TotalFiles)
	for offset := 0; offset < job.TotalFiles; {
		page, err := o.api.ManifestPage(ctx, job.JobID, offset, o.opts.PageLimit)
		if err != nil {
			return fetch.Result{}, fmt.Errorf("%w: manifest page at %d: %v", ErrTransfer, offset, err)
		}
		if len(page.Files) == 0 {
			break
		}
		entries = append(entries, page.Files...)
		offset += len(page.Files)
	}
	if err := o.api.ManifestFinish(ctx, job.JobID); err != nil {
		logger.Warnf("manifest finish failed: %v", err)
	}
	logger.Infof("manifest: %d files, %d bytes", len(entries), job.TotalBytes)

	o.setState(StatePartition)
	part := manifest.Split(entries, 0, 0, 0)
	o.prog.SetTotals(int64(part.TotalFiles), part.TotalBytes)
	units := fetch.UnitsFromPartition(part)
	logger.Infof("partitioned into %d units (%d large, %d batches)",
		len(units), len(part.Large), len(part.Batches))

	o.setState(StateRetrieve)
	result := fetch.Retrieve(ctx, o.api, units, destRoot, fetch.Options{
		Concurrency: o.opts.Concurrency,
		OnProgress: func(d fetch.Delta) {
			o.prog.AddDone(int64(d.Files))
			o.prog.AddFailed(int64(d.Failed))
			o.prog.AddBytes(d.Bytes)
		},
	})
	return result, nil
}
