package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sitevault/agent/internal/client"
	"sitevault/agent/internal/logger"
	"sitevault/agent/internal/manifest"
	"sitevault/protocol"
)

// Unit is one transfer: either a single large file or a batch of small ones.
type Unit struct {
	Large *protocol.FileEntry
	Batch []protocol.FileEntry
}

func (u Unit) fileCount() int {
	if u.Large != nil {
		return 1
	}
	return len(u.Batch)
}

// UnitsFromPartition flattens a partition into the worker queue, large files
// first so the longest transfers start earliest.
func UnitsFromPartition(p manifest.Partition) []Unit {
	units := make([]Unit, 0, p.Units())
	for i := range p.Large {
		units = append(units, Unit{Large: &p.Large[i]})
	}
	for _, b := range p.Batches {
		units = append(units, Unit{Batch: b})
	}
	return units
}

// Delta is one progress increment, delivered from worker goroutines.
type Delta struct {
	Files  int
	Failed int
	Bytes  int64
}

// Result is the order-independent fold of every unit outcome.
type Result struct {
	FilesOK     int
	FilesFailed int
	Bytes       int64
	UnitsFailed int
	// Errors keeps the first few unit failures for the final report.
	Errors []error
}

const maxKeptErrors = 10

func (r *Result) merge(u unitResult) {
	r.FilesOK += u.filesOK
	r.FilesFailed += u.filesFailed
	r.Bytes += u.bytes
	if u.err != nil {
		r.UnitsFailed++
		if len(r.Errors) < maxKeptErrors {
			r.Errors = append(r.Errors, u.err)
		}
	}
}

type unitResult struct {
	filesOK     int
	filesFailed int
	bytes       int64
	err         error
}

type Options struct {
	Concurrency int
	// Attempts is how many times a transport failure is retried per unit
	// before the unit counts as failed.
	Attempts   int
	OnProgress func(Delta)
}

// Retrieve drains the unit queue with a bounded worker pool. Results flow to
// a single collector goroutine, so aggregation needs no locks; a failed unit
// never cancels the rest of the pool.
func Retrieve(ctx context.Context, api *client.Client, units []Unit, destRoot string, opts Options) Result {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	report := func(d Delta) {
		if opts.OnProgress != nil {
			opts.OnProgress(d)
		}
	}

	jobs := make(chan Unit)
	results := make(chan unitResult)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- runUnit(ctx, api, u, destRoot, opts.Attempts, report)
			}
		}()
	}

	done := make(chan Result)
	go func() {
		var r Result
		for u := range results {
			r.merge(u)
		}
		done <- r
	}()

	for _, u := range units {
		jobs <- u
	}
	close(jobs)
	wg.Wait()
	close(results)
	return <-done
}

func runUnit(ctx context.Context, api *client.Client, u Unit, destRoot string, attempts int, report func(Delta)) unitResult {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var res unitResult
		if u.Large != nil {
			res, err = fetchLarge(ctx, api, *u.Large, destRoot)
		} else {
			res, err = fetchBatch(ctx, api, u.Batch, destRoot)
		}
		if err == nil {
			report(Delta{Files: res.filesOK, Failed: res.filesFailed, Bytes: res.bytes})
			return res
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		logger.Warnf("transfer attempt %d failed, retrying: %v", attempt, err)
		select {
		case <-ctx.Done():
			attempt = attempts
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	failed := u.fileCount()
	report(Delta{Failed: failed})
	return unitResult{filesFailed: failed, err: err}
}

// retryable: transport-level trouble is worth another attempt, a definitive
// server verdict or a local disk error is not.
func retryable(err error) bool {
	var he *client.HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500
	}
	var pe *os.PathError
	return !errors.As(err, &pe)
}

func fetchLarge(ctx context.Context, api *client.Client, e protocol.FileEntry, destRoot string) (unitResult, error) {
	body, err := api.FetchFile(ctx, e.Path)
	if err != nil {
		return unitResult{}, err
	}
	defer body.Close()
	n, err := writeFile(destRoot, e.Path, e.MTime, body)
	if err != nil {
		return unitResult{}, err
	}
	return unitResult{filesOK: 1, bytes: n}, nil
}

func fetchBatch(ctx context.Context, api *client.Client, entries []protocol.FileEntry, destRoot string) (unitResult, error) {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	body, err := api.FetchBatch(ctx, paths)
	if err != nil {
		return unitResult{}, err
	}
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return unitResult{}, fmt.Errorf("read batch: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return unitResult{}, fmt.Errorf("open batch archive: %w", err)
	}

	requested := make(map[string]bool, len(paths))
	mtimes := make(map[string]int64, len(entries))
	for _, e := range entries {
		requested[e.Path] = true
		mtimes[e.Path] = e.MTime
	}
	var res unitResult
	extracted := make(map[string]bool, len(zr.File))
	for _, zf := range zr.File {
		if !requested[zf.Name] || extracted[zf.Name] {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			logger.Errorf("batch member %s unreadable: %v", zf.Name, err)
			continue
		}
		n, err := writeFile(destRoot, zf.Name, mtimes[zf.Name], rc)
		rc.Close()
		if err != nil {
			logger.Errorf("batch member %s write failed: %v", zf.Name, err)
			continue
		}
		extracted[zf.Name] = true
		res.bytes += n
	}
	// Every requested path either extracted or counts against the unit,
	// including files the server silently dropped.
	for _, p := range paths {
		if extracted[p] {
			res.filesOK++
		} else {
			res.filesFailed++
		}
	}
	if res.filesOK == 0 {
		return unitResult{}, fmt.Errorf("batch yielded no files")
	}
	return res, nil
}

// writeFile streams body into destRoot/rel, confining rel inside destRoot.
// A positive mtime is restored onto the file so the packaged tree keeps the
// site's timestamps.
func writeFile(destRoot, rel string, mtime int64, body io.Reader) (int64, error) {
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean == "." {
		return 0, fmt.Errorf("bad path %q", rel)
	}
	full := filepath.Join(destRoot, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, filepath.Clean(destRoot)+string(filepath.Separator)) {
		return 0, fmt.Errorf("bad path %q", rel)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", rel, err)
	}
	if mtime > 0 {
		t := time.Unix(mtime, 0)
		_ = os.Chtimes(full, t, t)
	}
	return n, nil
}
