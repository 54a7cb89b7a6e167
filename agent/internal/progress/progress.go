package progress

import "sync/atomic"

// Tracker accumulates transfer counters from any number of workers. Each
// counter is a single atomic, so updates are never lost and reads are never
// torn; a snapshot may lag the workers, which is fine for rendering.
type Tracker struct {
	totalFiles atomic.Int64
	totalBytes atomic.Int64

	filesDone   atomic.Int64
	filesFailed atomic.Int64
	bytesDone   atomic.Int64
}

// Snapshot is one consistent-enough view of the counters for display.
type Snapshot struct {
	TotalFiles  int64
	TotalBytes  int64
	FilesDone   int64
	FilesFailed int64
	BytesDone   int64
}

func (t *Tracker) SetTotals(files, bytes int64) {
	t.totalFiles.Store(files)
	t.totalBytes.Store(bytes)
}

func (t *Tracker) AddBytes(n int64)    { t.bytesDone.Add(n) }
func (t *Tracker) AddDone(files int64) { t.filesDone.Add(files) }
func (t *Tracker) AddFailed(files int64) {
	t.filesFailed.Add(files)
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		TotalFiles:  t.totalFiles.Load(),
		TotalBytes:  t.totalBytes.Load(),
		FilesDone:   t.filesDone.Load(),
		FilesFailed: t.filesFailed.Load(),
		BytesDone:   t.bytesDone.Load(),
	}
}
