package manifest

import "sitevault/protocol"

const (
	// DefaultLargeThreshold separates files worth their own transfer from
	// files worth batching.
	DefaultLargeThreshold = 8 * 1024 * 1024
	// DefaultBatchByteCap bounds the payload of one batch transfer.
	DefaultBatchByteCap = 16 * 1024 * 1024
	// DefaultBatchCountCap bounds how many paths one batch request carries.
	DefaultBatchCountCap = 2000
)

// Partition is the in-memory split of a manifest into transfer units. It is
// recomputed fresh per run and never persisted.
type Partition struct {
	Large      []protocol.FileEntry
	Batches    [][]protocol.FileEntry
	TotalFiles int
	TotalBytes int64
}

// Units counts transfer units: every large file plus every batch.
func (p *Partition) Units() int {
	return len(p.Large) + len(p.Batches)
}

// Split classifies entries in one deterministic pass: anything over
// largeThreshold gets its own unit, the rest packs greedily in manifest
// order, closing a batch when the next entry would overflow either cap.
// Identical input always yields identical batch boundaries, so retries and
// tests see the same units.
func Split(entries []protocol.FileEntry, largeThreshold, batchByteCap int64, batchCountCap int) Partition {
	if largeThreshold <= 0 {
		largeThreshold = DefaultLargeThreshold
	}
	if batchByteCap <= 0 {
		batchByteCap = DefaultBatchByteCap
	}
	if batchCountCap <= 0 {
		batchCountCap = DefaultBatchCountCap
	}

	var p Partition
	var batch []protocol.FileEntry
	var batchBytes int64

	flush := func() {
		if len(batch) > 0 {
			p.Batches = append(p.Batches, batch)
			batch = nil
			batchBytes = 0
		}
	}

	for _, e := range entries {
		p.TotalFiles++
		p.TotalBytes += e.Size
		if e.Size > largeThreshold {
			p.Large = append(p.Large, e)
			continue
		}
		if len(batch) >= batchCountCap || (len(batch) > 0 && batchBytes+e.Size > batchByteCap) {
			flush()
		}
		batch = append(batch, e)
		batchBytes += e.Size
	}
	flush()
	return p
}
