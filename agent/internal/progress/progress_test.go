package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerAccumulates(t *testing.T) {
	var tr Tracker
	tr.SetTotals(10, 1000)
	tr.AddDone(3)
	tr.AddFailed(1)
	tr.AddBytes(250)

	s := tr.Snapshot()
	assert.Equal(t, int64(10), s.TotalFiles)
	assert.Equal(t, int64(1000), s.TotalBytes)
	assert.Equal(t, int64(3), s.FilesDone)
	assert.Equal(t, int64(1), s.FilesFailed)
	assert.Equal(t, int64(250), s.BytesDone)
}

// Updates from many goroutines in any interleaving land on the same totals.
func TestTrackerConcurrentUpdates(t *testing.T) {
	var tr Tracker
	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tr.AddDone(1)
				tr.AddBytes(10)
			}
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Equal(t, int64(workers*perWorker), s.FilesDone)
	assert.Equal(t, int64(workers*perWorker*10), s.BytesDone)
	assert.Zero(t, s.FilesFailed)
}
