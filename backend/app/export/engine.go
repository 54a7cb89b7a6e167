package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MinChunkRows     = 100
	MaxChunkRows     = 5000
	DefaultChunkRows = 1000

	KeysetThresholdRows  = 100000
	KeysetThresholdBytes = 100 * 1024 * 1024

	// DefaultTimeBudget bounds one Next call when the caller passes none.
	DefaultTimeBudget = 10 * time.Second

	// MIMD pacing: grow the chunk when a call finishes fast, shrink it when
	// a call drags. Both steps are multiplicative so the size converges
	// without external tuning.
	chunkGrowBelow   = time.Second
	chunkShrinkAbove = 3 * time.Second
)

var ErrNoTables = errors.New("export: source has no tables")

// Engine produces a database dump slice by slice. It holds no per-job state:
// everything needed to resume lives in the cursor, so any number of jobs can
// share one engine as long as no single job runs two calls concurrently.
type Engine struct {
	src    Source
	writer sqlWriter
	now    func() time.Time
}

func NewEngine(src Source, dialect string) *Engine {
	return &Engine{src: src, writer: sqlWriter{dialect: dialect}, now: time.Now}
}

type Meta struct {
	TableCount     int
	EstimatedRows  int64
	EstimatedBytes int64
	ChunkSize      int
}

type InitResult struct {
	Cursor   *Cursor
	Preamble string
	Meta     Meta
}

type Stats struct {
	RowsEmitted  int
	TablesClosed int
	Elapsed      time.Duration
	ChunkSize    int
}

type NextResult struct {
	Slice    []byte
	Cursor   *Cursor
	Complete bool
	Stats    Stats
}

// Init enumerates the source once, picks a pagination strategy per table and
// returns the starting cursor plus the dump preamble. Row and byte estimates
// only steer the strategy choice; they are never reported as exact totals.
func (e *Engine) Init(ctx context.Context, chunkHint int) (*InitResult, error) {
	tables, err := e.src.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate source: %w", err)
	}
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	chunk := chunkHint
	if chunk == 0 {
		chunk = DefaultChunkRows
	}
	chunk = clampChunk(chunk)

	cur := &Cursor{
		Version:   cursorVersion,
		SessionID: uuid.NewString(),
		ChunkSize: chunk,
		TableInfo: make(map[string]*TableInfo, len(tables)),
	}
	meta := Meta{TableCount: len(tables), ChunkSize: chunk}
	for _, t := range tables {
		cur.Tables = append(cur.Tables, t.Name)
		big := t.RowEstimate > KeysetThresholdRows || t.ByteEstimate > KeysetThresholdBytes
		info := &TableInfo{
			RowEstimate:  t.RowEstimate,
			ByteEstimate: t.ByteEstimate,
		}
		if big && t.IntegerPK != "" {
			info.UseKeyset = true
			info.PrimaryKey = t.IntegerPK
		}
		cur.TableInfo[t.Name] = info
		meta.EstimatedRows += t.RowEstimate
		meta.EstimatedBytes += t.ByteEstimate
	}
	return &InitResult{
		Cursor:   cur,
		Preamble: e.writer.preamble(len(tables)),
		Meta:     meta,
	}, nil
}

// Next emits the following slice of the dump and advances the cursor. The
// input cursor is never mutated: on a source error the caller retries the
// same slice with the cursor it already holds.
//
// The time budget is enforced in the row loop only, after each serialized
// row, so every call makes at least one row of progress no matter how slow
// serialization turns out to be.
func (e *Engine) Next(ctx context.Context, cur *Cursor, budget time.Duration) (*NextResult, error) {
	if err := cur.validate(); err != nil {
		return nil, err
	}
	clone := cur.clone()
	if clone.Complete {
		return &NextResult{Cursor: clone, Complete: true, Stats: Stats{ChunkSize: clone.ChunkSize}}, nil
	}
	if budget <= 0 {
		budget = DefaultTimeBudget
	}
	start := e.now()
	deadline := start.Add(budget)

	buf := &bytes.Buffer{}
	var stats Stats

emit:
	for !clone.Complete {
		table := clone.Tables[clone.TableIndex]
		info := clone.TableInfo[table]

		// Structure always precedes data, once per table.
		if !clone.SchemaSent {
			ddl, err := e.src.CreateStatement(ctx, table)
			if err != nil {
				return nil, fmt.Errorf("schema for %s: %w", table, err)
			}
			e.writer.tableHeader(buf, table, ddl)
			clone.TableName = table
			clone.SchemaSent = true
		}

		var set *RowSet
		var err error
		if info.UseKeyset {
			set, err = e.src.RowsKeyset(ctx, table, info.PrimaryKey, clone.LastPK, clone.ChunkSize)
		} else {
			set, err = e.src.RowsOffset(ctx, table, clone.ChunkSize, clone.Offset)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}

		if len(set.Rows) > 0 {
			pkIdx := -1
			if info.UseKeyset {
				pkIdx = columnIndex(set.Columns, info.PrimaryKey)
				if pkIdx < 0 {
					return nil, fmt.Errorf("read %s: key column %s missing from result", table, info.PrimaryKey)
				}
			}
			ib := e.writer.newInsertBuilder(buf, table, set.Columns)
			emitted := 0
			truncated := false
			for _, row := range set.Rows {
				ib.add(row)
				emitted++
				stats.RowsEmitted++
				if info.UseKeyset {
					pk, err := toInt64(row[pkIdx])
					if err != nil {
						return nil, fmt.Errorf("read %s: %w", table, err)
					}
					clone.LastPK = &pk
				}
				if e.now().After(deadline) {
					truncated = emitted < len(set.Rows)
					break
				}
			}
			ib.flush()
			if !info.UseKeyset {
				clone.Offset += int64(emitted)
			}
			if truncated {
				// Mid-table stop; the cursor covers exactly the rows emitted.
				break emit
			}
		}

		if len(set.Rows) < clone.ChunkSize {
			// Table exhausted: close it and move on.
			e.writer.tableFooter(buf, table)
			stats.TablesClosed++
			clone.TableIndex++
			clone.Offset = 0
			clone.LastPK = nil
			clone.SchemaSent = false
			clone.TableName = ""
			if clone.TableIndex == len(clone.Tables) {
				e.writer.trailer(buf)
				clone.Complete = true
			}
		}
		if e.now().After(deadline) {
			break
		}
	}

	elapsed := e.now().Sub(start)
	switch {
	case elapsed < chunkGrowBelow && clone.ChunkSize < MaxChunkRows:
		clone.ChunkSize = clampChunk(clone.ChunkSize * 3 / 2)
	case elapsed > chunkShrinkAbove && clone.ChunkSize > MinChunkRows:
		clone.ChunkSize = clampChunk(clone.ChunkSize * 3 / 4)
	}

	stats.Elapsed = elapsed
	stats.ChunkSize = clone.ChunkSize
	return &NextResult{
		Slice:    buf.Bytes(),
		Cursor:   clone,
		Complete: clone.Complete,
		Stats:    stats,
	}, nil
}

func clampChunk(n int) int {
	if n < MinChunkRows {
		return MinChunkRows
	}
	if n > MaxChunkRows {
		return MaxChunkRows
	}
	return n
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("key value %v (%T) is not an integer", v, v)
	}
}
