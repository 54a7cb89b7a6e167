package export

import "context"

// Table describes one table in the source, with the estimates the engine
// needs to pick a pagination strategy. Estimates are never treated as exact.
type Table struct {
	Name         string
	RowEstimate  int64
	ByteEstimate int64
	// IntegerPK names the table's single-column integer primary key, or is
	// empty when the table has none (composite, non-integer, or missing).
	IntegerPK string
}

// RowSet is one page of rows in column order.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Source is the tabular store behind the export engine. Implementations must
// return rows in a stable order for a fixed query so repeated pagination
// never duplicates or skips rows.
type Source interface {
	// Tables enumerates every exportable table exactly once per job.
	Tables(ctx context.Context) ([]Table, error)

	// CreateStatement returns the DDL that recreates the table.
	CreateStatement(ctx context.Context, table string) (string, error)

	// RowsOffset reads up to limit rows starting at offset.
	RowsOffset(ctx context.Context, table string, limit int, offset int64) (*RowSet, error)

	// RowsKeyset reads up to limit rows with pk greater than after, ordered
	// by pk ascending. A nil after starts from the beginning.
	RowsKeyset(ctx context.Context, table, pk string, after *int64, limit int) (*RowSet, error)
}
