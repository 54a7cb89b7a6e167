package export

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// GormSource implements Source on top of a gorm connection. MySQL and SQLite
// are supported; the dialect decides identifier quoting and catalog queries.
type GormSource struct {
	db      *gorm.DB
	dialect string
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db, dialect: db.Dialector.Name()}
}

// Dialect reports the underlying SQL dialect name.
func (s *GormSource) Dialect() string { return s.dialect }

func (s *GormSource) quote(ident string) string {
	if s.dialect == "mysql" {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (s *GormSource) Tables(ctx context.Context) ([]Table, error) {
	if s.dialect == "mysql" {
		return s.mysqlTables(ctx)
	}
	return s.sqliteTables(ctx)
}

func (s *GormSource) mysqlTables(ctx context.Context) ([]Table, error) {
	rows, err := s.db.WithContext(ctx).Raw(
		`SELECT TABLE_NAME, IFNULL(TABLE_ROWS, 0), IFNULL(DATA_LENGTH + INDEX_LENGTH, 0)
		 FROM information_schema.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`).Rows()
	if err != nil {
		return nil, fmt.Errorf("enumerate tables: %w", err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.RowEstimate, &t.ByteEstimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		pk, err := s.mysqlIntegerPK(ctx, out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].IntegerPK = pk
	}
	return out, nil
}

func (s *GormSource) mysqlIntegerPK(ctx context.Context, table string) (string, error) {
	rows, err := s.db.WithContext(ctx).Raw(
		`SELECT c.COLUMN_NAME, c.DATA_TYPE
		 FROM information_schema.KEY_COLUMN_USAGE k
		 JOIN information_schema.COLUMNS c
		   ON c.TABLE_SCHEMA = k.TABLE_SCHEMA
		  AND c.TABLE_NAME = k.TABLE_NAME
		  AND c.COLUMN_NAME = k.COLUMN_NAME
		 WHERE k.TABLE_SCHEMA = DATABASE()
		   AND k.TABLE_NAME = ?
		   AND k.CONSTRAINT_NAME = 'PRIMARY'
		 ORDER BY k.ORDINAL_POSITION`, table).Rows()
	if err != nil {
		return "", fmt.Errorf("primary key lookup for %s: %w", table, err)
	}
	defer rows.Close()

	type pkCol struct{ name, dataType string }
	var cols []pkCol
	for rows.Next() {
		var c pkCol
		if err := rows.Scan(&c.name, &c.dataType); err != nil {
			return "", err
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	// Keyset pagination needs exactly one integer key column.
	if len(cols) != 1 {
		return "", nil
	}
	switch strings.ToLower(cols[0].dataType) {
	case "tinyint", "smallint", "mediumint", "int", "bigint":
		return cols[0].name, nil
	}
	return "", nil
}

func (s *GormSource) sqliteTables(ctx context.Context) ([]Table, error) {
	var names []string
	if err := s.db.WithContext(ctx).Raw(
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("enumerate tables: %w", err)
	}
	out := make([]Table, 0, len(names))
	for _, name := range names {
		var count int64
		if err := s.db.WithContext(ctx).Raw(
			"SELECT COUNT(*) FROM " + s.quote(name)).Scan(&count).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		pk, err := s.sqliteIntegerPK(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Table{Name: name, RowEstimate: count, IntegerPK: pk})
	}
	return out, nil
}

func (s *GormSource) sqliteIntegerPK(ctx context.Context, table string) (string, error) {
	rows, err := s.db.WithContext(ctx).Raw(
		fmt.Sprintf("PRAGMA table_info(%s)", s.quote(table))).Rows()
	if err != nil {
		return "", fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var pkName string
	pkCount := 0
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return "", err
		}
		if pk > 0 {
			pkCount++
			if strings.Contains(strings.ToUpper(typ), "INT") {
				pkName = name
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if pkCount != 1 {
		return "", nil
	}
	return pkName, nil
}

func (s *GormSource) CreateStatement(ctx context.Context, table string) (string, error) {
	if s.dialect == "mysql" {
		rows, err := s.db.WithContext(ctx).Raw("SHOW CREATE TABLE " + s.quote(table)).Rows()
		if err != nil {
			return "", fmt.Errorf("show create table %s: %w", table, err)
		}
		defer rows.Close()
		if !rows.Next() {
			return "", fmt.Errorf("show create table %s: no result", table)
		}
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return "", err
		}
		return ddl, nil
	}
	var ddl string
	if err := s.db.WithContext(ctx).Raw(
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).
		Scan(&ddl).Error; err != nil {
		return "", fmt.Errorf("create statement for %s: %w", table, err)
	}
	if ddl == "" {
		return "", fmt.Errorf("create statement for %s: not found", table)
	}
	return ddl, nil
}

func (s *GormSource) RowsOffset(ctx context.Context, table string, limit int, offset int64) (*RowSet, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT ? OFFSET ?", s.quote(table))
	return s.scanRows(ctx, query, limit, offset)
}

func (s *GormSource) RowsKeyset(ctx context.Context, table, pk string, after *int64, limit int) (*RowSet, error) {
	if after == nil {
		query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ?", s.quote(table), s.quote(pk))
		return s.scanRows(ctx, query, limit)
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s > ? ORDER BY %s LIMIT ?",
		s.quote(table), s.quote(pk), s.quote(pk))
	return s.scanRows(ctx, query, *after, limit)
}

func (s *GormSource) scanRows(ctx context.Context, query string, args ...any) (*RowSet, error) {
	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	set := &RowSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		set.Rows = append(set.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
