package export

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE settings (name TEXT PRIMARY KEY, value TEXT)`,
		`CREATE TABLE term_links (post_id INTEGER, term_id INTEGER, PRIMARY KEY (post_id, term_id))`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	for i := 1; i <= 7; i++ {
		require.NoError(t, db.Exec(
			`INSERT INTO posts (id, title) VALUES (?, ?)`, i, fmt.Sprintf("post %d", i)).Error)
	}
	require.NoError(t, db.Exec(`INSERT INTO settings (name, value) VALUES ('siteurl', 'http://x')`).Error)
	return db
}

func TestGormSourceTables(t *testing.T) {
	src := NewGormSource(openTestDB(t))
	assert.Equal(t, "sqlite", src.Dialect())

	tables, err := src.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 3)

	byName := map[string]Table{}
	for _, tb := range tables {
		byName[tb.Name] = tb
	}
	assert.Equal(t, int64(7), byName["posts"].RowEstimate)
	assert.Equal(t, "id", byName["posts"].IntegerPK)
	assert.Empty(t, byName["settings"].IntegerPK, "text key cannot drive keyset paging")
	assert.Empty(t, byName["term_links"].IntegerPK, "composite key cannot drive keyset paging")
}

func TestGormSourceCreateStatement(t *testing.T) {
	src := NewGormSource(openTestDB(t))

	ddl, err := src.CreateStatement(context.Background(), "posts")
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE posts")

	_, err = src.CreateStatement(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGormSourceRowsOffset(t *testing.T) {
	src := NewGormSource(openTestDB(t))

	set, err := src.RowsOffset(context.Background(), "posts", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title"}, set.Columns)
	assert.Len(t, set.Rows, 3)

	set, err = src.RowsOffset(context.Background(), "posts", 3, 6)
	require.NoError(t, err)
	assert.Len(t, set.Rows, 1)

	set, err = src.RowsOffset(context.Background(), "posts", 3, 7)
	require.NoError(t, err)
	assert.Empty(t, set.Rows)
}

func TestGormSourceRowsKeyset(t *testing.T) {
	src := NewGormSource(openTestDB(t))
	ctx := context.Background()

	set, err := src.RowsKeyset(ctx, "posts", "id", nil, 3)
	require.NoError(t, err)
	require.Len(t, set.Rows, 3)

	var last int64
	seen := 0
	var after *int64
	for {
		set, err := src.RowsKeyset(ctx, "posts", "id", after, 3)
		require.NoError(t, err)
		if len(set.Rows) == 0 {
			break
		}
		for _, row := range set.Rows {
			id, err := toInt64(row[0])
			require.NoError(t, err)
			assert.Greater(t, id, last, "ids strictly increase across pages")
			last = id
			seen++
		}
		after = &last
	}
	assert.Equal(t, 7, seen)
}
