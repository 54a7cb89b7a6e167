package export

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxRowsPerInsert bounds how many value tuples share one INSERT statement.
const maxRowsPerInsert = 100

// sqlWriter serializes schema statements and rows into dump text. The
// dialect only changes string escaping: MySQL honors backslash escapes,
// SQLite treats backslashes literally.
type sqlWriter struct {
	dialect string
}

func (w *sqlWriter) preamble(tableCount int) string {
	var b strings.Builder
	b.WriteString("-- sitevault database export\n")
	fmt.Fprintf(&b, "-- tables: %d\n\n", tableCount)
	if w.dialect == "mysql" {
		b.WriteString("SET NAMES utf8mb4;\n")
		b.WriteString("SET FOREIGN_KEY_CHECKS=0;\n\n")
	} else {
		b.WriteString("PRAGMA foreign_keys=OFF;\n\n")
	}
	return b.String()
}

func (w *sqlWriter) tableHeader(buf *bytes.Buffer, table, ddl string) {
	fmt.Fprintf(buf, "--\n-- Table %s\n--\n\n", table)
	fmt.Fprintf(buf, "DROP TABLE IF EXISTS %s;\n", w.quote(table))
	buf.WriteString(strings.TrimRight(ddl, "; \n"))
	buf.WriteString(";\n\n")
}

func (w *sqlWriter) tableFooter(buf *bytes.Buffer, table string) {
	fmt.Fprintf(buf, "-- End of table %s\n\n", table)
}

func (w *sqlWriter) trailer(buf *bytes.Buffer) {
	if w.dialect == "mysql" {
		buf.WriteString("SET FOREIGN_KEY_CHECKS=1;\n")
	}
	buf.WriteString("-- export complete\n")
}

func (w *sqlWriter) quote(ident string) string {
	if w.dialect == "mysql" {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// insertBuilder accumulates rows into grouped INSERT statements, starting a
// fresh statement every maxRowsPerInsert rows so no single statement grows
// without bound.
type insertBuilder struct {
	w     *sqlWriter
	buf   *bytes.Buffer
	table string
	cols  []string
	open  bool
	count int
}

func (w *sqlWriter) newInsertBuilder(buf *bytes.Buffer, table string, cols []string) *insertBuilder {
	return &insertBuilder{w: w, buf: buf, table: table, cols: cols}
}

func (b *insertBuilder) add(row []any) {
	if !b.open {
		quoted := make([]string, len(b.cols))
		for i, c := range b.cols {
			quoted[i] = b.w.quote(c)
		}
		fmt.Fprintf(b.buf, "INSERT INTO %s (%s) VALUES\n",
			b.w.quote(b.table), strings.Join(quoted, ", "))
		b.open = true
		b.count = 0
	} else {
		b.buf.WriteString(",\n")
	}
	b.buf.WriteByte('(')
	for i, v := range row {
		if i > 0 {
			b.buf.WriteString(", ")
		}
		b.buf.WriteString(b.w.literal(v))
	}
	b.buf.WriteByte(')')
	b.count++
	if b.count >= maxRowsPerInsert {
		b.buf.WriteString(";\n")
		b.open = false
	}
}

func (b *insertBuilder) flush() {
	if b.open {
		b.buf.WriteString(";\n")
		b.open = false
	}
}

func (w *sqlWriter) literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05") + "'"
	case []byte:
		if len(x) == 0 {
			return "''"
		}
		return "X'" + hex.EncodeToString(x) + "'"
	case string:
		return w.quoteString(x)
	default:
		return w.quoteString(fmt.Sprintf("%v", x))
	}
}

func (w *sqlWriter) quoteString(s string) string {
	if w.dialect != "mysql" {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
