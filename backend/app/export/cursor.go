package export

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const cursorVersion = 1

var ErrInvalidCursor = errors.New("invalid export cursor")

// TableInfo caches the per-table pagination decision so it is made exactly
// once, at job init, and survives across stateless request cycles.
type TableInfo struct {
	RowEstimate  int64  `json:"rows"`
	ByteEstimate int64  `json:"bytes"`
	UseKeyset    bool   `json:"keyset"`
	PrimaryKey   string `json:"pk,omitempty"`
}

// Cursor is the full resume state of a paginated export. It is opaque to the
// transport: the engine only ever sees tokens produced by Encode.
type Cursor struct {
	Version    int                   `json:"v"`
	SessionID  string                `json:"sid"`
	Tables     []string              `json:"tables"`
	TableIndex int                   `json:"table_index"`
	TableName  string                `json:"table_name,omitempty"`
	Offset     int64                 `json:"offset"`
	LastPK     *int64                `json:"last_pk,omitempty"`
	SchemaSent bool                  `json:"schema_sent"`
	ChunkSize  int                   `json:"chunk_size"`
	Complete   bool                  `json:"complete"`
	TableInfo  map[string]*TableInfo `json:"info"`
}

// Encode serializes the cursor into an opaque token.
func (c *Cursor) Encode() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a token back into a cursor, validating structure so a
// corrupted token is reported as ErrInvalidCursor rather than misbehaving
// downstream.
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Cursor) validate() error {
	switch {
	case c.Version != cursorVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, c.Version)
	case c.SessionID == "":
		return fmt.Errorf("%w: missing session id", ErrInvalidCursor)
	case len(c.Tables) == 0:
		return fmt.Errorf("%w: empty table list", ErrInvalidCursor)
	case c.TableIndex < 0 || c.TableIndex > len(c.Tables):
		return fmt.Errorf("%w: table index %d out of range", ErrInvalidCursor, c.TableIndex)
	case c.ChunkSize < MinChunkRows || c.ChunkSize > MaxChunkRows:
		return fmt.Errorf("%w: chunk size %d out of range", ErrInvalidCursor, c.ChunkSize)
	case c.Complete != (c.TableIndex == len(c.Tables)):
		return fmt.Errorf("%w: completion flag inconsistent with table index", ErrInvalidCursor)
	case c.Offset < 0:
		return fmt.Errorf("%w: negative offset", ErrInvalidCursor)
	}
	for _, name := range c.Tables {
		if c.TableInfo[name] == nil {
			return fmt.Errorf("%w: missing info for table %s", ErrInvalidCursor, name)
		}
	}
	return nil
}

func (c *Cursor) clone() *Cursor {
	out := *c
	out.Tables = append([]string(nil), c.Tables...)
	out.TableInfo = make(map[string]*TableInfo, len(c.TableInfo))
	for name, info := range c.TableInfo {
		cp := *info
		out.TableInfo[name] = &cp
	}
	if c.LastPK != nil {
		pk := *c.LastPK
		out.LastPK = &pk
	}
	return &out
}
