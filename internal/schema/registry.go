// Package schema is the single source of truth for the database layout:
// tables, columns, relations, and storage buckets. It is a static in-memory
// registry with lookup accessors, consumed by the CSV exporter (column
// ordering) and by the schemacheck verification tool.
//
// The registry deliberately describes the schema rather than creating it;
// migrations are driven by the GORM models in the domain package. The
// schemacheck command compares the two.
package schema

import (
	"errors"
	"fmt"
)

// Lookup errors. HasColumn never returns these; it reports false instead.
var (
	ErrUnknownTable  = errors.New("schema: unknown table")
	ErrUnknownColumn = errors.New("schema: unknown column")
)

// Column describes one table column.
type Column struct {
	Name        string
	Type        string
	Nullable    bool
	PrimaryKey  bool
	Unique      bool
	Description string
}

// Relation describes a foreign-key relationship between two tables.
type Relation struct {
	Name         string
	ForeignTable string
	ForeignKey   string
	OnDelete     string
}

// Table describes one table: its columns in declaration order and its
// outgoing relations.
type Table struct {
	Name        string
	Description string
	Columns     []Column
	Relations   []Relation
}

// Bucket describes one object-storage bucket used for message file content.
type Bucket struct {
	Name          string
	Description   string
	Public        bool
	FileSizeLimit int64
}

// Table names.
const (
	TableUsers         = "users"
	TableMessages      = "messages"
	TableMessageLimits = "message_limits"
	TableSystemStats   = "system_stats"
)

var tables = map[string]*Table{
	TableUsers: {
		Name:        TableUsers,
		Description: "LINE contacts with CRM fields and running message counters",
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, Description: "internal user identity"},
			{Name: "line_user_id", Type: "TEXT", Unique: true, Description: "LINE platform user identity"},
			{Name: "display_name", Type: "TEXT", Nullable: true, Description: "display name from the LINE Profile API"},
			{Name: "picture_url", Type: "TEXT", Nullable: true, Description: "avatar URL"},
			{Name: "status_message", Type: "TEXT", Nullable: true, Description: "LINE status message"},
			{Name: "language", Type: "TEXT", Nullable: true, Description: "profile language (BCP-47)"},
			{Name: "erp_bi_code", Type: "TEXT", Nullable: true, Description: "ERP customer code"},
			{Name: "erp_bi_name", Type: "TEXT", Nullable: true, Description: "ERP customer name"},
			{Name: "is_active", Type: "BOOLEAN", Description: "false after the contact blocks the bot"},
			{Name: "first_message_at", Type: "DATETIME", Nullable: true, Description: "first inbound message timestamp"},
			{Name: "last_message_at", Type: "DATETIME", Nullable: true, Description: "most recent inbound message timestamp"},
			{Name: "message_count", Type: "INTEGER", Description: "total inbound messages"},
			{Name: "unread_count", Type: "INTEGER", Description: "messages since last mark-read"},
			{Name: "tags", Type: "TEXT", Nullable: true, Description: "CRM tags (JSON array)"},
			{Name: "notes", Type: "TEXT", Nullable: true, Description: "free-form CRM notes"},
			{Name: "created_at", Type: "DATETIME", Description: "row creation time"},
			{Name: "updated_at", Type: "DATETIME", Description: "row update time"},
		},
		Relations: []Relation{
			{Name: "messages", ForeignTable: TableMessages, ForeignKey: "user_id", OnDelete: "CASCADE"},
		},
	},
	TableMessages: {
		Name:        TableMessages,
		Description: "immutable inbound message records",
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, Description: "internal message identity"},
			{Name: "line_message_id", Type: "TEXT", Unique: true, Description: "LINE platform message identity (idempotency key)"},
			{Name: "user_id", Type: "INTEGER", Description: "owning user"},
			{Name: "message_type", Type: "TEXT", Description: "text|image|file|audio|video|sticker|location"},
			{Name: "text_content", Type: "TEXT", Nullable: true, Description: "text payload (synthesized for sticker/location)"},
			{Name: "file_id", Type: "TEXT", Nullable: true, Description: "storage file identity"},
			{Name: "file_name", Type: "TEXT", Nullable: true, Description: "original file name"},
			{Name: "file_path", Type: "TEXT", Nullable: true, Description: "storage path"},
			{Name: "file_size", Type: "BIGINT", Nullable: true, Description: "file size in bytes"},
			{Name: "file_type", Type: "TEXT", Nullable: true, Description: "MIME type"},
			{Name: "timestamp", Type: "DATETIME", Description: "platform event timestamp"},
			{Name: "processed", Type: "BOOLEAN", Description: "downstream file-download flag"},
			{Name: "metadata", Type: "TEXT", Nullable: true, Description: "extra JSON payload"},
			{Name: "created_at", Type: "DATETIME", Description: "row creation time"},
		},
		Relations: []Relation{
			{Name: "user", ForeignTable: TableUsers, ForeignKey: "user_id"},
		},
	},
	TableMessageLimits: {
		Name:        TableMessageLimits,
		Description: "system capacity limits",
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, Description: "limit record identity"},
			{Name: "limit_type", Type: "TEXT", Unique: true, Description: "max_messages|max_users"},
			{Name: "limit_value", Type: "INTEGER", Description: "configured cap"},
			{Name: "current_count", Type: "INTEGER", Description: "current usage"},
			{Name: "is_active", Type: "BOOLEAN", Description: "whether the limit is enforced"},
			{Name: "created_at", Type: "DATETIME", Description: "row creation time"},
			{Name: "updated_at", Type: "DATETIME", Description: "row update time"},
		},
	},
	TableSystemStats: {
		Name:        TableSystemStats,
		Description: "named system counters",
		Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true, Description: "stat record identity"},
			{Name: "stat_name", Type: "TEXT", Unique: true, Description: "stat name"},
			{Name: "stat_value", Type: "INTEGER", Description: "stat value"},
			{Name: "updated_at", Type: "DATETIME", Description: "row update time"},
		},
	},
}

// Buckets lists the object-storage buckets message file content would be
// downloaded into by the (not yet implemented) file pipeline.
var Buckets = map[string]Bucket{
	"line-message-files": {
		Name:          "line-message-files",
		Description:   "LINE message file content",
		Public:        false,
		FileSizeLimit: 50 << 20,
	},
}

// Tables returns the registered table names in no particular order.
func Tables() []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	return out
}

// Lookup returns the full definition of a table.
func Lookup(table string) (*Table, error) {
	t, ok := tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return t, nil
}

// Columns returns the column names of a table in declaration order.
func Columns(table string) ([]string, error) {
	t, ok := tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out, nil
}

// PrimaryKey returns the primary-key column of a table.
func PrimaryKey(table string) (string, error) {
	t, ok := tables[table]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no primary key", ErrUnknownColumn, table)
}

// HasColumn reports whether the table defines the column. Unknown tables
// report false rather than an error.
func HasColumn(table, column string) bool {
	t, ok := tables[table]
	if !ok {
		return false
	}
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

// ColumnDef returns the full definition of one column.
func ColumnDef(table, column string) (Column, error) {
	t, ok := tables[table]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for _, c := range t.Columns {
		if c.Name == column {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
}
