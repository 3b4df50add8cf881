package indexer

import (
	"fmt"
	"strings"
)

// ColumnDef defines a single column for a table.
// This is the single source of truth for column definitions, used by:
// - schema creation (pkg/db/postgres/chain)
// - multi-row upserts (internal/processor)
type ColumnDef struct {
	// Name is the column name.
	Name string

	// Type is the PostgreSQL column type.
	Type string

	// Nullable drops the NOT NULL constraint.
	Nullable bool
}

// Table describes one entity table and how rows are reconciled on conflict.
type Table struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string

	// Update lists the columns replaced on conflict. Empty means DO NOTHING.
	Update []string

	// UpdateGuard is an optional WHERE clause on the DO UPDATE branch.
	UpdateGuard string
}

// Row is an entity that can be bound as one VALUES tuple, in Columns order.
type Row interface {
	Values() []any
}

// ColumnNames extracts just the column names.
// Useful for INSERT statements.
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	return names
}

// FieldCount is the number of bind parameters a single row consumes.
func (t Table) FieldCount() int {
	return len(t.Columns)
}

// SchemaSQL renders the CREATE TABLE statement for the table.
func (t Table) SchemaSQL() string {
	parts := make([]string, 0, len(t.Columns)+2)
	for _, col := range t.Columns {
		def := fmt.Sprintf("%s %s", col.Name, col.Type)
		if !col.Nullable {
			def += " NOT NULL"
		}
		parts = append(parts, def)
	}
	parts = append(parts, "inserted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()")
	parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(parts, ",\n\t"))
}

// Validate checks that the primary key and update columns exist.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	known := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %s: column name cannot be empty", t.Name)
		}
		known[col.Name] = true
	}
	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("table %s: primary key is required", t.Name)
	}
	for _, k := range t.PrimaryKey {
		if !known[k] {
			return fmt.Errorf("table %s: primary key column %s is not defined", t.Name, k)
		}
	}
	for _, u := range t.Update {
		if !known[u] {
			return fmt.Errorf("table %s: update column %s is not defined", t.Name, u)
		}
	}
	return nil
}

// Tables lists every entity table in write order.
var Tables = []Table{
	TransactionsTable,
	UserTransactionsTable,
	SignaturesTable,
	BlockMetadataTransactionsTable,
	EventsTable,
	WriteSetChangesTable,
	MoveModulesTable,
	MoveResourcesTable,
	TableItemsTable,
	CurrentTableItemsTable,
	TableMetadataTable,
}
