package indexer

import "encoding/json"

const TableItemsTableName = "table_items"

var TableItemsTable = Table{
	Name: TableItemsTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "write_set_change_index", Type: "BIGINT"},
		{Name: "key", Type: "TEXT"},
		{Name: "table_handle", Type: "VARCHAR(66)"},
		{Name: "decoded_key", Type: "JSONB"},
		{Name: "decoded_value", Type: "JSONB", Nullable: true},
		{Name: "is_deleted", Type: "BOOLEAN"},
	},
	PrimaryKey: []string{"transaction_version", "write_set_change_index"},
}

// TableItem is one observed write to a table slot at a specific transaction.
type TableItem struct {
	TransactionVersion  uint64
	WriteSetChangeIndex int64
	Key                 string
	TableHandle         string
	DecodedKey          json.RawMessage
	DecodedValue        json.RawMessage
	IsDeleted           bool
}

func (t TableItem) Values() []any {
	return []any{
		t.TransactionVersion, t.WriteSetChangeIndex, t.Key, t.TableHandle,
		t.DecodedKey, t.DecodedValue, t.IsDeleted,
	}
}

func (t TableItem) Sanitized() TableItem {
	t.Key = CleanString(t.Key)
	t.TableHandle = CleanString(t.TableHandle)
	t.DecodedKey = CleanJSON(t.DecodedKey)
	t.DecodedValue = CleanJSON(t.DecodedValue)
	return t
}

const CurrentTableItemsTableName = "current_table_items"

// CurrentTableItemsTable holds the latest value per slot. Overlapping ranges
// may commit out of order, so an older version never replaces a newer one.
var CurrentTableItemsTable = Table{
	Name: CurrentTableItemsTableName,
	Columns: []ColumnDef{
		{Name: "table_handle", Type: "VARCHAR(66)"},
		{Name: "key_hash", Type: "VARCHAR(64)"},
		{Name: "key", Type: "TEXT"},
		{Name: "decoded_key", Type: "JSONB"},
		{Name: "decoded_value", Type: "JSONB", Nullable: true},
		{Name: "last_transaction_version", Type: "BIGINT"},
		{Name: "is_deleted", Type: "BOOLEAN"},
	},
	PrimaryKey:  []string{"table_handle", "key_hash"},
	Update:      []string{"key", "decoded_key", "decoded_value", "last_transaction_version", "is_deleted"},
	UpdateGuard: "current_table_items.last_transaction_version <= EXCLUDED.last_transaction_version",
}

type CurrentTableItem struct {
	TableHandle            string
	KeyHash                string
	Key                    string
	DecodedKey             json.RawMessage
	DecodedValue           json.RawMessage
	LastTransactionVersion uint64
	IsDeleted              bool
}

func (c CurrentTableItem) Values() []any {
	return []any{
		c.TableHandle, c.KeyHash, c.Key, c.DecodedKey, c.DecodedValue,
		c.LastTransactionVersion, c.IsDeleted,
	}
}

func (c CurrentTableItem) Sanitized() CurrentTableItem {
	c.TableHandle = CleanString(c.TableHandle)
	c.KeyHash = CleanString(c.KeyHash)
	c.Key = CleanString(c.Key)
	c.DecodedKey = CleanJSON(c.DecodedKey)
	c.DecodedValue = CleanJSON(c.DecodedValue)
	return c
}

const TableMetadataTableName = "table_metadatas"

// TableMetadataTable is immutable per handle: the first observed layout wins.
var TableMetadataTable = Table{
	Name: TableMetadataTableName,
	Columns: []ColumnDef{
		{Name: "handle", Type: "VARCHAR(66)"},
		{Name: "key_type", Type: "TEXT"},
		{Name: "value_type", Type: "TEXT"},
	},
	PrimaryKey: []string{"handle"},
}

type TableMetadata struct {
	Handle    string
	KeyType   string
	ValueType string
}

func (t TableMetadata) Values() []any {
	return []any{t.Handle, t.KeyType, t.ValueType}
}

func (t TableMetadata) Sanitized() TableMetadata {
	t.Handle = CleanString(t.Handle)
	t.KeyType = CleanString(t.KeyType)
	t.ValueType = CleanString(t.ValueType)
	return t
}
