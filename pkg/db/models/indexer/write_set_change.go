package indexer

const WriteSetChangesTableName = "write_set_changes"

var WriteSetChangesTable = Table{
	Name: WriteSetChangesTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "index", Type: "BIGINT"},
		{Name: "hash", Type: "VARCHAR(66)"},
		{Name: "type", Type: "TEXT"},
		{Name: "address", Type: "VARCHAR(66)"},
	},
	PrimaryKey: []string{"transaction_version", "index"},
}

// WriteSetChange records one state mutation. Address is the module or
// resource owner, or the table handle for table item changes.
type WriteSetChange struct {
	TransactionVersion uint64
	Index              int64
	Hash               string
	Type               string
	Address            string
}

func (w WriteSetChange) Values() []any {
	return []any{w.TransactionVersion, w.Index, w.Hash, w.Type, w.Address}
}

func (w WriteSetChange) Sanitized() WriteSetChange {
	w.Hash = CleanString(w.Hash)
	w.Type = CleanString(w.Type)
	w.Address = CleanString(w.Address)
	return w
}

// WriteSetChangeDetail is the per-change variant record: exactly one of
// *ModuleDetail, *ResourceDetail or *TableDetail.
type WriteSetChangeDetail interface {
	isWriteSetChangeDetail()
}

type ModuleDetail struct {
	Module MoveModule
}

type ResourceDetail struct {
	Resource MoveResource
}

// TableDetail carries the append-only table item, the current value of the
// slot and, when the write exposed decoded types, the table's metadata.
type TableDetail struct {
	Item     TableItem
	Current  CurrentTableItem
	Metadata *TableMetadata
}

func (*ModuleDetail) isWriteSetChangeDetail()   {}
func (*ResourceDetail) isWriteSetChangeDetail() {}
func (*TableDetail) isWriteSetChangeDetail()    {}
