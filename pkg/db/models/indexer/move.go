package indexer

import "encoding/json"

const MoveModulesTableName = "move_modules"

var MoveModulesTable = Table{
	Name: MoveModulesTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "write_set_change_index", Type: "BIGINT"},
		{Name: "name", Type: "TEXT"},
		{Name: "address", Type: "VARCHAR(66)"},
		{Name: "bytecode", Type: "BYTEA", Nullable: true},
		{Name: "friends", Type: "JSONB", Nullable: true},
		{Name: "exposed_functions", Type: "JSONB", Nullable: true},
		{Name: "structs", Type: "JSONB", Nullable: true},
		{Name: "is_deleted", Type: "BOOLEAN"},
	},
	PrimaryKey: []string{"transaction_version", "write_set_change_index"},
}

// MoveModule is a published (or deleted) Move module. ABI fields are nil for deletes.
type MoveModule struct {
	TransactionVersion  uint64
	WriteSetChangeIndex int64
	Name                string
	Address             string
	Bytecode            []byte
	Friends             json.RawMessage
	ExposedFunctions    json.RawMessage
	Structs             json.RawMessage
	IsDeleted           bool
}

func (m MoveModule) Values() []any {
	return []any{
		m.TransactionVersion, m.WriteSetChangeIndex, m.Name, m.Address, m.Bytecode,
		m.Friends, m.ExposedFunctions, m.Structs, m.IsDeleted,
	}
}

func (m MoveModule) Sanitized() MoveModule {
	m.Name = CleanString(m.Name)
	m.Address = CleanString(m.Address)
	m.Friends = CleanJSON(m.Friends)
	m.ExposedFunctions = CleanJSON(m.ExposedFunctions)
	m.Structs = CleanJSON(m.Structs)
	return m
}

const MoveResourcesTableName = "move_resources"

var MoveResourcesTable = Table{
	Name: MoveResourcesTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "write_set_change_index", Type: "BIGINT"},
		{Name: "name", Type: "TEXT"},
		{Name: "address", Type: "VARCHAR(66)"},
		{Name: "type", Type: "TEXT"},
		{Name: "module", Type: "TEXT"},
		{Name: "generic_type_params", Type: "JSONB", Nullable: true},
		{Name: "data", Type: "JSONB", Nullable: true},
		{Name: "is_deleted", Type: "BOOLEAN"},
		{Name: "state_key_hash", Type: "VARCHAR(66)"},
	},
	PrimaryKey: []string{"transaction_version", "write_set_change_index"},
}

// MoveResource is a resource written to (or deleted from) an account.
type MoveResource struct {
	TransactionVersion  uint64
	WriteSetChangeIndex int64
	Name                string
	Address             string
	Type                string
	Module              string
	GenericTypeParams   json.RawMessage
	Data                json.RawMessage
	IsDeleted           bool
	StateKeyHash        string
}

func (r MoveResource) Values() []any {
	return []any{
		r.TransactionVersion, r.WriteSetChangeIndex, r.Name, r.Address, r.Type, r.Module,
		r.GenericTypeParams, r.Data, r.IsDeleted, r.StateKeyHash,
	}
}

func (r MoveResource) Sanitized() MoveResource {
	r.Name = CleanString(r.Name)
	r.Address = CleanString(r.Address)
	r.Type = CleanString(r.Type)
	r.Module = CleanString(r.Module)
	r.GenericTypeParams = CleanJSON(r.GenericTypeParams)
	r.Data = CleanJSON(r.Data)
	r.StateKeyHash = CleanString(r.StateKeyHash)
	return r
}
