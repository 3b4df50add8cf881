package indexer

import "encoding/json"

const EventsTableName = "events"

// EventsTable is append-only; an event has no identity beyond its position in
// the emitting transaction.
var EventsTable = Table{
	Name: EventsTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "event_index", Type: "BIGINT"},
		{Name: "account_address", Type: "VARCHAR(66)"},
		{Name: "creation_number", Type: "BIGINT"},
		{Name: "sequence_number", Type: "BIGINT"},
		{Name: "type", Type: "TEXT"},
		{Name: "data", Type: "JSONB"},
	},
	PrimaryKey: []string{"transaction_version", "event_index"},
}

// Event stores one event emitted during transaction execution.
// Block metadata transactions emit events too (e.g. new block events).
type Event struct {
	TransactionVersion uint64
	EventIndex         int64
	AccountAddress     string
	CreationNumber     uint64
	SequenceNumber     uint64
	Type               string
	Data               json.RawMessage
}

func (e Event) Values() []any {
	return []any{
		e.TransactionVersion, e.EventIndex, e.AccountAddress, e.CreationNumber,
		e.SequenceNumber, e.Type, e.Data,
	}
}

func (e Event) Sanitized() Event {
	e.AccountAddress = CleanString(e.AccountAddress)
	e.Type = CleanString(e.Type)
	e.Data = CleanJSON(e.Data)
	return e
}
