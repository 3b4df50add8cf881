package indexer

import (
	"encoding/json"
	"time"
)

const TransactionsTableName = "transactions"

// TransactionsTable holds one row per transaction, keyed by version.
var TransactionsTable = Table{
	Name: TransactionsTableName,
	Columns: []ColumnDef{
		{Name: "version", Type: "BIGINT"},
		{Name: "hash", Type: "VARCHAR(66)"},
		{Name: "type", Type: "VARCHAR(50)"},
		{Name: "payload", Type: "JSONB", Nullable: true},
		{Name: "state_change_hash", Type: "VARCHAR(66)"},
		{Name: "event_root_hash", Type: "VARCHAR(66)"},
		{Name: "state_checkpoint_hash", Type: "VARCHAR(66)", Nullable: true},
		{Name: "gas_used", Type: "BIGINT"},
		{Name: "success", Type: "BOOLEAN"},
		{Name: "vm_status", Type: "TEXT"},
		{Name: "accumulator_root_hash", Type: "VARCHAR(66)"},
		{Name: "num_events", Type: "BIGINT"},
		{Name: "num_write_set_changes", Type: "BIGINT"},
		{Name: "timestamp", Type: "TIMESTAMP"},
	},
	PrimaryKey: []string{"version"},
}

// Transaction is the canonical record of one transaction. It is also the
// payload forwarded to the event sink.
type Transaction struct {
	Version             uint64          `json:"version"`
	Hash                string          `json:"hash"`
	Type                string          `json:"type"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	StateChangeHash     string          `json:"state_change_hash"`
	EventRootHash       string          `json:"event_root_hash"`
	StateCheckpointHash *string         `json:"state_checkpoint_hash,omitempty"`
	GasUsed             uint64          `json:"gas_used"`
	Success             bool            `json:"success"`
	VMStatus            string          `json:"vm_status"`
	AccumulatorRootHash string          `json:"accumulator_root_hash"`
	NumEvents           int64           `json:"num_events"`
	NumWriteSetChanges  int64           `json:"num_write_set_changes"`
	Timestamp           time.Time       `json:"timestamp"`
}

func (t Transaction) Values() []any {
	return []any{
		t.Version, t.Hash, t.Type, t.Payload, t.StateChangeHash, t.EventRootHash,
		t.StateCheckpointHash, t.GasUsed, t.Success, t.VMStatus, t.AccumulatorRootHash,
		t.NumEvents, t.NumWriteSetChanges, t.Timestamp,
	}
}

func (t Transaction) Sanitized() Transaction {
	t.Hash = CleanString(t.Hash)
	t.Type = CleanString(t.Type)
	t.Payload = CleanJSON(t.Payload)
	t.StateChangeHash = CleanString(t.StateChangeHash)
	t.EventRootHash = CleanString(t.EventRootHash)
	if t.StateCheckpointHash != nil {
		h := CleanString(*t.StateCheckpointHash)
		t.StateCheckpointHash = &h
	}
	t.VMStatus = CleanString(t.VMStatus)
	t.AccumulatorRootHash = CleanString(t.AccumulatorRootHash)
	return t
}

const UserTransactionsTableName = "user_transactions"

var UserTransactionsTable = Table{
	Name: UserTransactionsTableName,
	Columns: []ColumnDef{
		{Name: "version", Type: "BIGINT"},
		{Name: "parent_signature_type", Type: "VARCHAR(50)"},
		{Name: "sender", Type: "VARCHAR(66)"},
		{Name: "sequence_number", Type: "BIGINT"},
		{Name: "max_gas_amount", Type: "BIGINT"},
		{Name: "expiration_timestamp_secs", Type: "TIMESTAMP"},
		{Name: "gas_unit_price", Type: "BIGINT"},
		{Name: "timestamp", Type: "TIMESTAMP"},
		{Name: "entry_function_id_str", Type: "TEXT"},
	},
	PrimaryKey: []string{"version"},
}

type UserTransaction struct {
	Version                 uint64
	ParentSignatureType     string
	Sender                  string
	SequenceNumber          uint64
	MaxGasAmount            uint64
	ExpirationTimestampSecs time.Time
	GasUnitPrice            uint64
	Timestamp               time.Time
	EntryFunctionIDStr      string
}

func (u UserTransaction) Values() []any {
	return []any{
		u.Version, u.ParentSignatureType, u.Sender, u.SequenceNumber, u.MaxGasAmount,
		u.ExpirationTimestampSecs, u.GasUnitPrice, u.Timestamp, u.EntryFunctionIDStr,
	}
}

func (u UserTransaction) Sanitized() UserTransaction {
	u.ParentSignatureType = CleanString(u.ParentSignatureType)
	u.Sender = CleanString(u.Sender)
	u.EntryFunctionIDStr = CleanString(u.EntryFunctionIDStr)
	return u
}

const SignaturesTableName = "signatures"

var SignaturesTable = Table{
	Name: SignaturesTableName,
	Columns: []ColumnDef{
		{Name: "transaction_version", Type: "BIGINT"},
		{Name: "multi_agent_index", Type: "BIGINT"},
		{Name: "multi_sig_index", Type: "BIGINT"},
		{Name: "is_sender_primary", Type: "BOOLEAN"},
		{Name: "type", Type: "VARCHAR(50)"},
		{Name: "signer", Type: "VARCHAR(66)"},
		{Name: "public_key", Type: "VARCHAR(136)"},
		{Name: "signature", Type: "TEXT"},
		{Name: "threshold", Type: "BIGINT"},
		{Name: "public_key_indices", Type: "JSONB"},
	},
	PrimaryKey: []string{"transaction_version", "multi_agent_index", "multi_sig_index", "is_sender_primary"},
}

// Signature is one signer entry of a user transaction's authenticator.
type Signature struct {
	TransactionVersion uint64
	MultiAgentIndex    int64
	MultiSigIndex      int64
	IsSenderPrimary    bool
	Type               string
	Signer             string
	PublicKey          string
	Signature          string
	Threshold          int64
	PublicKeyIndices   json.RawMessage
}

func (s Signature) Values() []any {
	return []any{
		s.TransactionVersion, s.MultiAgentIndex, s.MultiSigIndex, s.IsSenderPrimary, s.Type,
		s.Signer, s.PublicKey, s.Signature, s.Threshold, s.PublicKeyIndices,
	}
}

func (s Signature) Sanitized() Signature {
	s.Type = CleanString(s.Type)
	s.Signer = CleanString(s.Signer)
	s.PublicKey = CleanString(s.PublicKey)
	s.Signature = CleanString(s.Signature)
	s.PublicKeyIndices = CleanJSON(s.PublicKeyIndices)
	return s
}

const BlockMetadataTransactionsTableName = "block_metadata_transactions"

var BlockMetadataTransactionsTable = Table{
	Name: BlockMetadataTransactionsTableName,
	Columns: []ColumnDef{
		{Name: "version", Type: "BIGINT"},
		{Name: "id", Type: "VARCHAR(66)"},
		{Name: "round", Type: "BIGINT"},
		{Name: "epoch", Type: "BIGINT"},
		{Name: "previous_block_votes_bitvec", Type: "JSONB"},
		{Name: "proposer", Type: "VARCHAR(66)"},
		{Name: "failed_proposer_indices", Type: "JSONB"},
		{Name: "timestamp", Type: "TIMESTAMP"},
	},
	PrimaryKey: []string{"version"},
}

type BlockMetadataTransaction struct {
	Version                  uint64
	ID                       string
	Round                    uint64
	Epoch                    uint64
	PreviousBlockVotesBitvec json.RawMessage
	Proposer                 string
	FailedProposerIndices    json.RawMessage
	Timestamp                time.Time
}

func (b BlockMetadataTransaction) Values() []any {
	return []any{
		b.Version, b.ID, b.Round, b.Epoch, b.PreviousBlockVotesBitvec,
		b.Proposer, b.FailedProposerIndices, b.Timestamp,
	}
}

func (b BlockMetadataTransaction) Sanitized() BlockMetadataTransaction {
	b.ID = CleanString(b.ID)
	b.PreviousBlockVotesBitvec = CleanJSON(b.PreviousBlockVotesBitvec)
	b.Proposer = CleanString(b.Proposer)
	b.FailedProposerIndices = CleanJSON(b.FailedProposerIndices)
	return b
}

// TransactionDetail is the per-transaction variant record: exactly one of
// *UserDetail, *BlockMetadataDetail or *SystemDetail.
type TransactionDetail interface {
	isTransactionDetail()
}

// UserDetail carries a user transaction and its signatures in authenticator order.
type UserDetail struct {
	Transaction UserTransaction
	Signatures  []Signature
}

// BlockMetadataDetail carries a block metadata transaction.
type BlockMetadataDetail struct {
	Transaction BlockMetadataTransaction
}

// SystemDetail marks genesis and state checkpoint transactions, which have
// no rows beyond the transaction record itself.
type SystemDetail struct {
	Type string
}

func (*UserDetail) isTransactionDetail()          {}
func (*BlockMetadataDetail) isTransactionDetail() {}
func (*SystemDetail) isTransactionDetail()        {}
