package transform

import (
	"encoding/json"
	"fmt"
	"time"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
)

// DecodeError reports a raw transaction that cannot be decomposed.
type DecodeError struct {
	Version string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode transaction %s: %s", e.Version, e.Reason)
}

// Decomposed holds the entity batches produced from one ordered run of
// transactions. Details is 1:1 with Transactions and ChangeDetails is 1:1
// with WriteSetChanges.
type Decomposed struct {
	Transactions    []indexermodels.Transaction
	Details         []indexermodels.TransactionDetail
	Events          []indexermodels.Event
	WriteSetChanges []indexermodels.WriteSetChange
	ChangeDetails   []indexermodels.WriteSetChangeDetail
}

// FromTransactions decomposes txs in a single pass. The first malformed
// transaction aborts the pass with a *DecodeError; no partial output is returned.
func FromTransactions(txs []rpc.Transaction) (*Decomposed, error) {
	out := &Decomposed{
		Transactions: make([]indexermodels.Transaction, 0, len(txs)),
		Details:      make([]indexermodels.TransactionDetail, 0, len(txs)),
	}
	for i := range txs {
		if err := out.add(&txs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Decomposed) add(tx *rpc.Transaction) error {
	fail := func(format string, args ...any) error {
		return &DecodeError{Version: tx.Version, Reason: fmt.Sprintf(format, args...)}
	}

	version, err := parseUint(tx.Version)
	if err != nil {
		return fail("version: %v", err)
	}
	gasUsed, err := parseUint(tx.GasUsed)
	if err != nil {
		return fail("gas_used: %v", err)
	}

	// Genesis carries no timestamp.
	ts := time.Unix(0, 0).UTC()
	if tx.Type != rpc.TypeGenesisTransaction {
		if ts, err = parseMicros(tx.Timestamp); err != nil {
			return fail("timestamp: %v", err)
		}
	}

	var detail indexermodels.TransactionDetail
	switch tx.Type {
	case rpc.TypeUserTransaction:
		detail, err = userDetail(tx, version, ts)
	case rpc.TypeBlockMetadataTransaction:
		detail, err = blockMetadataDetail(tx, version, ts)
	case rpc.TypeGenesisTransaction, rpc.TypeStateCheckpoint:
		detail = &indexermodels.SystemDetail{Type: tx.Type}
	default:
		err = fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if err != nil {
		return fail("%v", err)
	}

	events, err := eventsFrom(tx.Events, version)
	if err != nil {
		return fail("%v", err)
	}
	changes, changeDetails, err := changesFrom(tx.Changes, version)
	if err != nil {
		return fail("%v", err)
	}

	d.Transactions = append(d.Transactions, indexermodels.Transaction{
		Version:             version,
		Hash:                tx.Hash,
		Type:                tx.Type,
		Payload:             tx.Payload,
		StateChangeHash:     tx.StateChangeHash,
		EventRootHash:       tx.EventRootHash,
		StateCheckpointHash: tx.StateCheckpointHash,
		GasUsed:             gasUsed,
		Success:             tx.Success,
		VMStatus:            tx.VMStatus,
		AccumulatorRootHash: tx.AccumulatorRootHash,
		NumEvents:           int64(len(events)),
		NumWriteSetChanges:  int64(len(changes)),
		Timestamp:           ts,
	})
	d.Details = append(d.Details, detail)
	d.Events = append(d.Events, events...)
	d.WriteSetChanges = append(d.WriteSetChanges, changes...)
	d.ChangeDetails = append(d.ChangeDetails, changeDetails...)
	return nil
}

func userDetail(tx *rpc.Transaction, version uint64, ts time.Time) (*indexermodels.UserDetail, error) {
	seq, err := parseUint(tx.SequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("sequence_number: %w", err)
	}
	maxGas, err := parseUint(tx.MaxGasAmount)
	if err != nil {
		return nil, fmt.Errorf("max_gas_amount: %w", err)
	}
	gasPrice, err := parseUint(tx.GasUnitPrice)
	if err != nil {
		return nil, fmt.Errorf("gas_unit_price: %w", err)
	}
	expiration, err := parseUint(tx.ExpirationTimestampSecs)
	if err != nil {
		return nil, fmt.Errorf("expiration_timestamp_secs: %w", err)
	}
	if tx.Signature == nil {
		return nil, fmt.Errorf("user transaction without signature")
	}
	sigs, err := signaturesFrom(tx.Signature, tx.Sender, version)
	if err != nil {
		return nil, err
	}

	return &indexermodels.UserDetail{
		Transaction: indexermodels.UserTransaction{
			Version:                 version,
			ParentSignatureType:     tx.Signature.Type,
			Sender:                  tx.Sender,
			SequenceNumber:          seq,
			MaxGasAmount:            maxGas,
			ExpirationTimestampSecs: expirationTime(expiration),
			GasUnitPrice:            gasPrice,
			Timestamp:               ts,
			EntryFunctionIDStr:      entryFunctionID(tx.Payload),
		},
		Signatures: sigs,
	}, nil
}

func blockMetadataDetail(tx *rpc.Transaction, version uint64, ts time.Time) (*indexermodels.BlockMetadataDetail, error) {
	epoch, err := parseUint(tx.Epoch)
	if err != nil {
		return nil, fmt.Errorf("epoch: %w", err)
	}
	round, err := parseUint(tx.Round)
	if err != nil {
		return nil, fmt.Errorf("round: %w", err)
	}
	return &indexermodels.BlockMetadataDetail{
		Transaction: indexermodels.BlockMetadataTransaction{
			Version:                  version,
			ID:                       tx.ID,
			Round:                    round,
			Epoch:                    epoch,
			PreviousBlockVotesBitvec: jsonOrEmptyArray(tx.PreviousBlockVotesBitvec),
			Proposer:                 tx.Proposer,
			FailedProposerIndices:    jsonOrEmptyArray(tx.FailedProposerIndices),
			Timestamp:                ts,
		},
	}, nil
}

func eventsFrom(raw []rpc.Event, version uint64) ([]indexermodels.Event, error) {
	events := make([]indexermodels.Event, 0, len(raw))
	for i, e := range raw {
		creation, err := parseUint(e.GUID.CreationNumber)
		if err != nil {
			return nil, fmt.Errorf("event %d creation_number: %w", i, err)
		}
		seq, err := parseUint(e.SequenceNumber)
		if err != nil {
			return nil, fmt.Errorf("event %d sequence_number: %w", i, err)
		}
		events = append(events, indexermodels.Event{
			TransactionVersion: version,
			EventIndex:         int64(i),
			AccountAddress:     e.GUID.AccountAddress,
			CreationNumber:     creation,
			SequenceNumber:     seq,
			Type:               e.Type,
			Data:               jsonOrNull(e.Data),
		})
	}
	return events, nil
}

// entryFunctionID returns "addr::module::function" for entry function
// payloads and "" for everything else.
func entryFunctionID(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var p struct {
		Type     string `json:"type"`
		Function string `json:"function"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if p.Type != "entry_function_payload" {
		return ""
	}
	return p.Function
}
