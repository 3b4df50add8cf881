package rpc

import (
	"encoding/json"
	"fmt"
)

// Transaction type tags as reported by the fullnode REST API.
const (
	TypeUserTransaction          = "user_transaction"
	TypeBlockMetadataTransaction = "block_metadata_transaction"
	TypeGenesisTransaction       = "genesis_transaction"
	TypeStateCheckpoint          = "state_checkpoint_transaction"
)

// Write set change type tags.
const (
	ChangeWriteModule     = "write_module"
	ChangeDeleteModule    = "delete_module"
	ChangeWriteResource   = "write_resource"
	ChangeDeleteResource  = "delete_resource"
	ChangeWriteTableItem  = "write_table_item"
	ChangeDeleteTableItem = "delete_table_item"
)

// Transaction is a raw transaction as served by GET /v1/transactions.
// Numeric fields are decimal strings, as on the wire; the decomposer parses them.
type Transaction struct {
	Type                string           `json:"type"`
	Version             string           `json:"version"`
	Hash                string           `json:"hash"`
	StateChangeHash     string           `json:"state_change_hash"`
	EventRootHash       string           `json:"event_root_hash"`
	StateCheckpointHash *string          `json:"state_checkpoint_hash"`
	GasUsed             string           `json:"gas_used"`
	Success             bool             `json:"success"`
	VMStatus            string           `json:"vm_status"`
	AccumulatorRootHash string           `json:"accumulator_root_hash"`
	Changes             []WriteSetChange `json:"changes"`
	Events              []Event          `json:"events"`
	Timestamp           string           `json:"timestamp"`

	// user_transaction
	Sender                  string          `json:"sender,omitempty"`
	SequenceNumber          string          `json:"sequence_number,omitempty"`
	MaxGasAmount            string          `json:"max_gas_amount,omitempty"`
	GasUnitPrice            string          `json:"gas_unit_price,omitempty"`
	ExpirationTimestampSecs string          `json:"expiration_timestamp_secs,omitempty"`
	Payload                 json.RawMessage `json:"payload,omitempty"`
	Signature               *Signature      `json:"signature,omitempty"`

	// block_metadata_transaction
	ID                       string          `json:"id,omitempty"`
	Epoch                    string          `json:"epoch,omitempty"`
	Round                    string          `json:"round,omitempty"`
	PreviousBlockVotesBitvec json.RawMessage `json:"previous_block_votes_bitvec,omitempty"`
	Proposer                 string          `json:"proposer,omitempty"`
	FailedProposerIndices    json.RawMessage `json:"failed_proposer_indices,omitempty"`
}

// EventGUID identifies the event handle an event was emitted on.
type EventGUID struct {
	CreationNumber string `json:"creation_number"`
	AccountAddress string `json:"account_address"`
}

// Event is a raw event emitted by a transaction.
type Event struct {
	GUID           EventGUID       `json:"guid"`
	SequenceNumber string          `json:"sequence_number"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
}

// WriteSetChange is a single state mutation. Which fields are set depends on Type.
type WriteSetChange struct {
	Type         string `json:"type"`
	Address      string `json:"address,omitempty"`
	StateKeyHash string `json:"state_key_hash"`

	// delete_module / delete_resource
	Module   string `json:"module,omitempty"`
	Resource string `json:"resource,omitempty"`

	// write_table_item / delete_table_item
	Handle string `json:"handle,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`

	// write_module: {bytecode, abi}; write_resource: {type, data};
	// table items: {key, key_type, value, value_type}
	Data json.RawMessage `json:"data,omitempty"`
}

// ModuleData is the data of a write_module change.
type ModuleData struct {
	Bytecode string     `json:"bytecode"`
	ABI      *ModuleABI `json:"abi"`
}

// ModuleABI is the decoded ABI of a published module.
type ModuleABI struct {
	Address          string          `json:"address"`
	Name             string          `json:"name"`
	Friends          json.RawMessage `json:"friends"`
	ExposedFunctions json.RawMessage `json:"exposed_functions"`
	Structs          json.RawMessage `json:"structs"`
}

// ResourceData is the data of a write_resource change.
type ResourceData struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TableItemData is the decoded form of a table write. ValueType is empty for deletes.
type TableItemData struct {
	Key       json.RawMessage `json:"key"`
	KeyType   string          `json:"key_type"`
	Value     json.RawMessage `json:"value,omitempty"`
	ValueType string          `json:"value_type,omitempty"`
}

// Signature type tags.
const (
	SigEd25519      = "ed25519_signature"
	SigMultiEd25519 = "multi_ed25519_signature"
	SigMultiAgent   = "multi_agent_signature"
	SigFeePayer     = "fee_payer_signature"
	SigSingleSender = "single_sender"
	SigSingleKey    = "single_key_signature"
	SigMultiKey     = "multi_key_signature"
)

// Signature is the transaction authenticator. Fields used depend on Type.
type Signature struct {
	Type string `json:"type"`

	// ed25519_signature, single_key_signature
	PublicKey     string `json:"public_key,omitempty"`
	Signature     string `json:"signature,omitempty"`
	PublicKeyType string `json:"public_key_type,omitempty"`

	// multi_ed25519_signature, multi_key_signature
	PublicKeys []string `json:"public_keys,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
	Threshold  int      `json:"threshold,omitempty"`
	Bitmap     string   `json:"bitmap,omitempty"`

	// multi_key_signature: SignatureIndices[i] is the key that produced Signatures[i]
	SignatureIndices   []int `json:"signature_indices,omitempty"`
	SignaturesRequired int   `json:"signatures_required,omitempty"`

	// multi_agent_signature / fee_payer_signature
	Sender                   *Signature  `json:"sender,omitempty"`
	SecondarySignerAddresses []string    `json:"secondary_signer_addresses,omitempty"`
	SecondarySigners         []Signature `json:"secondary_signers,omitempty"`
	FeePayerAddress          string      `json:"fee_payer_address,omitempty"`
	FeePayerSigner           *Signature  `json:"fee_payer_signer,omitempty"`
}

// UnmarshalJSON accepts keys and signatures both as bare hex strings and as
// the {"type", "value"} objects used by single-key and multi-key schemes.
func (s *Signature) UnmarshalJSON(b []byte) error {
	type plain Signature
	var aux struct {
		plain
		PublicKey  json.RawMessage   `json:"public_key"`
		Signature  json.RawMessage   `json:"signature"`
		PublicKeys []json.RawMessage `json:"public_keys"`
		Signatures []json.RawMessage `json:"signatures"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = Signature(aux.plain)

	var err error
	if s.PublicKey, s.PublicKeyType, err = typedHex(aux.PublicKey); err != nil {
		return fmt.Errorf("public_key: %w", err)
	}
	if s.Signature, _, err = typedHex(aux.Signature); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	s.PublicKeys = nil
	for i, raw := range aux.PublicKeys {
		v, _, err := typedHex(raw)
		if err != nil {
			return fmt.Errorf("public_keys[%d]: %w", i, err)
		}
		s.PublicKeys = append(s.PublicKeys, v)
	}

	s.Signatures = nil
	for i, raw := range aux.Signatures {
		if isJSONString(raw) {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("signatures[%d]: %w", i, err)
			}
			s.Signatures = append(s.Signatures, v)
			continue
		}
		var indexed struct {
			Index     int             `json:"index"`
			Signature json.RawMessage `json:"signature"`
		}
		if err := json.Unmarshal(raw, &indexed); err != nil {
			return fmt.Errorf("signatures[%d]: %w", i, err)
		}
		v, _, err := typedHex(indexed.Signature)
		if err != nil {
			return fmt.Errorf("signatures[%d]: %w", i, err)
		}
		s.Signatures = append(s.Signatures, v)
		s.SignatureIndices = append(s.SignatureIndices, indexed.Index)
	}
	return nil
}

// typedHex decodes either "0x.." or {"type": .., "value": "0x.."}.
func typedHex(raw json.RawMessage) (value, typ string, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", "", nil
	}
	if isJSONString(raw) {
		err = json.Unmarshal(raw, &value)
		return value, "", err
	}
	var tv struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &tv); err != nil {
		return "", "", err
	}
	return tv.Value, tv.Type, nil
}

func isJSONString(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c == '"'
	}
	return false
}

// LedgerInfo is the response of GET /v1.
type LedgerInfo struct {
	ChainID             int    `json:"chain_id"`
	Epoch               string `json:"epoch"`
	LedgerVersion       string `json:"ledger_version"`
	OldestLedgerVersion string `json:"oldest_ledger_version"`
	BlockHeight         string `json:"block_height"`
	LedgerTimestamp     string `json:"ledger_timestamp"`
}
