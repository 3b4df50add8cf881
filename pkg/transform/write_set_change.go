package transform

import (
	"encoding/json"
	"fmt"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
)

func changesFrom(raw []rpc.WriteSetChange, version uint64) ([]indexermodels.WriteSetChange, []indexermodels.WriteSetChangeDetail, error) {
	changes := make([]indexermodels.WriteSetChange, 0, len(raw))
	details := make([]indexermodels.WriteSetChangeDetail, 0, len(raw))
	for i := range raw {
		c := &raw[i]
		idx := int64(i)

		var (
			detail  indexermodels.WriteSetChangeDetail
			address = c.Address
			err     error
		)
		switch c.Type {
		case rpc.ChangeWriteModule:
			detail, err = writeModule(c, version, idx)
		case rpc.ChangeDeleteModule:
			detail, err = deleteModule(c, version, idx)
		case rpc.ChangeWriteResource:
			detail, err = writeResource(c, version, idx)
		case rpc.ChangeDeleteResource:
			detail, err = deleteResource(c, version, idx)
		case rpc.ChangeWriteTableItem, rpc.ChangeDeleteTableItem:
			address = c.Handle
			detail, err = tableItem(c, version, idx)
		default:
			err = fmt.Errorf("unknown write set change type %q", c.Type)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("change %d: %w", i, err)
		}

		changes = append(changes, indexermodels.WriteSetChange{
			TransactionVersion: version,
			Index:              idx,
			Hash:               c.StateKeyHash,
			Type:               c.Type,
			Address:            address,
		})
		details = append(details, detail)
	}
	return changes, details, nil
}

func writeModule(c *rpc.WriteSetChange, version uint64, idx int64) (*indexermodels.ModuleDetail, error) {
	var data rpc.ModuleData
	if err := json.Unmarshal(c.Data, &data); err != nil {
		return nil, fmt.Errorf("module data: %w", err)
	}
	bytecode, err := HexToBytes(data.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("module bytecode: %w", err)
	}
	m := indexermodels.MoveModule{
		TransactionVersion:  version,
		WriteSetChangeIndex: idx,
		Address:             c.Address,
		Bytecode:            bytecode,
	}
	if data.ABI != nil {
		m.Name = data.ABI.Name
		m.Friends = data.ABI.Friends
		m.ExposedFunctions = data.ABI.ExposedFunctions
		m.Structs = data.ABI.Structs
	}
	return &indexermodels.ModuleDetail{Module: m}, nil
}

func deleteModule(c *rpc.WriteSetChange, version uint64, idx int64) (*indexermodels.ModuleDetail, error) {
	_, name, err := parseModuleID(c.Module)
	if err != nil {
		return nil, err
	}
	return &indexermodels.ModuleDetail{Module: indexermodels.MoveModule{
		TransactionVersion:  version,
		WriteSetChangeIndex: idx,
		Name:                name,
		Address:             c.Address,
		IsDeleted:           true,
	}}, nil
}

func writeResource(c *rpc.WriteSetChange, version uint64, idx int64) (*indexermodels.ResourceDetail, error) {
	var data rpc.ResourceData
	if err := json.Unmarshal(c.Data, &data); err != nil {
		return nil, fmt.Errorf("resource data: %w", err)
	}
	r, err := resource(c, data.Type, version, idx)
	if err != nil {
		return nil, err
	}
	r.Data = jsonOrNull(data.Data)
	return &indexermodels.ResourceDetail{Resource: r}, nil
}

func deleteResource(c *rpc.WriteSetChange, version uint64, idx int64) (*indexermodels.ResourceDetail, error) {
	r, err := resource(c, c.Resource, version, idx)
	if err != nil {
		return nil, err
	}
	r.IsDeleted = true
	return &indexermodels.ResourceDetail{Resource: r}, nil
}

func resource(c *rpc.WriteSetChange, typ string, version uint64, idx int64) (indexermodels.MoveResource, error) {
	t, err := ParseMoveType(typ)
	if err != nil {
		return indexermodels.MoveResource{}, err
	}
	return indexermodels.MoveResource{
		TransactionVersion:  version,
		WriteSetChangeIndex: idx,
		Name:                t.Name,
		Address:             c.Address,
		Type:                typ,
		Module:              t.Module,
		GenericTypeParams:   mustJSON(t.GenericParams),
		StateKeyHash:        c.StateKeyHash,
	}, nil
}

// tableItem builds the append-only item, the current slot value and, when
// the node decoded the value type, the table metadata. Without decoded data
// the raw hex key and value are stored as JSON strings.
func tableItem(c *rpc.WriteSetChange, version uint64, idx int64) (*indexermodels.TableDetail, error) {
	if c.Handle == "" || c.Key == "" {
		return nil, fmt.Errorf("table item without handle or key")
	}
	deleted := c.Type == rpc.ChangeDeleteTableItem

	decodedKey := mustJSON(c.Key)
	var decodedValue json.RawMessage
	if !deleted {
		decodedValue = mustJSON(c.Value)
	}

	var meta *indexermodels.TableMetadata
	if len(c.Data) > 0 && string(c.Data) != "null" {
		var data rpc.TableItemData
		if err := json.Unmarshal(c.Data, &data); err != nil {
			return nil, fmt.Errorf("table item data: %w", err)
		}
		if len(data.Key) > 0 {
			decodedKey = data.Key
		}
		if !deleted && len(data.Value) > 0 {
			decodedValue = data.Value
		}
		if !deleted && data.ValueType != "" {
			meta = &indexermodels.TableMetadata{
				Handle:    c.Handle,
				KeyType:   data.KeyType,
				ValueType: data.ValueType,
			}
		}
	}

	return &indexermodels.TableDetail{
		Item: indexermodels.TableItem{
			TransactionVersion:  version,
			WriteSetChangeIndex: idx,
			Key:                 c.Key,
			TableHandle:         c.Handle,
			DecodedKey:          decodedKey,
			DecodedValue:        decodedValue,
			IsDeleted:           deleted,
		},
		Current: indexermodels.CurrentTableItem{
			TableHandle:            c.Handle,
			KeyHash:                HashKey(c.Key),
			Key:                    c.Key,
			DecodedKey:             decodedKey,
			DecodedValue:           decodedValue,
			LastTransactionVersion: version,
			IsDeleted:              deleted,
		},
		Metadata: meta,
	}, nil
}
