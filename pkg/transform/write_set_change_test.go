package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
)

func TestChangesFrom_AllKinds(t *testing.T) {
	raw := []rpc.WriteSetChange{
		{
			Type:         rpc.ChangeWriteModule,
			Address:      "0x1",
			StateKeyHash: "0xs0",
			Data:         json.RawMessage(`{"bytecode":"0xa11ceb0b","abi":{"address":"0x1","name":"coin","friends":[],"exposed_functions":[],"structs":[]}}`),
		},
		{
			Type:         rpc.ChangeWriteResource,
			Address:      "0xa11ce",
			StateKeyHash: "0xs1",
			Data:         json.RawMessage(`{"type":"0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>","data":{"coin":{"value":"10"}}}`),
		},
		{
			Type:         rpc.ChangeDeleteResource,
			Address:      "0xa11ce",
			StateKeyHash: "0xs2",
			Resource:     "0x1::account::Account",
		},
		{
			Type:         rpc.ChangeWriteTableItem,
			StateKeyHash: "0xs3",
			Handle:       "0xabc",
			Key:          "0x01",
			Value:        "0x02",
			Data:         json.RawMessage(`{"key":"1","key_type":"u64","value":{"n":1},"value_type":"0x1::m::V"}`),
		},
		{
			Type:         rpc.ChangeDeleteTableItem,
			StateKeyHash: "0xs4",
			Handle:       "0xabc",
			Key:          "0x01",
		},
	}

	changes, details, err := changesFrom(raw, 99)
	require.NoError(t, err)
	require.Len(t, changes, 5)
	require.Len(t, details, 5)

	for i, c := range changes {
		assert.Equal(t, int64(i), c.Index)
		assert.Equal(t, uint64(99), c.TransactionVersion)
	}
	assert.Equal(t, "0xabc", changes[3].Address)

	mod := details[0].(*indexermodels.ModuleDetail).Module
	assert.Equal(t, "coin", mod.Name)
	assert.Equal(t, []byte{0xa1, 0x1c, 0xeb, 0x0b}, mod.Bytecode)

	res := details[1].(*indexermodels.ResourceDetail).Resource
	assert.Equal(t, "CoinStore", res.Name)
	assert.Equal(t, "coin", res.Module)
	assert.JSONEq(t, `["0x1::aptos_coin::AptosCoin"]`, string(res.GenericTypeParams))
	assert.False(t, res.IsDeleted)

	del := details[2].(*indexermodels.ResourceDetail).Resource
	assert.True(t, del.IsDeleted)
	assert.Equal(t, "Account", del.Name)

	write := details[3].(*indexermodels.TableDetail)
	require.NotNil(t, write.Metadata)
	assert.Equal(t, "u64", write.Metadata.KeyType)
	assert.JSONEq(t, `{"n":1}`, string(write.Current.DecodedValue))
	assert.Equal(t, HashKey("0x01"), write.Current.KeyHash)

	remove := details[4].(*indexermodels.TableDetail)
	assert.Nil(t, remove.Metadata)
	assert.True(t, remove.Current.IsDeleted)
	assert.Nil(t, remove.Current.DecodedValue)
	assert.Equal(t, write.Current.KeyHash, remove.Current.KeyHash)
}

func TestParseMoveType(t *testing.T) {
	tests := []struct {
		in       string
		name     string
		generics []string
		wantErr  bool
	}{
		{in: "0x1::account::Account", name: "Account", generics: []string{}},
		{in: "0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>", name: "CoinStore", generics: []string{"0x1::aptos_coin::AptosCoin"}},
		{in: "0x3::pool::Pool<0x1::a::A<u8, u64>, vector<u8>>", name: "Pool", generics: []string{"0x1::a::A<u8, u64>", "vector<u8>"}},
		{in: "0x1::coin", wantErr: true},
		{in: "0x1::coin::CoinStore<0x1::a::A", wantErr: true},
		{in: "0x1::coin::CoinStore<u8>>", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoveType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, got.Name)
			assert.Equal(t, tt.generics, got.GenericParams)
		})
	}
}
