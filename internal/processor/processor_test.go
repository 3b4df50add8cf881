package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"github.com/Aptos-Scan/aptos-indexer/pkg/transform"
)

type recordingSink struct {
	mu    sync.Mutex
	calls [][]indexermodels.Transaction
	err   error
	block bool
}

func (s *recordingSink) Send(ctx context.Context, txs []indexermodels.Transaction) error {
	s.mu.Lock()
	s.calls = append(s.calls, txs)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *recordingSink) sent() [][]indexermodels.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func userTx(version string, changes ...rpc.WriteSetChange) rpc.Transaction {
	return rpc.Transaction{
		Type:                    rpc.TypeUserTransaction,
		Version:                 version,
		Hash:                    "0xhash" + version,
		GasUsed:                 "7",
		Success:                 true,
		VMStatus:                "Executed successfully",
		Timestamp:               "1700000000000000",
		Sender:                  "0xa11ce",
		SequenceNumber:          version,
		MaxGasAmount:            "2000",
		GasUnitPrice:            "100",
		ExpirationTimestampSecs: "1700000600",
		Signature:               &rpc.Signature{Type: rpc.SigEd25519, PublicKey: "0xk", Signature: "0xs"},
		Events: []rpc.Event{{
			GUID:           rpc.EventGUID{CreationNumber: "2", AccountAddress: "0xa11ce"},
			SequenceNumber: version,
			Type:           "0x1::coin::WithdrawEvent",
			Data:           json.RawMessage(`{"amount":"1"}`),
		}},
		Changes: changes,
	}
}

func tableWrite(handle, key, value string) rpc.WriteSetChange {
	return rpc.WriteSetChange{
		Type:         rpc.ChangeWriteTableItem,
		StateKeyHash: "0xsk" + key,
		Handle:       handle,
		Key:          key,
		Value:        "0x00",
		Data:         json.RawMessage(`{"key":"` + key + `","key_type":"address","value":` + value + `,"value_type":"u64"}`),
	}
}

func resourceWrite(address string) rpc.WriteSetChange {
	return rpc.WriteSetChange{
		Type:         rpc.ChangeWriteResource,
		Address:      address,
		StateKeyHash: "0xskres",
		Data:         json.RawMessage(`{"type":"0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>","data":{"coin":{"value":"10"}}}`),
	}
}

func sampleRange() []rpc.Transaction {
	return []rpc.Transaction{
		userTx("10", tableWrite("0xabc", "0x01", `{"n":1}`), resourceWrite("0xa11ce")),
		{
			Type:      rpc.TypeBlockMetadataTransaction,
			Version:   "11",
			GasUsed:   "0",
			Timestamp: "1700000001000000",
			ID:        "0xblock",
			Epoch:     "1",
			Round:     "2",
			Proposer:  "0xp",
		},
		userTx("12", tableWrite("0xabc", "0x01", `{"n":2}`), tableWrite("0xabc", "0x02", `{"n":9}`)),
	}
}

func newTestProcessor(store *fakeStore, sink *recordingSink) *Processor {
	cfg := Config{Name: "custom_processor", DB: store, ForwardTimeout: time.Second}
	if sink != nil {
		cfg.Sink = sink
	}
	return New(cfg)
}

func TestProcess_WritesAllEntities(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	p := newTestProcessor(store, sink)

	res, err := p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Equal(t, &Result{ProcessorName: "custom_processor", StartVersion: 10, EndVersion: 12}, res)

	assert.Equal(t, 3, store.count(indexermodels.TransactionsTableName))
	assert.Equal(t, 2, store.count(indexermodels.UserTransactionsTableName))
	assert.Equal(t, 2, store.count(indexermodels.SignaturesTableName))
	assert.Equal(t, 1, store.count(indexermodels.BlockMetadataTransactionsTableName))
	assert.Equal(t, 2, store.count(indexermodels.EventsTableName))
	assert.Equal(t, 4, store.count(indexermodels.WriteSetChangesTableName))
	assert.Equal(t, 1, store.count(indexermodels.MoveResourcesTableName))
	assert.Equal(t, 3, store.count(indexermodels.TableItemsTableName))
	assert.Equal(t, 2, store.count(indexermodels.CurrentTableItemsTableName))
	assert.Equal(t, 1, store.count(indexermodels.TableMetadataTableName))

	row, ok := store.row(indexermodels.CurrentTableItemsTableName, "0xabc", transform.HashKey("0x01"))
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(row[4].(json.RawMessage)))
	assert.Equal(t, uint64(12), row[5])

	assert.Equal(t, 1, store.acquired)
	assert.Equal(t, 1, store.released)
	assert.Equal(t, 1, store.commits)

	sent := sink.sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0], 3)
}

func TestProcess_Idempotent(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, nil)

	_, err := p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	once := store.snapshot()

	_, err = p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Equal(t, once, store.snapshot())
}

func TestProcess_SanitizeRetrySucceeds(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, nil)

	txs := []rpc.Transaction{userTx("20", resourceWrite("0xa11ce\xff"))}
	res, err := p.Process(context.Background(), txs, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), res.StartVersion)
	assert.Equal(t, uint64(20), res.EndVersion)

	assert.Equal(t, 1, store.acquired)
	assert.Equal(t, 1, store.released)
	assert.Equal(t, 2, store.begins)
	assert.Equal(t, 1, store.rollbacks)
	assert.Equal(t, 1, store.commits)

	row, ok := store.row(indexermodels.MoveResourcesTableName, uint64(20), int64(0))
	require.True(t, ok)
	assert.Equal(t, "0xa11ce�", row[3])
}

func TestProcess_FatalAfterRetry(t *testing.T) {
	store := newFakeStore()
	store.failTables[indexermodels.TableMetadataTableName] = -1
	sink := &recordingSink{}
	p := newTestProcessor(store, sink)

	res, err := p.Process(context.Background(), sampleRange(), 10, 12)
	require.Error(t, err)
	assert.Nil(t, res)

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, uint64(10), commitErr.StartVersion)
	assert.Equal(t, uint64(12), commitErr.EndVersion)
	assert.Equal(t, "custom_processor", commitErr.ProcessorName)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, AttemptSanitized, writeErr.Attempt)
	require.NotNil(t, writeErr.Previous)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)

	// one retry, then nothing from either attempt is visible
	assert.Equal(t, 2, store.begins)
	assert.Equal(t, 2, store.rollbacks)
	assert.Equal(t, 0, store.commits)
	assert.Equal(t, 0, store.total())
	assert.Equal(t, 1, store.released)

	// forwarding was not gated by the failed write
	sent := sink.sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0], 3)
}

func TestProcess_EmptyRange(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	p := newTestProcessor(store, sink)

	res, err := p.Process(context.Background(), nil, 30, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), res.StartVersion)
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, 0, store.total())
	assert.Empty(t, sink.sent())
}

func TestProcess_DecodeErrorSkipsWriteAndForward(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	p := newTestProcessor(store, sink)

	txs := sampleRange()
	txs[1].Type = "mystery_transaction"

	_, err := p.Process(context.Background(), txs, 10, 12)
	var decodeErr *transform.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "11", decodeErr.Version)

	assert.Equal(t, 0, store.acquired)
	assert.Empty(t, sink.sent())
}

func TestProcess_AcquireFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.acquireErr = errors.New("pool closed")
	p := newTestProcessor(store, nil)

	_, err := p.Process(context.Background(), sampleRange(), 10, 12)
	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, 0, store.begins)
}

func TestProcess_ForwardFailureDoesNotFailRange(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{err: errors.New("stream unavailable")}
	p := newTestProcessor(store, sink)

	_, err := p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, store.count(indexermodels.TransactionsTableName))
}

func TestProcess_ForwardTimeoutBoundsSlowSink(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{block: true}
	p := New(Config{Name: "custom_processor", DB: store, Sink: sink, ForwardTimeout: 50 * time.Millisecond})

	began := time.Now()
	_, err := p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 5*time.Second)
	assert.Len(t, sink.sent(), 1)
}

func TestProcess_OlderRangeDoesNotRegressCurrentItem(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, nil)

	_, err := p.Process(context.Background(), []rpc.Transaction{userTx("50", tableWrite("0xabc", "0x01", `{"n":50}`))}, 50, 50)
	require.NoError(t, err)
	_, err = p.Process(context.Background(), []rpc.Transaction{userTx("40", tableWrite("0xabc", "0x01", `{"n":40}`))}, 40, 40)
	require.NoError(t, err)

	row, ok := store.row(indexermodels.CurrentTableItemsTableName, "0xabc", transform.HashKey("0x01"))
	require.True(t, ok)
	assert.Equal(t, uint64(50), row[5])
	assert.Equal(t, 2, store.count(indexermodels.TableItemsTableName))
}

func TestProcess_WithoutForwardingStillWrites(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	p := newTestProcessor(store, sink)

	_, err := p.WithoutForwarding().Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, store.count(indexermodels.TransactionsTableName))
	assert.Empty(t, sink.sent())

	// the original keeps forwarding
	_, err = p.Process(context.Background(), sampleRange(), 10, 12)
	require.NoError(t, err)
	assert.Len(t, sink.sent(), 1)
}
