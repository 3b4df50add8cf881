package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode serves versions [0, head] and records request count.
func fakeNode(t *testing.T, head uint64, skip uint64) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_ = json.NewEncoder(w).Encode(LedgerInfo{ChainID: 4, LedgerVersion: strconv.FormatUint(head, 10)})
	})
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		start, _ := strconv.ParseUint(r.URL.Query().Get("start"), 10, 64)
		limit, _ := strconv.ParseUint(r.URL.Query().Get("limit"), 10, 64)

		txs := []Transaction{}
		for v := start; v < start+limit && v <= head; v++ {
			if skip != 0 && v == skip {
				continue
			}
			txs = append(txs, Transaction{Type: TypeStateCheckpoint, Version: strconv.FormatUint(v, 10)})
		}
		_ = json.NewEncoder(w).Encode(txs)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestClient(url string) *HTTPClient {
	return NewHTTPWithOpts(Opts{Endpoints: []string{url}, RPS: 1000, Burst: 1000})
}

func TestHTTPClient_LedgerVersion(t *testing.T) {
	srv, _ := fakeNode(t, 1234, 0)

	v, err := newTestClient(srv.URL).LedgerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), v)
}

func TestHTTPClient_TransactionsRangePages(t *testing.T) {
	srv, requests := fakeNode(t, 1000, 0)

	txs, err := newTestClient(srv.URL).TransactionsRange(context.Background(), 50, 299)
	require.NoError(t, err)
	require.Len(t, txs, 250)
	assert.Equal(t, "50", txs[0].Version)
	assert.Equal(t, "299", txs[249].Version)
	assert.Equal(t, int64(3), requests.Load())
}

func TestHTTPClient_TransactionsRangeDetectsGap(t *testing.T) {
	srv, _ := fakeNode(t, 1000, 60)

	_, err := newTestClient(srv.URL).TransactionsRange(context.Background(), 50, 99)
	require.ErrorContains(t, err, "non-contiguous")
}

func TestHTTPClient_TransactionsRangeBeyondHead(t *testing.T) {
	srv, _ := fakeNode(t, 10, 0)

	_, err := newTestClient(srv.URL).TransactionsRange(context.Background(), 5, 20)
	require.ErrorContains(t, err, "not available")
}

func TestHTTPClient_FailsOverAndOpensBreaker(t *testing.T) {
	var bad atomic.Int64
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bad.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up, _ := fakeNode(t, 7, 0)

	c := NewHTTPWithOpts(Opts{
		Endpoints:       []string{down.URL, up.URL},
		RPS:             1000,
		Burst:           1000,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})

	for i := 0; i < 4; i++ {
		v, err := c.LedgerVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(7), v)
	}
	assert.Equal(t, int64(2), bad.Load(), "breaker should skip the failing endpoint")
}

func TestHTTPClient_InvalidRange(t *testing.T) {
	_, err := newTestClient("http://unused").TransactionsRange(context.Background(), 5, 4)
	require.Error(t, err)
}

func TestHTTPClient_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message":"pruned"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transactions(context.Background(), 0, 10)
	require.ErrorContains(t, err, "http 410")
}
