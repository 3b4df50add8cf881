package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	ledgerInfoPath   = "/v1"
	transactionsPath = "/v1/transactions"

	// MaxPageSize is the largest page the fullnode serves for /v1/transactions.
	MaxPageSize = 100
)

// HTTPClient is a wrapper around an http.Client with circuit-breaker and token-bucket rate limiting.
type HTTPClient struct {
	endpoints []string
	client    *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}

	c := &HTTPClient{
		endpoints:        dedup(o.Endpoints),
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

func dedup(ss []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

func (c *HTTPClient) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

func (c *HTTPClient) acquire(ctx context.Context) error {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.refillEvery / 2):
		}
	}
}

func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	var lastErr error
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			lastErr = fmt.Errorf("endpoint %s: circuit open", ep)
			continue
		}

		if err := c.acquire(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		rawBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(rawBody[:min(200, len(rawBody))]))
			continue
		}

		slog.Debug("rpc", "path", path, "len", len(rawBody))

		if err := json.Unmarshal(rawBody, out); err != nil {
			lastErr = fmt.Errorf("json unmarshal: %w (body: %s)", err, string(rawBody[:min(200, len(rawBody))]))
			continue
		}

		c.noteSuccess(ep)
		return nil
	}

	return lastErr
}

// LedgerInfo returns the node's current ledger info.
func (c *HTTPClient) LedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	var info LedgerInfo
	if err := c.getJSON(ctx, ledgerInfoPath, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// LedgerVersion returns the latest committed version known to the node.
func (c *HTTPClient) LedgerVersion(ctx context.Context) (uint64, error) {
	info, err := c.LedgerInfo(ctx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(info.LedgerVersion, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ledger_version %q: %w", info.LedgerVersion, err)
	}
	return v, nil
}

// Transactions fetches up to limit transactions starting at version start.
func (c *HTTPClient) Transactions(ctx context.Context, start uint64, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	path := fmt.Sprintf("%s?start=%d&limit=%d", transactionsPath, start, limit)

	var txs []Transaction
	if err := c.getJSON(ctx, path, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// TransactionsRange fetches every transaction in the inclusive range [start, end],
// paging as needed. The result is contiguous and ordered, or an error is returned.
func (c *HTTPClient) TransactionsRange(ctx context.Context, start, end uint64) ([]Transaction, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}

	all := make([]Transaction, 0, end-start+1)
	next := start
	for next <= end {
		limit := int(min(end-next+1, MaxPageSize))
		page, err := c.Transactions(ctx, next, limit)
		if err != nil {
			return nil, fmt.Errorf("fetch transactions at %d: %w", next, err)
		}
		if len(page) == 0 {
			return nil, fmt.Errorf("range [%d, %d] not available: node returned no transactions at %d", start, end, next)
		}

		for _, tx := range page {
			if next > end {
				break
			}
			v, err := strconv.ParseUint(tx.Version, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse version %q: %w", tx.Version, err)
			}
			if v != next {
				return nil, fmt.Errorf("non-contiguous response: expected version %d, got %d", next, v)
			}
			all = append(all, tx)
			next++
		}
	}
	return all, nil
}
