package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeStore is an in-memory stand-in for PostgreSQL. It understands the
// multi-row upserts built by upsertSQL, applies them inside a staged copy
// per transaction and rejects text that PostgreSQL would reject.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string][]any

	// failTables forces an error on the next n statements for a table; -1 fails forever.
	failTables map[string]int
	acquireErr error

	acquired, released, begins, commits, rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:     map[string]map[string][]any{},
		failTables: map[string]int{},
	}
}

func (s *fakeStore) Acquire(context.Context) (postgres.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return &fakeConn{store: s}, nil
}

// count returns the committed row count of a table.
func (s *fakeStore) count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// total returns the committed row count across all tables.
func (s *fakeStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rows := range s.tables {
		n += len(rows)
	}
	return n
}

// row returns a committed row by primary key values.
func (s *fakeStore) row(table string, pk ...any) ([]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tables[table][keyOf(pk)]
	return r, ok
}

// snapshot deep-copies the committed state.
func (s *fakeStore) snapshot() map[string]map[string][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTables(s.tables)
}

func cloneTables(src map[string]map[string][]any) map[string]map[string][]any {
	out := make(map[string]map[string][]any, len(src))
	for name, rows := range src {
		cp := make(map[string][]any, len(rows))
		for k, v := range rows {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

type fakeConn struct {
	store *fakeStore
}

func (c *fakeConn) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.begins++
	return &fakeTx{store: c.store, staged: cloneTables(c.store.tables)}, nil
}

func (c *fakeConn) Release() {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.released++
}

type fakeTx struct {
	pgx.Tx
	store  *fakeStore
	staged map[string]map[string][]any
	closed bool
}

func (tx *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	return &fakeBatchResults{tx: tx, queries: b.QueuedQueries}
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.store.tables = tx.staged
	tx.store.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.store.rollbacks++
	return nil
}

type fakeBatchResults struct {
	pgx.BatchResults
	tx      *fakeTx
	queries []*pgx.QueuedQuery
	next    int
}

func (br *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if br.next >= len(br.queries) {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	q := br.queries[br.next]
	br.next++
	if err := br.tx.apply(q.SQL, q.Arguments); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (br *fakeBatchResults) Close() error {
	return nil
}

func (tx *fakeTx) apply(sql string, args []any) error {
	fields := strings.Fields(sql)
	if len(fields) < 3 || fields[0] != "INSERT" {
		return fmt.Errorf("unsupported statement %q", sql)
	}
	table, ok := tableByName(fields[2])
	if !ok {
		return fmt.Errorf("unknown table %s", fields[2])
	}

	tx.store.mu.Lock()
	n, fail := tx.store.failTables[table.Name]
	if fail && n > 0 {
		tx.store.failTables[table.Name] = n - 1
	}
	tx.store.mu.Unlock()
	if fail && n != 0 {
		return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", TableName: table.Name}
	}

	for _, a := range args {
		if err := checkEncoding(a); err != nil {
			return err
		}
	}

	fc := table.FieldCount()
	if len(args)%fc != 0 {
		return fmt.Errorf("%s: %d args for %d columns", table.Name, len(args), fc)
	}

	rows := tx.staged[table.Name]
	if rows == nil {
		rows = map[string][]any{}
		tx.staged[table.Name] = rows
	}

	seen := map[string]bool{}
	for r := 0; r < len(args)/fc; r++ {
		vals := args[r*fc : (r+1)*fc]
		key := keyOf(pkValues(table, vals))

		if len(table.Update) > 0 {
			if seen[key] {
				return &pgconn.PgError{Code: "21000", Message: "ON CONFLICT DO UPDATE command cannot affect row a second time"}
			}
			seen[key] = true
		}

		existing, exists := rows[key]
		switch {
		case !exists:
			rows[key] = vals
		case len(table.Update) == 0:
			// DO NOTHING
		case table.UpdateGuard == "" || guardHolds(table, existing, vals):
			rows[key] = vals
		}
	}
	return nil
}

// guardHolds evaluates last_transaction_version <= EXCLUDED.last_transaction_version.
func guardHolds(t indexermodels.Table, existing, incoming []any) bool {
	for i, c := range t.Columns {
		if c.Name == "last_transaction_version" {
			return existing[i].(uint64) <= incoming[i].(uint64)
		}
	}
	return true
}

func checkEncoding(a any) error {
	invalid := &pgconn.PgError{Code: "22021", Message: "invalid byte sequence for encoding \"UTF8\""}
	switch v := a.(type) {
	case string:
		if strings.IndexByte(v, 0) >= 0 || !utf8.ValidString(v) {
			return invalid
		}
	case *string:
		if v != nil {
			return checkEncoding(*v)
		}
	case json.RawMessage:
		if bytes.Contains(v, []byte(`\u0000`)) {
			return &pgconn.PgError{Code: "22P05", Message: "unsupported Unicode escape sequence"}
		}
		if bytes.IndexByte(v, 0) >= 0 || !utf8.Valid(v) {
			return invalid
		}
	}
	return nil
}

func tableByName(name string) (indexermodels.Table, bool) {
	for _, t := range indexermodels.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return indexermodels.Table{}, false
}

func pkValues(t indexermodels.Table, vals []any) []any {
	out := make([]any, 0, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		for i, c := range t.Columns {
			if c.Name == k {
				out = append(out, vals[i])
			}
		}
	}
	return out
}

func keyOf(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "|")
}
