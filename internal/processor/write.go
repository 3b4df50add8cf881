package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

// Acquirer hands out pooled connections. It is satisfied by *postgres.Client.
type Acquirer interface {
	Acquire(ctx context.Context) (postgres.Conn, error)
}

type writer struct {
	db   Acquirer
	name string
}

// write persists b in one transaction. If that fails, every batch is
// sanitized and the write is retried once in a fresh transaction on the same
// connection. Once the connection is acquired the write is not cancelled.
func (w *writer) write(ctx context.Context, b *Batches, start, end uint64) error {
	conn, err := w.db.Acquire(ctx)
	if err != nil {
		return &WriteError{Attempt: AttemptInitial, Err: err}
	}
	defer conn.Release()

	ctx = context.WithoutCancel(ctx)

	attempt := AttemptInitial
	var initialErr error
	for {
		began := time.Now()
		err := w.attempt(ctx, conn, b)
		if err == nil {
			metrics.WriteAttempts.WithLabelValues(w.name, attempt.String(), "success").Inc()
			slog.Debug("pg transaction: COMMIT",
				"processor", w.name,
				"start_version", start,
				"end_version", end,
				"attempt", attempt.String(),
				"rows", b.Rows(),
				"duration", time.Since(began),
			)
			return nil
		}
		metrics.WriteAttempts.WithLabelValues(w.name, attempt.String(), "error").Inc()

		switch attempt {
		case AttemptInitial:
			slog.Warn("write failed, retrying with sanitized data",
				"processor", w.name,
				"start_version", start,
				"end_version", end,
				"encoding_error", postgres.IsEncodingError(err),
				"unique_violation", postgres.IsUniqueViolation(err),
				"err", err,
			)
			initialErr = &WriteError{Attempt: AttemptInitial, Err: err}
			b = b.Sanitize()
			attempt = AttemptSanitized
		default:
			return &WriteError{Attempt: attempt, Err: err, Previous: initialErr}
		}
	}
}

// attempt runs one read-write transaction containing every batch.
func (w *writer) attempt(ctx context.Context, conn postgres.Conn, b *Batches) error {
	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		b.queue(batch)

		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch statement %d: %w", i, err)
			}
		}
		return br.Close()
	})
}
