package admin

import (
	"context"
	"fmt"

	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
)

// initProcessorStatus creates the processor_status table
func (db *DB) initProcessorStatus(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS processor_status (
			processor TEXT PRIMARY KEY,
			last_success_version BIGINT NOT NULL,
			last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`

	return db.Exec(ctx, query)
}

// RecordSuccess advances the checkpoint of a processor.
// Ranges may commit out of order; the checkpoint never moves backwards.
func (db *DB) RecordSuccess(ctx context.Context, processor string, version uint64) error {
	query := `
		INSERT INTO processor_status (processor, last_success_version, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (processor) DO UPDATE SET
			last_success_version = GREATEST(processor_status.last_success_version, EXCLUDED.last_success_version),
			last_updated = NOW()
	`

	if err := db.Exec(ctx, query, processor, int64(version)); err != nil {
		return fmt.Errorf("record success for %s: %w", processor, err)
	}
	return nil
}

// GetStatus returns the checkpoint of a processor, or nil if it never committed.
func (db *DB) GetStatus(ctx context.Context, processor string) (*adminmodels.ProcessorStatus, error) {
	query := `
		SELECT processor, last_success_version, last_updated
		FROM processor_status
		WHERE processor = $1
	`

	var status adminmodels.ProcessorStatus
	var version int64
	err := db.QueryRow(ctx, query, processor).Scan(&status.Processor, &version, &status.LastUpdated)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query processor status %s: %w", processor, err)
	}
	status.LastSuccessVersion = uint64(version)

	return &status, nil
}

// LastSuccessVersion returns the checkpoint version and whether one exists.
func (db *DB) LastSuccessVersion(ctx context.Context, processor string) (uint64, bool, error) {
	status, err := db.GetStatus(ctx, processor)
	if err != nil {
		return 0, false, err
	}
	if status == nil {
		return 0, false, nil
	}
	return status.LastSuccessVersion, true, nil
}
