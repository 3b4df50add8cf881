package chain

import (
	"context"
	"fmt"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB holds the entity tables written by the processor.
type DB struct {
	postgres.Client
}

// New connects and ensures every entity table exists.
func New(ctx context.Context, logger *zap.Logger, url string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("schema", "chain"),
		zap.String("component", poolConfig.Component),
	), url, &poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client}
	if err := db.InitializeDB(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// secondaryIndexes are the lookups the query side relies on.
var secondaryIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_user_transactions_sender ON user_transactions(sender, sequence_number)",
	"CREATE INDEX IF NOT EXISTS idx_user_transactions_entry_function ON user_transactions(entry_function_id_str)",
	"CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)",
	"CREATE INDEX IF NOT EXISTS idx_events_account ON events(account_address, creation_number, sequence_number)",
	"CREATE INDEX IF NOT EXISTS idx_move_resources_address ON move_resources(address)",
	"CREATE INDEX IF NOT EXISTS idx_move_modules_address ON move_modules(address, name)",
	"CREATE INDEX IF NOT EXISTS idx_table_items_handle ON table_items(table_handle)",
	"CREATE INDEX IF NOT EXISTS idx_current_table_items_version ON current_table_items(last_transaction_version)",
}

// InitializeDB creates the entity tables and their indexes.
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing chain tables", zap.Int("tables", len(indexermodels.Tables)))

	for _, table := range indexermodels.Tables {
		if err := table.Validate(); err != nil {
			return err
		}
		if err := db.Exec(ctx, table.SchemaSQL()); err != nil {
			return fmt.Errorf("create table %s: %w", table.Name, err)
		}
		db.Logger.Debug("Table ready", zap.String("table", table.Name))
	}

	for _, stmt := range secondaryIndexes {
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
