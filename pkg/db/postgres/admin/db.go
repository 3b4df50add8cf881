package admin

import (
	"context"
	"fmt"

	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB represents a PostgreSQL database connection for handling admin operations
type DB struct {
	postgres.Client
}

// NewWithPoolConfig creates and initializes an admin database instance with custom pool configuration
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, url string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("schema", "admin"),
		zap.String("component", poolConfig.Component),
	), url, &poolConfig)
	if err != nil {
		return nil, err
	}

	adminDB := &DB{Client: client}
	if err := adminDB.InitializeDB(ctx); err != nil {
		adminDB.Close()
		return nil, err
	}

	return adminDB, nil
}

// FromClient shares an existing pool.
func FromClient(client postgres.Client) *DB {
	return &DB{Client: client}
}

// InitializeDB ensures the required tables exist
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initialize processor_status table")
	if err := db.initProcessorStatus(ctx); err != nil {
		return fmt.Errorf("init processor_status: %w", err)
	}
	return nil
}
