package backfill

import (
	"context"
	"fmt"

	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/jackc/pgx/v5"
)

// GapStats contains statistics about detected gaps.
type GapStats struct {
	TotalExpected uint64 // Total versions expected in range
	TotalIndexed  uint64 // Versions already persisted
	TotalMissing  uint64 // Versions missing
	FirstMissing  uint64 // First missing version (0 if none)
	LastMissing   uint64 // Last missing version (0 if none)
}

// Querier is the read side of postgres.Client.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// GapFinder locates versions absent from the transactions table.
type GapFinder interface {
	FindMissingVersions(ctx context.Context, start, end uint64, limit int) ([]uint64, error)
	GetGapStats(ctx context.Context, start, end uint64) (*GapStats, error)
}

// SQLGaps runs gap detection against PostgreSQL.
type SQLGaps struct {
	db Querier
}

// NewSQLGaps creates a GapFinder over db.
func NewSQLGaps(db Querier) *SQLGaps {
	return &SQLGaps{db: db}
}

// FindMissingVersions returns up to limit missing versions between start and end.
// Uses generate_series with anti-join for efficient gap detection.
func (g *SQLGaps) FindMissingVersions(ctx context.Context, start, end uint64, limit int) ([]uint64, error) {
	query := `
		SELECT gs.version
		FROM generate_series($1::bigint, $2::bigint) AS gs(version)
		WHERE NOT EXISTS (
			SELECT 1 FROM transactions t
			WHERE t.version = gs.version
		)
		ORDER BY gs.version
		LIMIT $3
	`

	rows, err := g.db.Query(ctx, query, int64(start), int64(end), limit)
	if err != nil {
		return nil, fmt.Errorf("query missing versions: %w", err)
	}
	defer rows.Close()

	var versions []uint64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, uint64(v))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return versions, nil
}

// GetGapStats returns statistics about gaps in the persisted transactions.
func (g *SQLGaps) GetGapStats(ctx context.Context, start, end uint64) (*GapStats, error) {
	query := `
		WITH indexed AS (
			SELECT COUNT(*) as total FROM transactions
			WHERE version BETWEEN $1 AND $2
		),
		missing AS (
			SELECT gs.version
			FROM generate_series($1::bigint, $2::bigint) AS gs(version)
			WHERE NOT EXISTS (
				SELECT 1 FROM transactions t
				WHERE t.version = gs.version
			)
		),
		missing_stats AS (
			SELECT
				COUNT(*) as total,
				MIN(version) as first_missing,
				MAX(version) as last_missing
			FROM missing
		)
		SELECT
			indexed.total,
			missing_stats.total,
			COALESCE(missing_stats.first_missing, 0),
			COALESCE(missing_stats.last_missing, 0)
		FROM indexed, missing_stats
	`

	var indexed, missing, first, last int64
	err := g.db.QueryRow(ctx, query, int64(start), int64(end)).Scan(&indexed, &missing, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("query gap stats: %w", err)
	}

	return &GapStats{
		TotalExpected: end - start + 1,
		TotalIndexed:  uint64(indexed),
		TotalMissing:  uint64(missing),
		FirstMissing:  uint64(first),
		LastMissing:   uint64(last),
	}, nil
}

// GroupRanges folds sorted versions into contiguous ranges of at most size versions.
func GroupRanges(versions []uint64, size uint64) []adminmodels.VersionRange {
	if len(versions) == 0 || size == 0 {
		return nil
	}
	var out []adminmodels.VersionRange
	cur := adminmodels.VersionRange{Start: versions[0], End: versions[0]}
	for _, v := range versions[1:] {
		if v == cur.End+1 && cur.Len() < size {
			cur.End = v
			continue
		}
		out = append(out, cur)
		cur = adminmodels.VersionRange{Start: v, End: v}
	}
	return append(out, cur)
}
