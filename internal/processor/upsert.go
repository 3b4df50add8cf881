package processor

import (
	"fmt"
	"strings"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/jackc/pgx/v5"
)

// MaxParams is the PostgreSQL limit on bind parameters per statement.
const MaxParams = 65535

// chunks splits n rows into [start, end) spans whose parameter count stays
// within MaxParams.
func chunks(n, fieldCount int) [][2]int {
	if n == 0 {
		return nil
	}
	size := MaxParams / fieldCount
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// upsertSQL renders a multi-row INSERT for rows tuples, with the table's
// conflict policy.
func upsertSQL(t indexermodels.Table, rows int) string {
	var sb strings.Builder

	cols := t.ColumnNames()
	for i, name := range cols {
		cols[i] = pgx.Identifier{name}.Sanitize()
	}
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", t.Name, strings.Join(cols, ", "))

	fields := t.FieldCount()
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for f := 0; f < fields; f++ {
			if f > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", r*fields+f+1)
		}
		sb.WriteByte(')')
	}

	pk := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		pk[i] = pgx.Identifier{k}.Sanitize()
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s) ", strings.Join(pk, ", "))

	if len(t.Update) == 0 {
		sb.WriteString("DO NOTHING")
		return sb.String()
	}

	sets := make([]string, len(t.Update))
	for i, u := range t.Update {
		col := pgx.Identifier{u}.Sanitize()
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	fmt.Fprintf(&sb, "DO UPDATE SET %s", strings.Join(sets, ", "))
	if t.UpdateGuard != "" {
		fmt.Fprintf(&sb, " WHERE %s", t.UpdateGuard)
	}
	return sb.String()
}

// queueRows appends chunked upserts of rows to batch.
func queueRows[T indexermodels.Row](batch *pgx.Batch, t indexermodels.Table, rows []T) {
	for _, span := range chunks(len(rows), t.FieldCount()) {
		args := make([]any, 0, (span[1]-span[0])*t.FieldCount())
		for _, row := range rows[span[0]:span[1]] {
			args = append(args, row.Values()...)
		}
		batch.Queue(upsertSQL(t, span[1]-span[0]), args...)
	}
}

// queue appends every batch to the pgx batch in table order.
func (b *Batches) queue(batch *pgx.Batch) {
	queueRows(batch, indexermodels.TransactionsTable, b.Transactions)
	queueRows(batch, indexermodels.UserTransactionsTable, b.UserTransactions)
	queueRows(batch, indexermodels.SignaturesTable, b.Signatures)
	queueRows(batch, indexermodels.BlockMetadataTransactionsTable, b.BlockMetadataTransactions)
	queueRows(batch, indexermodels.EventsTable, b.Events)
	queueRows(batch, indexermodels.WriteSetChangesTable, b.WriteSetChanges)
	queueRows(batch, indexermodels.MoveModulesTable, b.MoveModules)
	queueRows(batch, indexermodels.MoveResourcesTable, b.MoveResources)
	queueRows(batch, indexermodels.TableItemsTable, b.TableItems)
	queueRows(batch, indexermodels.CurrentTableItemsTable, b.CurrentTableItems)
	queueRows(batch, indexermodels.TableMetadataTable, b.TableMetadata)
}
