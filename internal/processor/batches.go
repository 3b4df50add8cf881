package processor

import (
	"cmp"
	"slices"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/Aptos-Scan/aptos-indexer/pkg/transform"
)

// Batches holds every entity written for one version range.
type Batches struct {
	Transactions              []indexermodels.Transaction
	UserTransactions          []indexermodels.UserTransaction
	Signatures                []indexermodels.Signature
	BlockMetadataTransactions []indexermodels.BlockMetadataTransaction
	Events                    []indexermodels.Event
	WriteSetChanges           []indexermodels.WriteSetChange
	MoveModules               []indexermodels.MoveModule
	MoveResources             []indexermodels.MoveResource
	TableItems                []indexermodels.TableItem
	CurrentTableItems         []indexermodels.CurrentTableItem
	TableMetadata             []indexermodels.TableMetadata
}

// newBatches splits the transaction details and collapses the write set
// change details of a decomposed range.
func newBatches(d *transform.Decomposed) *Batches {
	b := &Batches{
		Transactions:    d.Transactions,
		Events:          d.Events,
		WriteSetChanges: d.WriteSetChanges,
	}

	for _, detail := range d.Details {
		switch v := detail.(type) {
		case *indexermodels.UserDetail:
			b.UserTransactions = append(b.UserTransactions, v.Transaction)
			b.Signatures = append(b.Signatures, v.Signatures...)
		case *indexermodels.BlockMetadataDetail:
			b.BlockMetadataTransactions = append(b.BlockMetadataTransactions, v.Transaction)
		case *indexermodels.SystemDetail:
			// transaction record only
		}
	}

	c := collapse(d.ChangeDetails)
	b.MoveModules = c.moveModules
	b.MoveResources = c.moveResources
	b.TableItems = c.tableItems
	b.CurrentTableItems = c.currentTableItems
	b.TableMetadata = c.tableMetadata
	return b
}

type tableKey struct {
	handle  string
	keyHash string
}

type collapsed struct {
	moveModules       []indexermodels.MoveModule
	moveResources     []indexermodels.MoveResource
	tableItems        []indexermodels.TableItem
	currentTableItems []indexermodels.CurrentTableItem
	tableMetadata     []indexermodels.TableMetadata
}

// collapse flattens the append-only kinds in order and reduces current table
// items and table metadata to the last occurrence per key. Keyed output is
// sorted by primary key so concurrent writers lock rows in the same order.
func collapse(details []indexermodels.WriteSetChangeDetail) collapsed {
	var out collapsed
	current := make(map[tableKey]indexermodels.CurrentTableItem)
	metadata := make(map[string]indexermodels.TableMetadata)

	for _, detail := range details {
		switch v := detail.(type) {
		case *indexermodels.ModuleDetail:
			out.moveModules = append(out.moveModules, v.Module)
		case *indexermodels.ResourceDetail:
			out.moveResources = append(out.moveResources, v.Resource)
		case *indexermodels.TableDetail:
			out.tableItems = append(out.tableItems, v.Item)
			current[tableKey{v.Current.TableHandle, v.Current.KeyHash}] = v.Current
			if v.Metadata != nil {
				metadata[v.Metadata.Handle] = *v.Metadata
			}
		}
	}

	out.currentTableItems = make([]indexermodels.CurrentTableItem, 0, len(current))
	for _, item := range current {
		out.currentTableItems = append(out.currentTableItems, item)
	}
	slices.SortFunc(out.currentTableItems, func(a, b indexermodels.CurrentTableItem) int {
		return cmp.Or(
			cmp.Compare(a.TableHandle, b.TableHandle),
			cmp.Compare(a.KeyHash, b.KeyHash),
		)
	})

	out.tableMetadata = make([]indexermodels.TableMetadata, 0, len(metadata))
	for _, m := range metadata {
		out.tableMetadata = append(out.tableMetadata, m)
	}
	slices.SortFunc(out.tableMetadata, func(a, b indexermodels.TableMetadata) int {
		return cmp.Compare(a.Handle, b.Handle)
	})

	return out
}

// Sanitize returns a cleaned copy of every batch. b is not modified.
func (b *Batches) Sanitize() *Batches {
	return &Batches{
		Transactions:              indexermodels.SanitizeAll(b.Transactions),
		UserTransactions:          indexermodels.SanitizeAll(b.UserTransactions),
		Signatures:                indexermodels.SanitizeAll(b.Signatures),
		BlockMetadataTransactions: indexermodels.SanitizeAll(b.BlockMetadataTransactions),
		Events:                    indexermodels.SanitizeAll(b.Events),
		WriteSetChanges:           indexermodels.SanitizeAll(b.WriteSetChanges),
		MoveModules:               indexermodels.SanitizeAll(b.MoveModules),
		MoveResources:             indexermodels.SanitizeAll(b.MoveResources),
		TableItems:                indexermodels.SanitizeAll(b.TableItems),
		CurrentTableItems:         indexermodels.SanitizeAll(b.CurrentTableItems),
		TableMetadata:             indexermodels.SanitizeAll(b.TableMetadata),
	}
}

// Rows is the total number of entities across all batches.
func (b *Batches) Rows() int {
	return len(b.Transactions) + len(b.UserTransactions) + len(b.Signatures) +
		len(b.BlockMetadataTransactions) + len(b.Events) + len(b.WriteSetChanges) +
		len(b.MoveModules) + len(b.MoveResources) + len(b.TableItems) +
		len(b.CurrentTableItems) + len(b.TableMetadata)
}
