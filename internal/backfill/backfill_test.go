package backfill

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aptos-Scan/aptos-indexer/internal/processor"
	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
)

func TestGroupRanges(t *testing.T) {
	tests := []struct {
		name     string
		versions []uint64
		size     uint64
		want     []adminmodels.VersionRange
	}{
		{name: "empty", size: 10},
		{name: "single", versions: []uint64{4}, size: 10, want: []adminmodels.VersionRange{{Start: 4, End: 4}}},
		{
			name:     "gaps split ranges",
			versions: []uint64{1, 2, 3, 7, 8, 20},
			size:     10,
			want:     []adminmodels.VersionRange{{Start: 1, End: 3}, {Start: 7, End: 8}, {Start: 20, End: 20}},
		},
		{
			name:     "size caps contiguous run",
			versions: []uint64{0, 1, 2, 3, 4},
			size:     2,
			want:     []adminmodels.VersionRange{{Start: 0, End: 1}, {Start: 2, End: 3}, {Start: 4, End: 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupRanges(tt.versions, tt.size))
		})
	}
}

// memoryGaps treats the versions in stored as persisted.
type memoryGaps struct {
	mu     sync.Mutex
	stored map[uint64]bool
}

func (m *memoryGaps) FindMissingVersions(_ context.Context, start, end uint64, limit int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint64
	for v := start; v <= end && len(out) < limit; v++ {
		if !m.stored[v] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memoryGaps) GetGapStats(ctx context.Context, start, end uint64) (*GapStats, error) {
	missing, _ := m.FindMissingVersions(ctx, start, end, int(end-start+1))
	stats := &GapStats{TotalExpected: end - start + 1, TotalMissing: uint64(len(missing))}
	stats.TotalIndexed = stats.TotalExpected - stats.TotalMissing
	if len(missing) > 0 {
		stats.FirstMissing = missing[0]
		stats.LastMissing = missing[len(missing)-1]
	}
	return stats, nil
}

type fakeNode struct {
	head uint64
}

func (n fakeNode) LedgerVersion(context.Context) (uint64, error) { return n.head, nil }

func (n fakeNode) TransactionsRange(_ context.Context, start, end uint64) ([]rpc.Transaction, error) {
	return make([]rpc.Transaction, end-start+1), nil
}

type storingProcessor struct {
	gaps   *memoryGaps
	failOn uint64
	mu     sync.Mutex
	ranges []adminmodels.VersionRange
}

func (p *storingProcessor) Process(_ context.Context, txs []rpc.Transaction, start, end uint64) (*processor.Result, error) {
	p.mu.Lock()
	p.ranges = append(p.ranges, adminmodels.VersionRange{Start: start, End: end})
	p.mu.Unlock()
	if p.failOn >= start && p.failOn <= end {
		return nil, &processor.CommitError{Err: errors.New("boom"), StartVersion: start, EndVersion: end}
	}
	p.gaps.mu.Lock()
	for v := start; v <= end; v++ {
		p.gaps.stored[v] = true
	}
	p.gaps.mu.Unlock()
	return &processor.Result{StartVersion: start, EndVersion: end}, nil
}

func storedExcept(from, to uint64, missing ...uint64) map[uint64]bool {
	stored := map[uint64]bool{}
	for v := from; v <= to; v++ {
		stored[v] = true
	}
	for _, v := range missing {
		delete(stored, v)
	}
	return stored
}

func TestBackfiller_FillsGaps(t *testing.T) {
	gaps := &memoryGaps{stored: storedExcept(0, 99, 5, 6, 7, 40, 41, 99)}
	proc := &storingProcessor{gaps: gaps, failOn: ^uint64(0)}
	bf := New(fakeNode{head: 99}, gaps, proc, &Config{BatchSize: 2, ScanLimit: 3, Concurrency: 2})

	res, err := bf.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.TotalMissing)
	assert.Equal(t, uint64(6), res.TotalSucceeded)
	assert.Zero(t, res.TotalFailed)

	sort.Slice(proc.ranges, func(i, j int) bool { return proc.ranges[i].Start < proc.ranges[j].Start })
	assert.Equal(t, []adminmodels.VersionRange{
		{Start: 5, End: 6}, {Start: 7, End: 7}, {Start: 40, End: 41}, {Start: 99, End: 99},
	}, proc.ranges)

	stats, err := bf.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMissing)
}

func TestBackfiller_ContinuesPastFailures(t *testing.T) {
	gaps := &memoryGaps{stored: storedExcept(0, 50, 10, 30)}
	proc := &storingProcessor{gaps: gaps, failOn: 10}
	bf := New(fakeNode{head: 50}, gaps, proc, &Config{BatchSize: 10})

	res, err := bf.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.TotalFailed)
	assert.Equal(t, uint64(1), res.TotalSucceeded)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "range [10, 10]")
}

func TestBackfiller_DryRun(t *testing.T) {
	gaps := &memoryGaps{stored: storedExcept(0, 9, 3)}
	proc := &storingProcessor{gaps: gaps}
	bf := New(fakeNode{head: 9}, gaps, proc, &Config{DryRun: true})

	res, err := bf.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.TotalMissing)
	assert.Empty(t, proc.ranges)
}

func TestBackfiller_InvalidBounds(t *testing.T) {
	bf := New(fakeNode{head: 5}, &memoryGaps{}, &storingProcessor{}, &Config{StartVersion: 10})
	_, err := bf.Run(context.Background())
	require.Error(t, err)
}
