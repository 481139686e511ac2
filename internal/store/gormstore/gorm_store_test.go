package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebal/internal/engine"
	"rebal/internal/history"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res := engine.ReallocationResult{
		ID:          "run-1",
		CampaignID:  "camp-1",
		TotalBudget: 700,
		Algorithm:   "thompson_sampling",
		Feasible:    true,
		Timestamp:   time.Now(),
		Allocations: []engine.FeasibleAllocation{
			{VariantID: "a", AllocatedBudget: 300, OriginalBudget: 500},
			{VariantID: "b", AllocatedBudget: 400, OriginalBudget: 200},
		},
		Actions: []engine.Action{
			{VariantID: "b", Type: engine.ActionIncrease, CurrentBudget: 200, NewBudget: 400, Reason: "recommended budget is 100.0% above current budget"},
		},
		Applied: &engine.ApplyOutcome{
			AppliedCount: 1,
			Results: []engine.ApplyActionResult{
				{VariantID: "b", ActionType: engine.ActionIncrease, Success: true},
			},
		},
	}
	require.NoError(t, store.Append(ctx, res))

	got, err := store.List(ctx, history.Query{CampaignID: "camp-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)
	assert.Equal(t, 700.0, got[0].TotalBudget)
	require.Len(t, got[0].Allocations, 2)
	assert.Equal(t, 300.0, got[0].Allocations[0].AllocatedBudget)
	require.Len(t, got[0].Actions, 1)
	assert.Equal(t, engine.ActionIncrease, got[0].Actions[0].Type)
	require.NotNil(t, got[0].Applied)
	assert.Equal(t, 1, got[0].Applied.AppliedCount)
}

func TestGormStore_ListFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		cid := "camp-a"
		if i%2 == 1 {
			cid = "camp-b"
		}
		require.NoError(t, store.Append(ctx, engine.ReallocationResult{
			ID:          "run-" + string(rune('a'+i)),
			CampaignID:  cid,
			TotalBudget: float64(i * 100),
			Feasible:    true,
			Timestamp:   time.Now(),
		}))
	}

	all, err := store.List(ctx, history.Query{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	// 写入顺序即返回顺序
	assert.Equal(t, 0.0, all[0].TotalBudget)
	assert.Equal(t, 400.0, all[4].TotalBudget)

	campA, err := store.List(ctx, history.Query{CampaignID: "camp-a"})
	require.NoError(t, err)
	require.Len(t, campA, 3)

	page, err := store.List(ctx, history.Query{CampaignID: "camp-a", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 200.0, page[0].TotalBudget)

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	totalB, err := store.Count(ctx, "camp-b")
	require.NoError(t, err)
	assert.Equal(t, 2, totalB)
}

func TestGormStore_DuplicateRunIDRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res := engine.ReallocationResult{ID: "run-dup", CampaignID: "c", Feasible: true, Timestamp: time.Now()}
	require.NoError(t, store.Append(ctx, res))
	assert.Error(t, store.Append(ctx, res))
}
