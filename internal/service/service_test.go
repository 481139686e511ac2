package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebal/internal/engine"
	"rebal/internal/history"
	"rebal/internal/oracle"
)

type allocatorFunc func(ctx context.Context, req oracle.AllocateRequest) (oracle.AllocateResponse, error)

func (f allocatorFunc) Allocate(ctx context.Context, req oracle.AllocateRequest) (oracle.AllocateResponse, error) {
	return f(ctx, req)
}

type forecasterFunc func(ctx context.Context, req oracle.ForecastRequest) (oracle.ForecastResponse, error)

func (f forecasterFunc) Forecast(ctx context.Context, req oracle.ForecastRequest) (oracle.ForecastResponse, error) {
	return f(ctx, req)
}

type applierFunc func(ctx context.Context, campaignID string, action engine.Action) engine.ApplyActionResult

func (f applierFunc) Apply(ctx context.Context, campaignID string, action engine.Action) engine.ApplyActionResult {
	return f(ctx, campaignID, action)
}

func fixedAllocator(allocs []engine.RawAllocation) allocatorFunc {
	return func(_ context.Context, _ oracle.AllocateRequest) (oracle.AllocateResponse, error) {
		return oracle.AllocateResponse{Success: true, Allocations: allocs, Algorithm: "thompson_sampling"}, nil
	}
}

func twoVariantRequest() ReallocateRequest {
	return ReallocateRequest{
		CampaignData: engine.CampaignData{
			CampaignID: "camp-1",
			Variants: []engine.Variant{
				{VariantID: "a", CurrentBudget: 100, Metrics: map[string]float64{"conversions": 40, "impressions": 1000}},
				{VariantID: "b", CurrentBudget: 100, Metrics: map[string]float64{"conversions": 5, "impressions": 1000}},
			},
		},
		TotalBudget: 200,
	}
}

func testConfig() Config {
	return Config{
		Bounds: engine.BoundSet{Default: engine.Bound{Min: 10}},
		Policy: engine.PolicyConfig{MinBudget: 10, ChangeThresholdPct: engine.DefaultChangeThresholdPct},
	}
}

func TestReallocate_HappyPath(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 150},
		{VariantID: "b", RecommendedBudget: 50},
	})
	orch := NewOrchestrator(al, nil, nil, ledger, testConfig())

	res, err := orch.Reallocate(ctx, twoVariantRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "camp-1", res.CampaignID)
	assert.True(t, res.Feasible)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, 150.0, res.Allocations[0].AllocatedBudget)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, engine.ActionIncrease, res.Actions[0].Type)
	assert.Equal(t, engine.ActionDecrease, res.Actions[1].Type)
	assert.Nil(t, res.Applied)

	got, err := ledger.List(ctx, history.Query{CampaignID: "camp-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, res.ID, got[0].ID)
}

func TestReallocate_OracleUnavailableLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := allocatorFunc(func(_ context.Context, _ oracle.AllocateRequest) (oracle.AllocateResponse, error) {
		return oracle.AllocateResponse{}, fmt.Errorf("%w: connection refused", oracle.ErrUnavailable)
	})
	orch := NewOrchestrator(al, nil, nil, ledger, testConfig())

	_, err := orch.Reallocate(ctx, twoVariantRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.Zero(t, ledger.Len())
}

func TestReallocate_OracleRejected(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := allocatorFunc(func(_ context.Context, _ oracle.AllocateRequest) (oracle.AllocateResponse, error) {
		return oracle.AllocateResponse{}, fmt.Errorf("%w: unknown method", oracle.ErrRejected)
	})
	orch := NewOrchestrator(al, nil, nil, ledger, testConfig())

	_, err := orch.Reallocate(ctx, twoVariantRequest())
	assert.ErrorIs(t, err, oracle.ErrRejected)
	assert.Zero(t, ledger.Len())
}

// Oracle 超时按不可用处理，且不能留下半截历史。
func TestReallocate_OracleTimeout(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := allocatorFunc(func(octx context.Context, _ oracle.AllocateRequest) (oracle.AllocateResponse, error) {
		<-octx.Done()
		return oracle.AllocateResponse{}, fmt.Errorf("%w: %v", oracle.ErrUnavailable, octx.Err())
	})
	cfg := testConfig()
	cfg.OracleTimeout = 20 * time.Millisecond
	orch := NewOrchestrator(al, nil, nil, ledger, cfg)

	start := time.Now()
	_, err := orch.Reallocate(ctx, twoVariantRequest())
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, ledger.Len())
}

// Σmin > total：结果可辨识为不可行，但调用本身成功并照常记账。
func TestReallocate_InfeasibleResultStillRecorded(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 100},
		{VariantID: "b", RecommendedBudget: 100},
	})
	cfg := testConfig()
	cfg.Bounds = engine.BoundSet{Default: engine.Bound{Min: 150}}
	orch := NewOrchestrator(al, nil, nil, ledger, cfg)

	req := twoVariantRequest()
	req.AutoApply = true
	res, err := orch.Reallocate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Feasible)
	// 尽力分配：钉 min 后压缩，总和仍等于 total，逐项低于下界
	require.Len(t, res.Allocations, 2)
	assert.InDelta(t, 100, res.Allocations[0].AllocatedBudget, engine.Epsilon)
	assert.InDelta(t, 100, res.Allocations[1].AllocatedBudget, engine.Epsilon)
	// 不可行的结果绝不能触发 auto_apply
	assert.Nil(t, res.Applied)
	assert.Equal(t, 1, ledger.Len())
}

// Oracle 应答乱序时必须按请求变体顺序重排后再进入归一化与动作派生。
func TestReallocate_OracleResponseReordered(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "b", RecommendedBudget: 50},
		{VariantID: "a", RecommendedBudget: 150},
	})
	orch := NewOrchestrator(al, nil, nil, ledger, testConfig())

	res, err := orch.Reallocate(ctx, twoVariantRequest())
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "a", res.Allocations[0].VariantID)
	assert.Equal(t, 150.0, res.Allocations[0].AllocatedBudget)
	assert.Equal(t, "b", res.Allocations[1].VariantID)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, "a", res.Actions[0].VariantID)
	assert.Equal(t, engine.ActionIncrease, res.Actions[0].Type)
	assert.Equal(t, "b", res.Actions[1].VariantID)
	assert.Equal(t, engine.ActionDecrease, res.Actions[1].Type)
}

// 应答变体集合与请求对不上按 Oracle 拒绝处理，不记账。
func TestReallocate_OracleVariantSetMismatch(t *testing.T) {
	ctx := context.Background()
	cases := map[string][]engine.RawAllocation{
		"missing variant": {{VariantID: "a", RecommendedBudget: 200}},
		"unknown variant": {
			{VariantID: "a", RecommendedBudget: 100},
			{VariantID: "ghost", RecommendedBudget: 100},
		},
	}
	for name, allocs := range cases {
		t.Run(name, func(t *testing.T) {
			ledger := history.NewMemoryLedger()
			orch := NewOrchestrator(fixedAllocator(allocs), nil, nil, ledger, testConfig())
			_, err := orch.Reallocate(ctx, twoVariantRequest())
			assert.ErrorIs(t, err, oracle.ErrRejected)
			assert.Zero(t, ledger.Len())
		})
	}
}

func TestReallocate_AutoApplyPartialFailure(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 150},
		{VariantID: "b", RecommendedBudget: 50},
	})
	ap := applierFunc(func(_ context.Context, _ string, action engine.Action) engine.ApplyActionResult {
		res := engine.ApplyActionResult{VariantID: action.VariantID, ActionType: action.Type, Success: true}
		if action.VariantID == "b" {
			res.Success = false
			res.Note = "platform returned 409"
		}
		return res
	})
	orch := NewOrchestrator(al, nil, ap, ledger, testConfig())

	req := twoVariantRequest()
	req.AutoApply = true
	res, err := orch.Reallocate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Equal(t, 1, res.Applied.AppliedCount)
	require.Len(t, res.Applied.Results, 2)
	assert.True(t, res.Applied.Results[0].Success)
	assert.False(t, res.Applied.Results[1].Success)
	assert.Equal(t, "platform returned 409", res.Applied.Results[1].Note)

	// 部分失败不回滚，运行照常进入台账
	got, err := ledger.List(ctx, history.Query{CampaignID: "camp-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Applied)
}

func TestReallocate_RequestBoundsOverride(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 180},
		{VariantID: "b", RecommendedBudget: 20},
	})
	orch := NewOrchestrator(al, nil, nil, ledger, testConfig())

	maxA := 120.0
	req := twoVariantRequest()
	req.Bounds = &engine.BoundSet{
		Default:    engine.Bound{Min: 10},
		PerVariant: map[string]engine.Bound{"a": {Min: 10, Max: &maxA}},
	}
	res, err := orch.Reallocate(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Feasible)
	assert.Equal(t, 120.0, res.Allocations[0].AllocatedBudget)
	assert.Equal(t, 80.0, res.Allocations[1].AllocatedBudget)
}

// 暂停阈值必须吃到请求携带的 min_budget，而不是服务端配置的默认值。
func TestReallocate_RequestBoundsSetPauseFloor(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 50},
		{VariantID: "b", RecommendedBudget: 50},
	})
	cfg := testConfig()
	cfg.Policy.MinBudget = 0
	orch := NewOrchestrator(al, nil, nil, ledger, cfg)

	// Σmin = 120 > total = 100：压缩到 [50,50]，变动 -3.8% 低于阈值，
	// 但 50 低于请求给的 60 下限 → pause
	req := twoVariantRequest()
	req.TotalBudget = 100
	req.CampaignData.Variants[0].CurrentBudget = 52
	req.CampaignData.Variants[1].CurrentBudget = 52
	req.Bounds = &engine.BoundSet{Default: engine.Bound{Min: 60}}

	res, err := orch.Reallocate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Feasible)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, engine.ActionPause, res.Actions[0].Type)
	assert.Equal(t, engine.ActionPause, res.Actions[1].Type)
}

// 请求了 auto_apply 但零动作：历史里仍要留下空的 ApplyOutcome，
// 与“根本没请求应用”可区分。
func TestReallocate_AutoApplyZeroActionsRecordsEmptyOutcome(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 100},
		{VariantID: "b", RecommendedBudget: 100},
	})
	var applyCalls int64
	ap := applierFunc(func(_ context.Context, _ string, action engine.Action) engine.ApplyActionResult {
		atomic.AddInt64(&applyCalls, 1)
		return engine.ApplyActionResult{VariantID: action.VariantID, ActionType: action.Type, Success: true}
	})
	orch := NewOrchestrator(al, nil, ap, ledger, testConfig())

	req := twoVariantRequest()
	req.AutoApply = true
	res, err := orch.Reallocate(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Zero(t, res.Applied.AppliedCount)
	assert.Empty(t, res.Applied.Results)
	assert.Zero(t, atomic.LoadInt64(&applyCalls))

	got, err := ledger.List(ctx, history.Query{CampaignID: "camp-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Applied)
}

func TestReallocate_Validation(t *testing.T) {
	orch := NewOrchestrator(fixedAllocator(nil), nil, nil, history.NewMemoryLedger(), testConfig())

	_, err := orch.Reallocate(context.Background(), ReallocateRequest{TotalBudget: 100})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := twoVariantRequest()
	req.TotalBudget = 0
	_, err = orch.Reallocate(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = twoVariantRequest()
	req.CampaignData.Variants[1].VariantID = "a"
	_, err = orch.Reallocate(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// 同一 campaign 的并发调用必须串行通过 apply+append 临界区。
func TestReallocate_SameCampaignSerialized(t *testing.T) {
	ctx := context.Background()
	ledger := history.NewMemoryLedger()
	al := fixedAllocator([]engine.RawAllocation{
		{VariantID: "a", RecommendedBudget: 150},
		{VariantID: "b", RecommendedBudget: 50},
	})

	var inFlight, maxInFlight int64
	ap := applierFunc(func(_ context.Context, _ string, action engine.Action) engine.ApplyActionResult {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			prev := atomic.LoadInt64(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt64(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return engine.ApplyActionResult{VariantID: action.VariantID, ActionType: action.Type, Success: true}
	})
	orch := NewOrchestrator(al, nil, ap, ledger, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := twoVariantRequest()
			req.AutoApply = true
			_, err := orch.Reallocate(ctx, req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 每次运行应用两条动作；串行化意味着临界区内并发度恒为 1
	assert.Equal(t, int64(1), atomic.LoadInt64(&maxInFlight))
	assert.Equal(t, 4, ledger.Len())
}

func TestForecast_Delegation(t *testing.T) {
	fc := forecasterFunc(func(_ context.Context, req oracle.ForecastRequest) (oracle.ForecastResponse, error) {
		assert.Equal(t, 14, req.DaysAhead)
		return oracle.ForecastResponse{
			Success:      true,
			Forecast:     []engine.ForecastPoint{{Date: "2026-09-01", Conversions: 12.5}},
			ForecastDays: 14,
			Summary:      engine.ForecastSummary{TotalForecastedConversions: 12.5},
		}, nil
	})
	orch := NewOrchestrator(fixedAllocator(nil), fc, nil, history.NewMemoryLedger(), testConfig())

	res, err := orch.Forecast(context.Background(), ForecastRequest{
		HistoricalData: []engine.DataPoint{{Date: "2026-08-01", Conversions: 10, Impressions: 500, Spend: 40}},
		DaysAhead:      14,
	})
	require.NoError(t, err)
	assert.Equal(t, 14, res.ForecastDays)
	assert.Equal(t, 12.5, res.Summary.TotalForecastedConversions)
}

func TestForecast_DefaultDaysAndValidation(t *testing.T) {
	fc := forecasterFunc(func(_ context.Context, req oracle.ForecastRequest) (oracle.ForecastResponse, error) {
		assert.Equal(t, DefaultForecastDays, req.DaysAhead)
		return oracle.ForecastResponse{Success: true, ForecastDays: req.DaysAhead}, nil
	})
	orch := NewOrchestrator(fixedAllocator(nil), fc, nil, history.NewMemoryLedger(), testConfig())

	_, err := orch.Forecast(context.Background(), ForecastRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	res, err := orch.Forecast(context.Background(), ForecastRequest{
		HistoricalData: []engine.DataPoint{{Date: "2026-08-01", Conversions: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultForecastDays, res.ForecastDays)
}

func TestForecast_ErrorPropagation(t *testing.T) {
	fc := forecasterFunc(func(_ context.Context, _ oracle.ForecastRequest) (oracle.ForecastResponse, error) {
		return oracle.ForecastResponse{}, fmt.Errorf("%w: insufficient data", oracle.ErrRejected)
	})
	orch := NewOrchestrator(fixedAllocator(nil), fc, nil, history.NewMemoryLedger(), testConfig())

	_, err := orch.Forecast(context.Background(), ForecastRequest{
		HistoricalData: []engine.DataPoint{{Date: "2026-08-01"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrRejected))
}
