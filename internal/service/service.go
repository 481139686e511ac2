package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rebal/internal/applier"
	"rebal/internal/engine"
	"rebal/internal/history"
	"rebal/internal/logger"
	"rebal/internal/oracle"
)

// 中文说明：
// Orchestrator 串起一次完整的再分配：调用 Allocator、归一化、派生动作、
// 可选应用、追加历史。Oracle 调用发生在锁外（外呼慢且无共享状态）；
// apply + append 在 per-campaign 锁内执行，保证同一活动的运行串行、
// 台账顺序与应用顺序一致。

// ErrInvalidRequest 入参校验失败（缺变体、预算非正等）。
var ErrInvalidRequest = errors.New("invalid reallocation request")

// Config Orchestrator 的运行参数，通常来自配置文件。
type Config struct {
	// OracleTimeout 单次 Oracle 外呼上限，0 表示 oracle.DefaultTimeout。
	OracleTimeout time.Duration
	// DefaultMethod 请求未指定算法时透传给 Allocator 的值。
	DefaultMethod string
	Bounds        engine.BoundSet
	Policy        engine.PolicyConfig
}

// ReallocateRequest 单次再分配请求。Bounds 非 nil 时覆盖默认约束。
type ReallocateRequest struct {
	CampaignData engine.CampaignData
	TotalBudget  float64
	Method       string
	AutoApply    bool
	Bounds       *engine.BoundSet
}

// Orchestrator 再分配编排器。
type Orchestrator struct {
	allocator  oracle.Allocator
	forecaster oracle.Forecaster
	applier    applier.Applier
	ledger     history.Ledger
	cfg        Config
	locks      *campaignLocks
}

// NewOrchestrator 构造编排器。forecaster 可以为 nil（仅禁用预测管线）。
func NewOrchestrator(al oracle.Allocator, fc oracle.Forecaster, ap applier.Applier, ledger history.Ledger, cfg Config) *Orchestrator {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = oracle.DefaultTimeout
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = "thompson_sampling"
	}
	if ap == nil {
		ap = applier.NewNoop()
	}
	return &Orchestrator{
		allocator:  al,
		forecaster: fc,
		applier:    ap,
		ledger:     ledger,
		cfg:        cfg,
		locks:      newCampaignLocks(),
	}
}

// Reallocate 执行一次再分配。Oracle 失败或拒绝时直接返回错误，
// 不会留下任何历史记录。
func (o *Orchestrator) Reallocate(ctx context.Context, req ReallocateRequest) (engine.ReallocationResult, error) {
	var zero engine.ReallocationResult
	if err := validateReallocate(req); err != nil {
		return zero, err
	}
	method := req.Method
	if method == "" {
		method = o.cfg.DefaultMethod
	}
	bounds := o.cfg.Bounds
	if req.Bounds != nil {
		bounds = *req.Bounds
	}

	octx, cancel := context.WithTimeout(ctx, o.cfg.OracleTimeout)
	defer cancel()
	resp, err := o.allocator.Allocate(octx, oracle.AllocateRequest{
		CampaignID:  req.CampaignData.CampaignID,
		Variants:    req.CampaignData.Variants,
		TotalBudget: req.TotalBudget,
		Method:      method,
	})
	if err != nil {
		return zero, fmt.Errorf("allocator 调用失败: %w", err)
	}
	raw, err := reindexAllocations(resp.Allocations, req.CampaignData.Variants)
	if err != nil {
		return zero, err
	}

	feasible, ok := engine.Normalize(raw, bounds, req.TotalBudget)

	current := make(map[string]float64, len(req.CampaignData.Variants))
	for _, v := range req.CampaignData.Variants {
		current[v.VariantID] = v.CurrentBudget
	}
	// 暂停阈值跟着本次实际生效的约束走，请求覆盖约束时一并覆盖
	policy := o.cfg.Policy
	if req.Bounds != nil {
		policy.MinBudget = req.Bounds.Default.Min
	}
	actions := engine.Decide(feasible, current, policy)

	algorithm := resp.Algorithm
	if algorithm == "" {
		algorithm = method
	}
	result := engine.ReallocationResult{
		ID:          uuid.NewString(),
		CampaignID:  req.CampaignData.CampaignID,
		TotalBudget: req.TotalBudget,
		Allocations: feasible,
		Actions:     actions,
		Algorithm:   algorithm,
		Feasible:    ok,
		Timestamp:   time.Now(),
	}

	mu := o.locks.lock(req.CampaignData.CampaignID)
	defer mu.Unlock()

	// 请求了自动应用就留下 ApplyOutcome（哪怕零动作），历史上可与未请求区分；
	// 不可行的分配绝不触达投放平台。
	if req.AutoApply && ok {
		outcome := &engine.ApplyOutcome{Results: make([]engine.ApplyActionResult, 0, len(actions))}
		for _, action := range actions {
			res := o.applier.Apply(ctx, req.CampaignData.CampaignID, action)
			if res.Success {
				outcome.AppliedCount++
			} else {
				logger.Warnf("[service] 动作应用失败 campaign=%s variant=%s type=%s: %s",
					req.CampaignData.CampaignID, action.VariantID, action.Type, res.Note)
			}
			outcome.Results = append(outcome.Results, res)
		}
		result.Applied = outcome
	}

	if err := o.ledger.Append(ctx, result); err != nil {
		return zero, fmt.Errorf("写入历史台账失败: %w", err)
	}
	logger.Infof("[service] 再分配完成 run=%s campaign=%s feasible=%v actions=%d",
		result.ID, result.CampaignID, result.Feasible, len(result.Actions))
	return result, nil
}

// History 查询历史台账。
func (o *Orchestrator) History(ctx context.Context, q history.Query) ([]engine.ReallocationResult, error) {
	return o.ledger.List(ctx, q)
}

// reindexAllocations 把 Oracle 应答重排为请求变体的顺序（下游归一化与
// 动作派生都依赖该顺序确定性）。变体集合对不上按 Oracle 拒绝处理。
func reindexAllocations(allocs []engine.RawAllocation, variants []engine.Variant) ([]engine.RawAllocation, error) {
	byID := make(map[string]engine.RawAllocation, len(allocs))
	for _, a := range allocs {
		byID[a.VariantID] = a
	}
	if len(byID) != len(variants) {
		return nil, fmt.Errorf("%w: 应答变体集合与请求不一致 (%d vs %d)",
			oracle.ErrRejected, len(byID), len(variants))
	}
	out := make([]engine.RawAllocation, 0, len(variants))
	for _, v := range variants {
		a, found := byID[v.VariantID]
		if !found {
			return nil, fmt.Errorf("%w: 应答缺少变体 %s", oracle.ErrRejected, v.VariantID)
		}
		out = append(out, a)
	}
	return out, nil
}

func validateReallocate(req ReallocateRequest) error {
	if len(req.CampaignData.Variants) == 0 {
		return fmt.Errorf("%w: 至少需要一个变体", ErrInvalidRequest)
	}
	if req.TotalBudget <= 0 {
		return fmt.Errorf("%w: total_budget 必须为正数", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(req.CampaignData.Variants))
	for i, v := range req.CampaignData.Variants {
		if v.VariantID == "" {
			return fmt.Errorf("%w: 第 %d 个变体缺少 variant_id", ErrInvalidRequest, i)
		}
		if _, dup := seen[v.VariantID]; dup {
			return fmt.Errorf("%w: variant_id 重复: %s", ErrInvalidRequest, v.VariantID)
		}
		seen[v.VariantID] = struct{}{}
		if v.CurrentBudget < 0 {
			return fmt.Errorf("%w: 变体 %s 的 current_budget 不能为负", ErrInvalidRequest, v.VariantID)
		}
	}
	return nil
}
