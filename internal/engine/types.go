package engine

import "time"

// 中文说明：
// engine 包是预算再分配的纯计算核心：约束归一化（水位填充）与动作策略。
// 不做任何 I/O，不持有共享状态，便于单测与复用。

// Variant 活动内单个预算单元（创意/受众分组）。
// Metrics 对本引擎不透明，原样透传给 Allocator Oracle。
type Variant struct {
	VariantID     string             `json:"variant_id"`
	CurrentBudget float64            `json:"current_budget"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// CampaignData 单次再分配调用的输入集合。变体顺序无业务含义，
// 但后续输出必须保持该顺序以保证确定性。
type CampaignData struct {
	CampaignID string    `json:"campaign_id,omitempty"`
	Variants   []Variant `json:"variants"`
}

// Bound 单变体预算上下界。Max 为 nil 表示上方无界。
type Bound struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max,omitempty"`
}

// BoundSet 描述整组变体的约束：全局默认 + 按 variant_id 覆盖。
type BoundSet struct {
	Default    Bound            `json:"default"`
	PerVariant map[string]Bound `json:"per_variant,omitempty"`
}

// For 返回指定变体生效的上下界。
func (b BoundSet) For(variantID string) Bound {
	if b.PerVariant != nil {
		if bd, ok := b.PerVariant[variantID]; ok {
			return bd
		}
	}
	return b.Default
}

// RawAllocation Oracle 返回的原始建议预算。
// Oracle 保证总和约等于 total_budget，但引擎不得假设精确相等。
type RawAllocation struct {
	VariantID         string  `json:"variant_id"`
	RecommendedBudget float64 `json:"recommended_budget"`
}

// FeasibleAllocation 归一化后的可行分配。
// OriginalBudget 保留截断前的原始建议值，供审计回溯。
type FeasibleAllocation struct {
	VariantID       string  `json:"variant_id"`
	AllocatedBudget float64 `json:"allocated_budget"`
	OriginalBudget  float64 `json:"original_budget"`
}

// ActionType 操作者可见的离散动作类型。
type ActionType string

const (
	ActionIncrease ActionType = "increase_budget"
	ActionDecrease ActionType = "decrease_budget"
	ActionPause    ActionType = "pause"
)

// Action 由当前预算与新分配的差值派生，不独立持久化。
type Action struct {
	Type          ActionType `json:"action"`
	VariantID     string     `json:"variant_id"`
	CurrentBudget float64    `json:"current_budget"`
	NewBudget     float64    `json:"new_budget"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"change_percent"`
	Reason        string     `json:"reason"`
}

// ApplyActionResult 单条动作的应用结果。各动作彼此独立，失败不回滚兄弟动作。
type ApplyActionResult struct {
	VariantID  string     `json:"variant_id"`
	ActionType ActionType `json:"action_type"`
	Success    bool       `json:"success"`
	Note       string     `json:"note,omitempty"`
}

// ApplyOutcome 一次 auto_apply 的汇总。
type ApplyOutcome struct {
	AppliedCount int                 `json:"applied_count"`
	Results      []ApplyActionResult `json:"results"`
}

// ReallocationResult 单次编排运行的不可变产物，追加进历史台账后不再修改。
type ReallocationResult struct {
	ID          string               `json:"id"`
	CampaignID  string               `json:"campaign_id,omitempty"`
	TotalBudget float64              `json:"total_budget"`
	Allocations []FeasibleAllocation `json:"allocations"`
	Actions     []Action             `json:"actions"`
	Algorithm   string               `json:"algorithm"`
	Feasible    bool                 `json:"feasible"`
	Timestamp   time.Time            `json:"timestamp"`
	Applied     *ApplyOutcome        `json:"applied,omitempty"`
}

// DataPoint 预测管线的历史观测样本。
type DataPoint struct {
	Date        string  `json:"date"`
	Conversions float64 `json:"conversions"`
	Impressions float64 `json:"impressions"`
	Spend       float64 `json:"spend"`
}

// ForecastPoint 单日预测输出。
type ForecastPoint struct {
	Date        string  `json:"date"`
	Conversions float64 `json:"conversions"`
	Lower       float64 `json:"lower,omitempty"`
	Upper       float64 `json:"upper,omitempty"`
}

// ForecastSummary 预测汇总（由 Oracle 给出，引擎不做本地计算）。
type ForecastSummary struct {
	TotalForecastedConversions float64 `json:"total_forecasted_conversions"`
}

// ForecastResult 预测管线返回值。预测不是再分配事件，不进入历史台账。
type ForecastResult struct {
	Forecast     []ForecastPoint `json:"forecast"`
	ForecastDays int             `json:"forecast_days"`
	Summary      ForecastSummary `json:"summary"`
}
