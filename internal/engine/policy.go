package engine

import (
	"fmt"

	"rebal/internal/pkg/money"
)

// DefaultChangeThresholdPct 触发 increase/decrease 的默认涨跌幅阈值（百分比）。
const DefaultChangeThresholdPct = 10.0

// PolicyConfig 动作策略的阈值配置。
type PolicyConfig struct {
	// MinBudget 暂停线：分配额低于此值且未触发涨跌幅动作时给出 pause。
	MinBudget float64
	// ChangeThresholdPct 涨跌幅阈值，<=0 时取 DefaultChangeThresholdPct。
	ChangeThresholdPct float64
}

// Decide 把可行分配与当前预算的差值翻译为有序动作列表。
// 确定性：按 feasible 的顺序（即输入 CampaignData 的变体顺序）逐个评估。
// 约定：current==0 时 change_percent 记为 0；涨跌幅动作优先于 pause，
// 一个变体最多产出一条动作。
func Decide(feasible []FeasibleAllocation, current map[string]float64, cfg PolicyConfig) []Action {
	threshold := cfg.ChangeThresholdPct
	if threshold <= 0 {
		threshold = DefaultChangeThresholdPct
	}
	actions := make([]Action, 0, len(feasible))
	for _, fa := range feasible {
		cur := current[fa.VariantID]
		change := fa.AllocatedBudget - cur
		pct := money.PctChange(cur, fa.AllocatedBudget)

		act := Action{
			VariantID:     fa.VariantID,
			CurrentBudget: money.Round2(cur),
			NewBudget:     money.Round2(fa.AllocatedBudget),
			Change:        money.Round2(change),
			ChangePercent: pct,
		}
		switch {
		case pct > threshold:
			act.Type = ActionIncrease
			act.Reason = fmt.Sprintf("recommended budget is %.1f%% above current budget", money.Round1(pct))
		case pct < -threshold:
			act.Type = ActionDecrease
			act.Reason = fmt.Sprintf("recommended budget is %.1f%% below current budget", money.Round1(-pct))
		case fa.AllocatedBudget < cfg.MinBudget:
			act.Type = ActionPause
			act.Reason = "allocated budget fell below the minimum viable budget"
		default:
			continue
		}
		actions = append(actions, act)
	}
	return actions
}
