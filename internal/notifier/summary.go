package notifier

import (
	"fmt"
	"strings"
	"time"

	"rebal/internal/engine"
)

// FormatRunSummary 把一次再分配结果压成 Telegram 友好的 Markdown 摘要。
func FormatRunSummary(res engine.ReallocationResult) string {
	var b strings.Builder
	icon := "✅"
	if !res.Feasible {
		icon = "⚠️"
	}
	campaign := res.CampaignID
	if campaign == "" {
		campaign = "-"
	}
	fmt.Fprintf(&b, "%s *预算再分配完成*\n", icon)
	fmt.Fprintf(&b, "活动: `%s`\n", campaign)
	fmt.Fprintf(&b, "总预算: %.2f | 算法: %s\n", res.TotalBudget, res.Algorithm)
	if !res.Feasible {
		b.WriteString("⚠️ 约束不可满足，分配为尽力而为结果\n")
	}
	if len(res.Actions) == 0 {
		b.WriteString("无需调整\n")
	}
	for _, a := range res.Actions {
		fmt.Fprintf(&b, "%s `%s` %.2f → %.2f (%+.1f%%)\n",
			actionIcon(a.Type), a.VariantID, a.CurrentBudget, a.NewBudget, a.ChangePercent)
	}
	if res.Applied != nil {
		fmt.Fprintf(&b, "已应用 %d/%d 条动作\n", res.Applied.AppliedCount, len(res.Applied.Results))
		for _, r := range res.Applied.Results {
			if !r.Success {
				fmt.Fprintf(&b, "❌ `%s` %s: %s\n", r.VariantID, r.ActionType, r.Note)
			}
		}
	}
	fmt.Fprintf(&b, "_%s_", res.Timestamp.UTC().Format(time.RFC3339))
	return b.String()
}

func actionIcon(t engine.ActionType) string {
	switch t {
	case engine.ActionIncrease:
		return "📈"
	case engine.ActionDecrease:
		return "📉"
	case engine.ActionPause:
		return "⏸️"
	default:
		return "•"
	}
}
