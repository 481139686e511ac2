package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rebal/internal/engine"
)

func TestFormatRunSummary(t *testing.T) {
	res := engine.ReallocationResult{
		ID:          "run-1",
		CampaignID:  "summer-sale",
		TotalBudget: 700,
		Algorithm:   "thompson_sampling",
		Feasible:    true,
		Timestamp:   time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Actions: []engine.Action{
			{Type: engine.ActionIncrease, VariantID: "hero", CurrentBudget: 200, NewBudget: 400, ChangePercent: 100},
			{Type: engine.ActionPause, VariantID: "b", CurrentBudget: 100, NewBudget: 0.5, ChangePercent: -99.5},
		},
		Applied: &engine.ApplyOutcome{
			AppliedCount: 1,
			Results: []engine.ApplyActionResult{
				{VariantID: "hero", ActionType: engine.ActionIncrease, Success: true},
				{VariantID: "b", ActionType: engine.ActionPause, Success: false, Note: "platform timeout"},
			},
		},
	}
	msg := FormatRunSummary(res)
	assert.Contains(t, msg, "summer-sale")
	assert.Contains(t, msg, "thompson_sampling")
	assert.Contains(t, msg, "hero")
	assert.Contains(t, msg, "已应用 1/2")
	assert.Contains(t, msg, "platform timeout")
	assert.Contains(t, msg, "2026-08-28T12:00:00Z")
}

func TestFormatRunSummary_InfeasibleNoActions(t *testing.T) {
	res := engine.ReallocationResult{
		TotalBudget: 200,
		Algorithm:   "thompson_sampling",
		Feasible:    false,
		Timestamp:   time.Now(),
	}
	msg := FormatRunSummary(res)
	assert.Contains(t, msg, "约束不可满足")
	assert.Contains(t, msg, "无需调整")
	assert.Contains(t, msg, "活动: `-`")
}
