// Package applier defines the collaborator that pushes accepted actions to
// the ad platform.
package applier

import (
	"context"
	"fmt"

	"rebal/internal/engine"
	"rebal/internal/logger"
)

// 中文说明：
// Apply 的契约：逐条动作、彼此独立、失败不回滚兄弟动作。
// 引擎本身只产出与记录动作；真正的投放平台写操作由实现方承担。

// Applier 单条动作的应用方。
type Applier interface {
	Apply(ctx context.Context, campaignID string, action engine.Action) engine.ApplyActionResult
}

// Noop 参考实现：不触达任何外部平台，只记录意图并报告成功。
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Apply(_ context.Context, campaignID string, action engine.Action) engine.ApplyActionResult {
	logger.Infof("[apply] noop campaign=%s variant=%s action=%s new_budget=%.2f",
		campaignID, action.VariantID, action.Type, action.NewBudget)
	return engine.ApplyActionResult{
		VariantID:  action.VariantID,
		ActionType: action.Type,
		Success:    true,
		Note:       fmt.Sprintf("recorded %s (no platform integration configured)", action.Type),
	}
}

var _ Applier = (*Noop)(nil)
