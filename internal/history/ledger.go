// Package history keeps the append-only record of reallocation runs.
package history

import (
	"context"

	"rebal/internal/engine"
)

// 中文说明：
// 台账只追加、不修改、不删除；按 campaign_id 过滤查询。
// 缺少 campaign_id 的记录会保留，但不会出现在过滤查询里（这是约定行为）。

// Query 台账查询条件。CampaignID 为空表示不过滤。
type Query struct {
	CampaignID string
	Limit      int
	Offset     int
}

// Ledger 历史台账。默认内存实现，可换成持久化存储（见 store/gormstore）。
type Ledger interface {
	Append(ctx context.Context, res engine.ReallocationResult) error
	List(ctx context.Context, q Query) ([]engine.ReallocationResult, error)
}
