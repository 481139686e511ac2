package history

import (
	"context"
	"sync"

	"rebal/internal/engine"
)

// MemoryLedger 进程内台账：追加式切片 + 读写锁，按插入顺序返回。
// 生命周期跟随进程，适合开发环境与单测。
type MemoryLedger struct {
	mu   sync.RWMutex
	runs []engine.ReallocationResult
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, res engine.ReallocationResult) error {
	m.mu.Lock()
	m.runs = append(m.runs, res)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) List(_ context.Context, q Query) ([]engine.ReallocationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]engine.ReallocationResult, 0, len(m.runs))
	for _, r := range m.runs {
		if q.CampaignID != "" && r.CampaignID != q.CampaignID {
			continue
		}
		matched = append(matched, r)
	}
	return paginate(matched, q.Limit, q.Offset), nil
}

// Len 返回全部记录数（含无 campaign_id 的记录）。
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

func paginate(runs []engine.ReallocationResult, limit, offset int) []engine.ReallocationResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(runs) {
		return []engine.ReallocationResult{}
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	out := make([]engine.ReallocationResult, len(runs))
	copy(out, runs)
	return out
}

var _ Ledger = (*MemoryLedger)(nil)
