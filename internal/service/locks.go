package service

import "sync"

// campaignLocks 提供按 campaign_id 的互斥：同一活动的运行串行，
// 不同活动互不阻塞。锁对象按需创建后常驻（活动数量有限）。
type campaignLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCampaignLocks() *campaignLocks {
	return &campaignLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *campaignLocks) lock(campaignID string) *sync.Mutex {
	c.mu.Lock()
	m, ok := c.locks[campaignID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[campaignID] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m
}
