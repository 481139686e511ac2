package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"rebal/internal/engine"
	"rebal/internal/logger"
)

// CampaignPreset 描述单个活动的定时再分配预设。
type CampaignPreset struct {
	CampaignID string `mapstructure:"-"`
	Enabled    bool   `mapstructure:"enabled"`
	// Interval 形如 "15m"/"4h"/"1d"，空值由上层给默认。
	Interval string `mapstructure:"interval"`
	Method   string `mapstructure:"method"`
	// AutoApply 未写时为 nil，回落到 engine 配置的全局默认。
	AutoApply *bool        `mapstructure:"auto_apply"`
	Bounds    BoundsPreset `mapstructure:"bounds"`
}

// BoundsPreset 约束预设：全局默认 + 按变体覆盖。max 为 0 表示无上界。
type BoundsPreset struct {
	MinBudget  float64               `mapstructure:"min_budget"`
	MaxBudget  float64               `mapstructure:"max_budget"`
	PerVariant map[string]BoundEntry `mapstructure:"per_variant"`
}

type BoundEntry struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// BoundSet 将预设转换为引擎约束。p 为 nil 安全。
func (b BoundsPreset) BoundSet() engine.BoundSet {
	set := engine.BoundSet{Default: engine.Bound{Min: b.MinBudget}}
	if b.MaxBudget > 0 {
		max := b.MaxBudget
		set.Default.Max = &max
	}
	if len(b.PerVariant) > 0 {
		set.PerVariant = make(map[string]engine.Bound, len(b.PerVariant))
		for id, e := range b.PerVariant {
			bd := engine.Bound{Min: e.Min}
			if e.Max > 0 {
				max := e.Max
				bd.Max = &max
			}
			set.PerVariant[id] = bd
		}
	}
	return set
}

// FileConfig 是完整的活动预设文件结构。
type FileConfig struct {
	Campaigns map[string]CampaignPreset `mapstructure:"campaigns"`
}

// Snapshot 对外暴露的只读快照。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Campaigns map[string]CampaignPreset
}

// Sorted 按 campaign_id 升序返回预设，供确定性遍历。
func (s Snapshot) Sorted() []CampaignPreset {
	out := make([]CampaignPreset, 0, len(s.Campaigns))
	for _, p := range s.Campaigns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

// ChangeListener 在预设变更时被调用。
type ChangeListener func(Snapshot)

// CampaignLoader 从 YAML 文件加载活动预设，并监听热更新。
type CampaignLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewCampaignLoader 读取预设文件并开始监听 FS 事件。
func NewCampaignLoader(path string) (*CampaignLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("campaign loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read campaign presets failed: %w", err)
	}
	loader := &CampaignLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("campaign presets reload failed (%s): %v", evt.Name, err)
			return
		}
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前预设快照（深拷贝）。
func (l *CampaignLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Preset 按 campaign_id 查找预设。
func (l *CampaignLoader) Preset(campaignID string) (CampaignPreset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.snapshot.Campaigns[campaignID]
	return p, ok
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *CampaignLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("campaign listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *CampaignLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("campaign listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *CampaignLoader) reload() error {
	var fileCfg FileConfig
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("parse campaign presets failed: %w", err)
	}
	normalized := make(map[string]CampaignPreset, len(fileCfg.Campaigns))
	for id, preset := range fileCfg.Campaigns {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		normalized[id] = normalizePreset(id, preset)
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:   l.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Campaigns: normalized,
	}
	l.mu.Unlock()
	logger.Infof("campaign loader reloaded %d presets from %s", len(normalized), filepath.Base(l.path))
	return nil
}

func normalizePreset(id string, p CampaignPreset) CampaignPreset {
	p.CampaignID = id
	p.Interval = strings.ToLower(strings.TrimSpace(p.Interval))
	p.Method = strings.TrimSpace(p.Method)
	if p.Bounds.MinBudget < 0 {
		p.Bounds.MinBudget = 0
	}
	if p.Bounds.MaxBudget < 0 {
		p.Bounds.MaxBudget = 0
	}
	return p
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Campaigns: make(map[string]CampaignPreset, len(src.Campaigns)),
	}
	for id, p := range src.Campaigns {
		dst.Campaigns[id] = p
	}
	return dst
}
