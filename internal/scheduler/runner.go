package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"rebal/internal/config/loader"
	"rebal/internal/engine"
	"rebal/internal/logger"
	"rebal/internal/notifier"
	"rebal/internal/service"
	"rebal/internal/source"
)

// 中文说明：
// Runner 驱动定时再分配：每个启用的活动预设各占一个调度循环，
// 到点从 CampaignSource 拉取表现快照，交给 Orchestrator 执行。
// 单次运行失败只记日志，不影响其它活动和后续轮次。
// 预设参数（约束/auto_apply）在每次运行时从 loader 现取，吃到热更新；
// 活动集合与间隔在启动时固化，增删活动需要重启。

// DefaultInterval 预设未写 interval 时的调度周期。
const DefaultInterval = 4 * time.Hour

type Runner struct {
	orch      *service.Orchestrator
	src       source.CampaignSource
	presets   *loader.CampaignLoader
	tg        notifier.TextNotifier
	autoApply bool
}

// NewRunner 构造调度器。autoApply 是预设未显式声明 auto_apply 时的全局默认。
func NewRunner(orch *service.Orchestrator, src source.CampaignSource, presets *loader.CampaignLoader, tg notifier.TextNotifier, autoApply bool) *Runner {
	if tg == nil {
		tg = notifier.Noop{}
	}
	return &Runner{orch: orch, src: src, presets: presets, tg: tg, autoApply: autoApply}
}

// effectiveAutoApply 预设覆盖优先，否则用全局默认。
func effectiveAutoApply(preset loader.CampaignPreset, fallback bool) bool {
	if preset.AutoApply != nil {
		return *preset.AutoApply
	}
	return fallback
}

// Run 阻塞运行所有活动的调度循环，直到 ctx 取消。
func (r *Runner) Run(ctx context.Context) error {
	snap := r.presets.Snapshot()
	eg, ctx := errgroup.WithContext(ctx)
	started := 0
	for _, preset := range snap.Sorted() {
		if !preset.Enabled {
			continue
		}
		interval, ok := ParseIntervalDuration(preset.Interval)
		if !ok {
			if preset.Interval != "" {
				logger.Warnf("[scheduler] 活动 %s 的 interval=%q 无效，使用默认 %s",
					preset.CampaignID, preset.Interval, DefaultInterval)
			}
			interval = DefaultInterval
		}
		campaignID := preset.CampaignID
		sched := NewAlignedScheduler(ctx, interval, 0)
		eg.Go(func() error {
			sched.Start(func() { r.runOnce(ctx, campaignID) })
			return nil
		})
		started++
	}
	logger.Infof("[scheduler] 启动 %d 个活动调度循环", started)
	if started == 0 {
		<-ctx.Done()
		return nil
	}
	return eg.Wait()
}

// runOnce 执行单个活动的一轮再分配。
func (r *Runner) runOnce(ctx context.Context, campaignID string) {
	preset, ok := r.presets.Preset(campaignID)
	if !ok || !preset.Enabled {
		logger.Infof("[scheduler] 活动 %s 预设已移除或停用，跳过", campaignID)
		return
	}
	snap, err := r.src.Fetch(ctx, campaignID)
	if err != nil {
		logger.Errorf("[scheduler] 拉取活动 %s 失败: %v", campaignID, err)
		return
	}
	if len(snap.Variants) == 0 || snap.TotalBudget <= 0 {
		logger.Warnf("[scheduler] 活动 %s 快照为空 (variants=%d total=%.2f)，跳过",
			campaignID, len(snap.Variants), snap.TotalBudget)
		return
	}
	bounds := preset.Bounds.BoundSet()
	res, err := r.orch.Reallocate(ctx, service.ReallocateRequest{
		CampaignData: engine.CampaignData{CampaignID: campaignID, Variants: snap.Variants},
		TotalBudget:  snap.TotalBudget,
		Method:       preset.Method,
		AutoApply:    effectiveAutoApply(preset, r.autoApply),
		Bounds:       &bounds,
	})
	if err != nil {
		logger.Errorf("[scheduler] 活动 %s 再分配失败: %v", campaignID, err)
		return
	}
	if err := r.tg.SendText(notifier.FormatRunSummary(res)); err != nil {
		logger.Warnf("[scheduler] 活动 %s 通知推送失败: %v", campaignID, err)
	}
}
