package app

import (
	"context"
	"fmt"
	"time"

	"rebal/internal/applier"
	rbcfg "rebal/internal/config"
	"rebal/internal/config/loader"
	"rebal/internal/engine"
	"rebal/internal/history"
	"rebal/internal/logger"
	"rebal/internal/notifier"
	"rebal/internal/oracle"
	"rebal/internal/scheduler"
	"rebal/internal/service"
	"rebal/internal/source"
	"rebal/internal/store/gormstore"
	"rebal/internal/store/oraclelog"
	httpapi "rebal/internal/transport/http"
)

// AppBuilder 把各组件的构造函数收拢为可替换的字段，便于测试时注入假实现。
type AppBuilder struct {
	cfg *rbcfg.Config

	newLedgerStore func(path string) (*gormstore.GormStore, error)
	newOracleLogs  func(path string) (*oraclelog.Store, error)
	newAllocator   func(cfg oracle.ClientConfig, path string) oracle.Allocator
	newForecaster  func(cfg oracle.ClientConfig, path string) oracle.Forecaster
	newApplier     func() applier.Applier
	newServer      func(cfg httpapi.ServerConfig) (*httpapi.Server, error)
}

// AppBuilderOption 用于覆盖 AppBuilder 的默认构造函数。
type AppBuilderOption func(*AppBuilder)

// NewAppBuilder 创建使用默认构造函数的 builder。
func NewAppBuilder(cfg *rbcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		newLedgerStore: gormstore.NewGormStore,
		newOracleLogs:  oraclelog.NewStore,
		newAllocator: func(cfg oracle.ClientConfig, path string) oracle.Allocator {
			return oracle.NewHTTPAllocator(cfg, path)
		},
		newForecaster: func(cfg oracle.ClientConfig, path string) oracle.Forecaster {
			return oracle.NewHTTPForecaster(cfg, path)
		},
		newApplier: func() applier.Applier { return applier.NewNoop() },
		newServer:  httpapi.NewServer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 按配置装配完整的 App。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	app := &App{cfg: cfg}

	if cfg.OracleLog.Enabled {
		store, err := b.newOracleLogs(cfg.OracleLog.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化 oracle 审计库失败: %w", err)
		}
		app.oracleLogs = store
	}

	var recorder oracle.CallRecorder
	if app.oracleLogs != nil {
		logs := app.oracleLogs
		recorder = func(ctx context.Context, call oracle.CallLog) {
			err := logs.Append(ctx, oraclelog.Record{
				Timestamp:  call.Timestamp,
				Oracle:     call.Oracle,
				URL:        call.URL,
				CampaignID: call.CampaignID,
				Request:    call.Request,
				Response:   call.Response,
				Error:      call.Error,
				DurationMs: call.DurationMs,
			})
			if err != nil {
				logger.Warnf("写入 oracle 审计日志失败: %v", err)
			}
		}
	}

	timeout := time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second
	allocator := b.newAllocator(oracle.ClientConfig{
		BaseURL:      cfg.Oracle.Allocator.BaseURL,
		APIKey:       cfg.Oracle.Allocator.APIKey,
		Timeout:      timeout,
		MaxRetries:   cfg.Oracle.MaxRetries,
		ExtraHeaders: cfg.Oracle.Allocator.Headers,
		Recorder:     recorder,
	}, cfg.Oracle.Allocator.Path)
	forecaster := b.newForecaster(oracle.ClientConfig{
		BaseURL:      cfg.Oracle.Forecaster.BaseURL,
		APIKey:       cfg.Oracle.Forecaster.APIKey,
		Timeout:      timeout,
		MaxRetries:   cfg.Oracle.MaxRetries,
		ExtraHeaders: cfg.Oracle.Forecaster.Headers,
		Recorder:     recorder,
	}, cfg.Oracle.Forecaster.Path)

	var ledger history.Ledger
	switch cfg.Ledger.Driver {
	case "memory":
		ledger = history.NewMemoryLedger()
	case "sqlite", "":
		store, err := b.newLedgerStore(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化台账存储失败: %w", err)
		}
		app.ledgerDB = store
		ledger = store
	default:
		return nil, fmt.Errorf("未知的台账驱动: %s", cfg.Ledger.Driver)
	}

	bounds := engine.BoundSet{
		Default: engine.Bound{Min: cfg.Engine.MinBudgetPerVariant},
	}
	if cfg.Engine.MaxBudgetPerVariant > 0 {
		max := cfg.Engine.MaxBudgetPerVariant
		bounds.Default.Max = &max
	}

	orch := service.NewOrchestrator(allocator, forecaster, b.newApplier(), ledger, service.Config{
		OracleTimeout: timeout,
		DefaultMethod: cfg.Engine.Method,
		Bounds:        bounds,
		Policy: engine.PolicyConfig{
			MinBudget:          cfg.Engine.MinBudgetPerVariant,
			ChangeThresholdPct: cfg.Engine.ChangeThresholdPct,
		},
	})

	server, err := b.newServer(httpapi.ServerConfig{
		Addr:         cfg.App.HTTPAddr,
		Orchestrator: orch,
		OracleLogs:   app.oracleLogs,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 http server 失败: %w", err)
	}
	app.server = server

	campaignCount := 0
	if cfg.Campaigns.SchedulerEnabled {
		presets, err := loader.NewCampaignLoader(cfg.Campaigns.PresetsPath)
		if err != nil {
			return nil, fmt.Errorf("加载活动预设失败: %w", err)
		}
		campaignCount = len(presets.Snapshot().Campaigns)
		src := source.NewHTTPSource(source.Config{
			BaseURL: cfg.Campaigns.Source.BaseURL,
			APIKey:  cfg.Campaigns.Source.APIKey,
			Timeout: time.Duration(cfg.Campaigns.Source.TimeoutSeconds) * time.Second,
		})
		var tg notifier.TextNotifier
		if cfg.Notify.Telegram.Enabled {
			tg = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		}
		app.runner = scheduler.NewRunner(orch, src, presets, tg, cfg.Engine.AutoApply)
	}

	app.Summary = newStartupSummary(cfg, campaignCount)
	return app, nil
}
