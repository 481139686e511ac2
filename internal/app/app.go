package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	rbcfg "rebal/internal/config"
	"rebal/internal/logger"
	"rebal/internal/scheduler"
	"rebal/internal/store/gormstore"
	"rebal/internal/store/oraclelog"
	httpapi "rebal/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务与定时调度。
type App struct {
	cfg        *rbcfg.Config
	server     *httpapi.Server
	runner     *scheduler.Runner
	ledgerDB   *gormstore.GormStore
	oracleLogs *oraclelog.Store
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *rbcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与（可选的）定时再分配，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.runner != nil {
		group.Go(func() error {
			return a.runner.Run(ctx)
		})
	}
	return group.Wait()
}

// Close 释放存储连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.ledgerDB != nil {
		if err := a.ledgerDB.Close(); err != nil {
			logger.Warnf("关闭台账存储失败: %v", err)
		}
	}
	if a.oracleLogs != nil {
		if err := a.oracleLogs.Close(); err != nil {
			logger.Warnf("关闭 oracle 审计库失败: %v", err)
		}
	}
}
