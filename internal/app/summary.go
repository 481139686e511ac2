package app

import (
	"fmt"
	"strings"

	rbcfg "rebal/internal/config"
)

// StartupSummary 启动时打印一次的配置摘要。
type StartupSummary struct {
	Env           string
	HTTPAddr      string
	AllocatorURL  string
	ForecasterURL string
	Method        string
	LedgerDriver  string
	LedgerPath    string
	OracleLogPath string
	AutoApply     bool
	SchedulerOn   bool
	CampaignCount int
	TelegramOn    bool
}

func newStartupSummary(cfg *rbcfg.Config, campaignCount int) *StartupSummary {
	s := &StartupSummary{
		Env:           cfg.App.Env,
		HTTPAddr:      cfg.App.HTTPAddr,
		AllocatorURL:  strings.TrimRight(cfg.Oracle.Allocator.BaseURL, "/") + cfg.Oracle.Allocator.Path,
		ForecasterURL: strings.TrimRight(cfg.Oracle.Forecaster.BaseURL, "/") + cfg.Oracle.Forecaster.Path,
		Method:        cfg.Engine.Method,
		LedgerDriver:  cfg.Ledger.Driver,
		LedgerPath:    cfg.Ledger.Path,
		AutoApply:     cfg.Engine.AutoApply,
		SchedulerOn:   cfg.Campaigns.SchedulerEnabled,
		CampaignCount: campaignCount,
		TelegramOn:    cfg.Notify.Telegram.Enabled,
	}
	if cfg.OracleLog.Enabled {
		s.OracleLogPath = cfg.OracleLog.Path
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVICE)]")
	fmt.Printf("  环境: %s\n", orDash(s.Env))
	fmt.Printf("  HTTP 监听: %s\n", s.HTTPAddr)
	fmt.Println()

	fmt.Println("[ORACLE]")
	fmt.Printf("  Allocator: %s\n", s.AllocatorURL)
	fmt.Printf("  Forecaster: %s\n", s.ForecasterURL)
	fmt.Printf("  默认算法: %s\n", s.Method)
	if s.OracleLogPath != "" {
		fmt.Printf("  审计库: %s\n", s.OracleLogPath)
	} else {
		fmt.Println("  审计库: (关闭)")
	}
	fmt.Println()

	fmt.Println("[台账 (LEDGER)]")
	fmt.Printf("  驱动: %s\n", s.LedgerDriver)
	if s.LedgerDriver != "memory" {
		fmt.Printf("  路径: %s\n", s.LedgerPath)
	}
	fmt.Println()

	fmt.Println("[定时再分配 (SCHEDULER)]")
	if s.SchedulerOn {
		fmt.Printf("  已启用, 活动数: %d\n", s.CampaignCount)
		fmt.Printf("  自动应用: %v\n", s.AutoApply)
	} else {
		fmt.Println("  (未启用)")
	}
	fmt.Printf("  Telegram 通知: %v\n", s.TelegramOn)

	fmt.Println(strings.Repeat("=", 80))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
