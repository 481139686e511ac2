package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Oracle.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if err := c.OracleLog.validate(); err != nil {
		return err
	}
	if err := c.Campaigns.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (o *OracleConfig) validate() error {
	if strings.TrimSpace(o.Allocator.BaseURL) == "" {
		return fmt.Errorf("oracle.allocator.base_url cannot be empty")
	}
	if o.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle.timeout_seconds must be > 0")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("oracle.max_retries must be >= 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.ChangeThresholdPct <= 0 {
		return fmt.Errorf("engine.change_threshold_pct must be > 0")
	}
	if e.MinBudgetPerVariant < 0 {
		return fmt.Errorf("engine.min_budget_per_variant must be >= 0")
	}
	if e.MaxBudgetPerVariant > 0 && e.MaxBudgetPerVariant < e.MinBudgetPerVariant {
		return fmt.Errorf("engine.max_budget_per_variant must be >= min_budget_per_variant")
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	switch l.Driver {
	case "memory":
		return nil
	case "sqlite":
		if strings.TrimSpace(l.Path) == "" {
			return fmt.Errorf("ledger.path cannot be empty when driver is sqlite")
		}
		return nil
	default:
		return fmt.Errorf("ledger.driver only supports 'memory' or 'sqlite', got %s", l.Driver)
	}
}

func (o *OracleLogConfig) validate() error {
	if o.Enabled && strings.TrimSpace(o.Path) == "" {
		return fmt.Errorf("oracle_log.path cannot be empty when enabled")
	}
	return nil
}

func (c *CampaignsConfig) validate() error {
	if c.SchedulerEnabled {
		if strings.TrimSpace(c.Source.BaseURL) == "" {
			return fmt.Errorf("campaigns.source.base_url required when scheduler is enabled")
		}
		if strings.TrimSpace(c.PresetsPath) == "" {
			return fmt.Errorf("campaigns.presets_path required when scheduler is enabled")
		}
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
