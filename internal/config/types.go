package config

import "strings"

// Config 是 rebal 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Oracle    OracleConfig    `toml:"oracle"`
	Engine    EngineConfig    `toml:"engine"`
	Ledger    LedgerConfig    `toml:"ledger"`
	OracleLog OracleLogConfig `toml:"oracle_log"`
	Campaigns CampaignsConfig `toml:"campaigns"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	OracleLog  string `toml:"oracle_log_path"`
	OracleDump bool   `toml:"oracle_dump_payload"`
}

// OracleConfig 描述两个外部 Oracle 的访问方式。
type OracleConfig struct {
	TimeoutSeconds int            `toml:"timeout_seconds"`
	MaxRetries     int            `toml:"max_retries"`
	Allocator      EndpointConfig `toml:"allocator"`
	Forecaster     EndpointConfig `toml:"forecaster"`
}

// EndpointConfig 单个 Oracle HTTP 端点。Path 为空时使用各自默认路径。
type EndpointConfig struct {
	BaseURL string            `toml:"base_url"`
	Path    string            `toml:"path"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

// EngineConfig 约束与动作策略参数。MaxBudgetPerVariant 为 0 表示上方无界。
type EngineConfig struct {
	Method              string  `toml:"method"`
	ChangeThresholdPct  float64 `toml:"change_threshold_pct"`
	MinBudgetPerVariant float64 `toml:"min_budget_per_variant"`
	MaxBudgetPerVariant float64 `toml:"max_budget_per_variant"`
	AutoApply           bool    `toml:"auto_apply"`
}

// LedgerConfig 历史台账存储。Driver: "memory" | "sqlite"。
type LedgerConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// OracleLogConfig Oracle 调用审计库。
type OracleLogConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CampaignsConfig 定时再分配的活动预设与数据来源。
type CampaignsConfig struct {
	PresetsPath      string       `toml:"presets_path"`
	SchedulerEnabled bool         `toml:"scheduler_enabled"`
	Source           SourceConfig `toml:"source"`
}

// SourceConfig 营销平台表现数据 API。
type SourceConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
