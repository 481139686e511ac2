package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = "/data/logs/rebal.log"
	defaultAppOracleLogPath = "/data/logs/rebal-oracle.log"
	defaultOracleTimeout    = 30
	defaultOracleRetries    = 2
	defaultAllocatorPath    = "/allocate"
	defaultForecasterPath   = "/forecast"
	defaultEngineMethod     = "thompson_sampling"
	defaultEngineThreshold  = 10.0
	defaultEngineMinBudget  = 1.0
	defaultLedgerDriver     = "sqlite"
	defaultLedgerPath       = "/data/db/reallocations.db"
	defaultOracleLogDB      = "/data/db/oracle_calls.db"
	defaultPresetsPath      = "configs/campaigns.yaml"
	defaultSourceTimeout    = 15
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Oracle.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.OracleLog.applyDefaults(keys)
	c.Campaigns.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.oracle_log_path", &a.OracleLog, defaultAppOracleLogPath),
	)
}

func (o *OracleConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "oracle.timeout_seconds",
			need:  func() bool { return o.TimeoutSeconds <= 0 },
			apply: func() { o.TimeoutSeconds = defaultOracleTimeout },
		},
		fieldDefault{
			key:   "oracle.max_retries",
			need:  func() bool { return o.MaxRetries <= 0 },
			apply: func() { o.MaxRetries = defaultOracleRetries },
		},
		stringFieldDefault("oracle.allocator.path", &o.Allocator.Path, defaultAllocatorPath),
		stringFieldDefault("oracle.forecaster.path", &o.Forecaster.Path, defaultForecasterPath),
	)
	// Forecaster 未单独配置时与 Allocator 同源
	if strings.TrimSpace(o.Forecaster.BaseURL) == "" {
		o.Forecaster.BaseURL = o.Allocator.BaseURL
		if o.Forecaster.APIKey == "" {
			o.Forecaster.APIKey = o.Allocator.APIKey
		}
	}
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.method", &e.Method, defaultEngineMethod),
		fieldDefault{
			key:   "engine.change_threshold_pct",
			need:  func() bool { return e.ChangeThresholdPct <= 0 },
			apply: func() { e.ChangeThresholdPct = defaultEngineThreshold },
		},
		fieldDefault{
			key:   "engine.min_budget_per_variant",
			need:  func() bool { return e.MinBudgetPerVariant <= 0 },
			apply: func() { e.MinBudgetPerVariant = defaultEngineMinBudget },
		},
	)
	if e.MaxBudgetPerVariant < 0 {
		e.MaxBudgetPerVariant = 0
	}
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.driver", &l.Driver, defaultLedgerDriver),
		stringFieldDefault("ledger.path", &l.Path, defaultLedgerPath),
	)
	l.Driver = strings.ToLower(strings.TrimSpace(l.Driver))
}

func (o *OracleLogConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("oracle_log.enabled", &o.Enabled, true),
		stringFieldDefault("oracle_log.path", &o.Path, defaultOracleLogDB),
	)
}

func (c *CampaignsConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("campaigns.presets_path", &c.PresetsPath, defaultPresetsPath),
		fieldDefault{
			key:   "campaigns.source.timeout_seconds",
			need:  func() bool { return c.Source.TimeoutSeconds <= 0 },
			apply: func() { c.Source.TimeoutSeconds = defaultSourceTimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
