package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetricsConfig exposes the prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// PipelineConfig controls the stage orchestrator.
type PipelineConfig struct {
	// FanOutEnabled gates job fan-out: when false mailbox_sync still runs
	// its read-only pass for visibility but enqueues nothing and commits
	// no cursor.
	FanOutEnabled bool `yaml:"fan_out_enabled"`
	MaxAttempts   int  `yaml:"max_attempts"`
	// BackoffBase is the first retry delay; it doubles per attempt up to
	// BackoffCap, with jitter.
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
	// DLQPayloadCap bounds the size of payload clones stored in the DLQ.
	DLQPayloadCap int `yaml:"dlq_payload_cap"`
	// DLQReplayInterval, when non-zero, runs an in-process replay sweep
	// over unreplayed DLQ items on that interval. Zero leaves replay to
	// external tooling.
	DLQReplayInterval time.Duration `yaml:"dlq_replay_interval"`
}

// KillSwitchConfig carries the env-level kill state and cache refresh.
type KillSwitchConfig struct {
	// GlobalKill disables writeback and labeling for every tenant. Highest
	// precedence; nothing in the store can re-enable it.
	GlobalKill bool `yaml:"global_kill"`
	// TenantKillList disables all controls for the listed tenants.
	TenantKillList []string `yaml:"tenant_kill_list"`
	// RefreshInterval is both the store poll interval and the staleness
	// bound beyond which cached global state fails closed.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ProviderConfig selects the registered mail provider implementation.
type ProviderConfig struct {
	Name string `yaml:"name"`
	DSN  string `yaml:"dsn"`
}

// TriageConfig configures the rules engine.
type TriageConfig struct {
	// OperatorAddresses is the roster of human operator senders. An empty
	// roster means "unconfigured" and makes sender matching ambiguous.
	OperatorAddresses []string `yaml:"operator_addresses"`
}

// Config 服务配置
type Config struct {
	DB         DBConfig         `yaml:"db"`
	MQ         MQConfig         `yaml:"mq"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	KillSwitch KillSwitchConfig `yaml:"killswitch"`
	Provider   ProviderConfig   `yaml:"provider"`
	Triage     TriageConfig     `yaml:"triage"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideKillSwitchFromEnv applies the env-level kill switches. These sit
// above everything the store says, so an operator export is enough to stop
// writeback fleet-wide.
func OverrideKillSwitchFromEnv(cfg *KillSwitchConfig) {
	if v := os.Getenv("KILLSWITCH_GLOBAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.GlobalKill = b
		}
	}
	if v := os.Getenv("KILLSWITCH_TENANTS"); v != "" {
		var tenants []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenants = append(tenants, t)
			}
		}
		cfg.TenantKillList = tenants
	}
}

// OverrideProviderFromEnv 从环境变量覆盖邮件提供方配置
func OverrideProviderFromEnv(cfg *ProviderConfig) {
	if name := os.Getenv("PROVIDER_NAME"); name != "" {
		cfg.Name = name
	}
	if dsn := os.Getenv("PROVIDER_DSN"); dsn != "" {
		cfg.DSN = dsn
	}
}

// OverridePipelineFromEnv 从环境变量覆盖流水线配置
func OverridePipelineFromEnv(cfg *PipelineConfig) {
	if v := os.Getenv("PIPELINE_FAN_OUT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FanOutEnabled = b
		}
	}
	if v := os.Getenv("PIPELINE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
}

// ApplyDefaults fills zero values that yaml may leave unset.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.MaxAttempts == 0 {
		c.Pipeline.MaxAttempts = 5
	}
	if c.Pipeline.BackoffBase == 0 {
		c.Pipeline.BackoffBase = 2 * time.Second
	}
	if c.Pipeline.BackoffCap == 0 {
		c.Pipeline.BackoffCap = 2 * time.Minute
	}
	if c.Pipeline.DLQPayloadCap == 0 {
		c.Pipeline.DLQPayloadCap = 64 * 1024
	}
	if c.KillSwitch.RefreshInterval == 0 {
		c.KillSwitch.RefreshInterval = 30 * time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
}
