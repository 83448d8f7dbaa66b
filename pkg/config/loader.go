package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load 加载配置，支持多环境
// env: local, production, 或其他环境名称
// configDir: 配置文件目录，默认为 "config"
func Load(env string, configDir string) (*Config, error) {
	if configDir == "" {
		configDir = "config"
	}

	// 加载 secrets.env（如果存在），用于替换 ${VAR} 占位符
	secrets := map[string]string{}
	secretsFile := filepath.Join(configDir, "secrets.env")
	if data, err := os.ReadFile(secretsFile); err == nil {
		secrets = parseEnvFile(data)
	}

	var cfg Config

	// 1. 加载 base.yaml
	if err := loadYAMLInto(filepath.Join(configDir, "base.yaml"), &cfg, secrets); err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	// 2. 加载环境特定配置（如果存在，覆盖基础配置）
	// yaml.Unmarshal merges into the already-populated struct, so the env
	// overlay only needs the keys it overrides.
	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, fmt.Sprintf("%s.yaml", env))
		if _, err := os.Stat(envFile); err == nil {
			if err := loadYAMLInto(envFile, &cfg, secrets); err != nil {
				return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
		}
	}

	// 3. 用系统环境变量覆盖（优先级最高）
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideKillSwitchFromEnv(&cfg.KillSwitch)
	OverridePipelineFromEnv(&cfg.Pipeline)
	OverrideProviderFromEnv(&cfg.Provider)

	cfg.ApplyDefaults()
	return &cfg, nil
}

func loadYAMLInto(path string, cfg *Config, secrets map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(substitutePlaceholders(data, secrets), cfg)
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substitutePlaceholders 替换配置中的环境变量占位符 ${VAR_NAME}
// secrets.env 优先于系统环境变量；未定义的占位符原样保留
func substitutePlaceholders(data []byte, secrets map[string]string) []byte {
	if !strings.Contains(string(data), "${") {
		return data
	}
	return placeholderPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(placeholderPattern.FindSubmatch(match)[1])
		if v, ok := secrets[key]; ok {
			return []byte(v)
		}
		if v, ok := os.LookupEnv(key); ok {
			return []byte(v)
		}
		return match
	})
}

// parseEnvFile 解析 KEY=VALUE 格式的 .env 文件
func parseEnvFile(data []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return out
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
