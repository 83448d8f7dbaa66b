package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadLayersBaseEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
db:
  host: basehost
  port: 5432
mq:
  url: amqp://base
pipeline:
  fan_out_enabled: true
`)
	writeConfig(t, dir, "staging.yaml", `
db:
  host: staginghost
`)

	cfg, err := Load("staging", dir)
	require.NoError(t, err)

	// Env overlay overrides only what it names.
	assert.Equal(t, "staginghost", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "amqp://base", cfg.MQ.URL)

	// Defaults fill the rest.
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.KillSwitch.RefreshInterval)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoadEnvVariablesWinOverFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
db:
  host: basehost
killswitch:
  global_kill: false
`)

	t.Setenv("DB_HOST", "envhost")
	t.Setenv("KILLSWITCH_GLOBAL", "true")
	t.Setenv("KILLSWITCH_TENANTS", "t1, t2")
	t.Setenv("PIPELINE_FAN_OUT_ENABLED", "false")

	cfg, err := Load("local", dir)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.DB.Host)
	assert.True(t, cfg.KillSwitch.GlobalKill)
	assert.Equal(t, []string{"t1", "t2"}, cfg.KillSwitch.TenantKillList)
	assert.False(t, cfg.Pipeline.FanOutEnabled)
}

func TestLoadSubstitutesPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
db:
  host: dbhost
  password: ${DB_SECRET}
provider:
  dsn: ${PROVIDER_TOKEN}
mq:
  url: amqp://${UNSET_PLACEHOLDER}@mq
`)
	writeConfig(t, dir, "secrets.env", `
# secrets for local runs
DB_SECRET=s3cr3t
`)
	t.Setenv("PROVIDER_TOKEN", "token-from-env")

	cfg, err := Load("local", dir)
	require.NoError(t, err)

	// secrets.env fills placeholders, then the process environment.
	assert.Equal(t, "s3cr3t", cfg.DB.Password)
	assert.Equal(t, "token-from-env", cfg.Provider.DSN)

	// Unknown placeholders stay as-is.
	assert.Equal(t, "amqp://${UNSET_PLACEHOLDER}@mq", cfg.MQ.URL)
}

func TestLoadSecretsWinOverProcessEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
db:
  password: ${DB_SECRET}
`)
	writeConfig(t, dir, "secrets.env", `DB_SECRET=from-file`)
	t.Setenv("DB_SECRET", "from-process")

	cfg, err := Load("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DB.Password)
}

func TestLoadMissingBaseFails(t *testing.T) {
	_, err := Load("local", t.TempDir())
	require.Error(t, err)
}
