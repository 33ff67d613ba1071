package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("valid config loads", func(t *testing.T) {
		path := writeTempConfig(t, `
dialect: pgx
dsn: postgres://localhost/versa
catalog: catalog.yaml
batch_size: 200
live_pointer: true
procedures: true
slow_query: 250ms
pool:
  max_open: 20
  max_lifetime: 1h
log:
  level: debug
  format: json
gen:
  package: entities
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Dialect)
		assert.Equal(t, "postgres", cfg.Driver)
		assert.Equal(t, 200, cfg.BatchSize)
		assert.True(t, cfg.LivePointer)
		assert.True(t, cfg.Procedures)
		assert.False(t, cfg.Projections)
		assert.Equal(t, 250*time.Millisecond, cfg.SlowQuery)
		assert.Equal(t, PoolConfig{MaxOpen: 20, MaxLifetime: time.Hour}, cfg.Pool)
		assert.Equal(t, "entities", cfg.Gen.Package)
		assert.Equal(t, "entities", cfg.Gen.Output)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(writeTempConfig(t, "dialect: sqlserver\ndsn: sqlserver://sa@localhost\ncatalog: c.yaml\n"))
		require.NoError(t, err)
		assert.Equal(t, "sqlserver", cfg.Driver)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, "model", cfg.Gen.Package)
	})

	for name, contents := range map[string]string{
		"unsupported dialect": "dialect: db2\ndsn: x\ncatalog: c.yaml\n",
		"missing dsn":         "dialect: mysql\ncatalog: c.yaml\n",
		"missing catalog":     "dialect: mysql\ndsn: x\n",
		"negative batch size": "dialect: mysql\ndsn: x\ncatalog: c.yaml\nbatch_size: -1\n",
		"unknown log level":   "dialect: mysql\ndsn: x\ncatalog: c.yaml\nlog: {level: loud}\n",
		"unknown log format":  "dialect: mysql\ndsn: x\ncatalog: c.yaml\nlog: {format: xml}\n",
		"invalid yaml":        "dialect: [\n",
		"invalid slow query":  "dialect: mysql\ndsn: x\ncatalog: c.yaml\nslow_query: soon\n",
		"negative slow query": "dialect: mysql\ndsn: x\ncatalog: c.yaml\nslow_query: -1s\n",
		"negative pool size":  "dialect: mysql\ndsn: x\ncatalog: c.yaml\npool: {max_idle: -2}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, contents))
			assert.Error(t, err)
		})
	}

	t.Run("file not found", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Driver)
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	log := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", "key", "c1@1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"c1@1"`)
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "versa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}
