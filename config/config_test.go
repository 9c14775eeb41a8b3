package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "data/model.json", cfg.Model.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Audit.Path)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
service:
  version: 2.1.0
http:
  port: 9000
  timeout: 5s
log:
  level: debug
  file: /var/log/penguin.log
model:
  path: /models/model.json
  info_path: /models/model_info.json
  wait_timeout: 2m
audit:
  path: /data/audit.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", cfg.Service.Version)
	assert.Equal(t, "Penguin Species Classification API", cfg.Service.Name)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Model.WaitTimeout)
	assert.Equal(t, "/data/audit.db", cfg.Audit.Path)
	assert.Equal(t, 1024, cfg.Audit.Buffer)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PENGUIN_MODEL_PATH", "/env/model.json")
	t.Setenv("PENGUIN_MODEL_INFO_PATH", "/env/model_info.json")
	t.Setenv("PORT", "7070")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "model:\n  path: /file/model.json\n"))
	require.NoError(t, err)
	assert.Equal(t, "/env/model.json", cfg.Model.Path)
	assert.Equal(t, "/env/model_info.json", cfg.Model.InfoPath)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http:\n  port: 70000\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "model:\n  wait_timeout: -1s\n"))
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.Error(t, err)
}
