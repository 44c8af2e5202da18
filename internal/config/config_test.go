package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
backend:
  base_url: http://api.internal:8080
console:
  timezone: Asia/Tokyo
activity:
  driver: postgres
  name: console
  user: ops
  password: pw
`), 0o644))

	t.Setenv("ROCKET_CONSOLE_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://api.internal:8080", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/auth/refresh", cfg.Backend.RefreshPath)
	assert.Equal(t, "Asia/Tokyo", cfg.Console.Location().String())
	assert.Equal(t, 10, cfg.Console.DefaultPageSize)
	assert.Equal(t, "postgres://ops:pw@localhost:5432/console?sslmode=disable", cfg.Activity.DSN())
}

func TestLoad_RejectsBadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("console:\n  timezone: Mars/Olympus\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "console.timezone")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestActivityDSN_SQLite(t *testing.T) {
	a := ActivityConfig{Driver: "sqlite", Path: "./data", Name: "console"}
	assert.Equal(t, "./data/console.db", a.DSN())
}
