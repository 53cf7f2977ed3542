package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
server:
  port: 9090
database:
  driver: sqlite-pure
  path: ./data/processhub.db
engine:
  task_lock_ttl: 5s
notification:
  webhook_url: http://hooks.local/steps
`

func TestLoadWithDefaultsAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load("test", path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Engine.TaskLockTTL)
	assert.Equal(t, 10*time.Minute, cfg.Engine.UserCacheTTL)
	assert.Equal(t, uint64(3), cfg.Notification.MaxRetries)
	assert.Equal(t, "./data/processhub.db", cfg.Database.GetDSN())
	assert.Same(t, cfg, Get())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("test", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "hub", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=hub sslmode=disable", c.GetDSN())
}
