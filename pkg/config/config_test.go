package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/snas/pkg/config"
)

func TestLoad_MissingPathReturnsZeroConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Config{}, cfg)
}

func TestLoad_MissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Config{}, cfg)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus:
  url: nats://nats.internal:4222
  admin_prefix: snas.admin
  user_prefix: snas.user
store:
  bucket: creds
  history: 8
socket:
  path: /tmp/snas.sock
accounts:
  default_groups: ["users"]
  reset_ttl: 1h
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://nats.internal:4222", cfg.Bus.URL)
	assert.Equal(t, "creds", cfg.Store.Bucket)
	assert.Equal(t, uint8(8), cfg.Store.History)
	assert.Equal(t, "/tmp/snas.sock", cfg.Socket.Path)
	assert.Equal(t, []string{"users"}, cfg.Accounts.DefaultGroups)
	assert.Equal(t, time.Hour, cfg.Accounts.ResetTTL)
}

func TestDefaults_FillsUnsetFieldsOnly(t *testing.T) {
	cfg := config.Config{Store: config.StoreConfig{Bucket: "custom"}}.Defaults()

	assert.Equal(t, config.DefaultBusURL, cfg.Bus.URL)
	assert.Equal(t, config.DefaultAdminPrefix, cfg.Bus.AdminPrefix)
	assert.Equal(t, config.DefaultUserPrefix, cfg.Bus.UserPrefix)
	assert.Equal(t, "custom", cfg.Store.Bucket, "explicitly set field must survive Defaults")
	assert.Equal(t, uint8(config.DefaultHistory), cfg.Store.History)
	assert.Equal(t, config.DefaultSocketPath, cfg.Socket.Path)
	assert.Equal(t, config.DefaultResetTTL, cfg.Accounts.ResetTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}
