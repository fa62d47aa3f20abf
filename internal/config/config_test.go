package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 29999, cfg.Port)
	assert.False(t, cfg.PortSet)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nickname: alice
port: 4000
log_level: debug
store:
  backend: redis
  redis_addr: cache:6379
`), 0o600))

	t.Setenv("GROUPCHAT_PORT", "5000")
	t.Setenv("GROUPCHAT_ADAPTER", "eth0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Nickname)
	assert.Equal(t, 5000, cfg.Port)
	assert.True(t, cfg.PortSet)
	assert.Equal(t, "eth0", cfg.Adapter)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "127.0.0.1:8080", cfg.Bridge.Addr)
}

func TestLoadPortSetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 29999\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 29999, cfg.Port)
	assert.True(t, cfg.PortSet)

	require.NoError(t, os.WriteFile(path, []byte("nickname: bob\n"), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.PortSet)
}

func TestLoadBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("GROUPCHAT_PORT", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"nickname", func(c *Config) { c.Nickname = "bob" }, true},
		{"long nickname", func(c *Config) { c.Nickname = "abcdefghijklmnopqrstuvwxyz0123456789" }, false},
		{"port zero", func(c *Config) { c.Port = 0 }, false},
		{"port high", func(c *Config) { c.Port = 70000 }, false},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"backend", func(c *Config) { c.Store.Backend = "mongo" }, false},
		{"bridge addr", func(c *Config) { c.Bridge.Addr = "localhost" }, false},
		{"bridge any host", func(c *Config) { c.Bridge.Addr = ":9000" }, true},
		{"redis without addr", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.RedisAddr = ""
		}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if tc.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestPassword(t *testing.T) {
	t.Setenv(EnvPassword, "")
	assert.Nil(t, Password())

	t.Setenv(EnvPassword, "s3cret")
	assert.Equal(t, []byte("s3cret"), Password())
}
