package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(1), cfg.Context.FirstTargetID)
	assert.Equal(t, 5*time.Second, cfg.Host.InvokeTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "hostbridge.toml", `
[context]
first_target_id = 100
auto_flush = 32

[host]
listen = "127.0.0.1:7400"
invoke_timeout = "750ms"

[log]
level = "debug"
development = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Empty(t, cfg.Script)
	assert.Equal(t, int64(100), cfg.Context.FirstTargetID)
	assert.Equal(t, 32, cfg.Context.AutoFlush)
	assert.Equal(t, 256, cfg.Context.WorkerQueue)
	assert.Equal(t, "127.0.0.1:7400", cfg.Host.Listen)
	assert.Equal(t, 750*time.Millisecond, cfg.Host.InvokeTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "hostbridge", cfg.UI.Title)
}

func TestLoadTOMLScriptIsTrimmed(t *testing.T) {
	cfg, err := Load(writeFile(t, "hostbridge.toml", "script = \" scripts/main.js \"\n"))
	require.NoError(t, err)
	assert.Equal(t, "scripts/main.js", cfg.Script)
}

func TestLoadRejectsScriptWithListen(t *testing.T) {
	_, err := Load(writeFile(t, "hostbridge.toml", "script = \"main.js\"\n\n[host]\nlisten = \"127.0.0.1:7400\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script cannot run")
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "hostbridge.yaml", `
context:
  delivery_buffer: 8
host:
  dial: ws://127.0.0.1:7400/
  invoke_timeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Context.DeliveryBuffer)
	assert.Equal(t, "ws://127.0.0.1:7400/", cfg.Host.Dial)
	assert.Equal(t, 2*time.Second, cfg.Host.InvokeTimeout)
	assert.Equal(t, int64(1), cfg.Context.FirstTargetID)
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "[context]\nfirst_id = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context.first_id")

	_, err = Load(writeFile(t, "bad.yaml", "context:\n  first_id: 3\n"))
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "[host]\ninvoke_timeout = \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host.invoke_timeout")
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "cfg.json", "{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"reserved id", func(c *Config) { c.Context.FirstTargetID = -1 }, "reserved"},
		{"negative flush", func(c *Config) { c.Context.AutoFlush = -1 }, "auto_flush"},
		{"zero worker queue", func(c *Config) { c.Context.WorkerQueue = 0 }, "worker_queue"},
		{"negative buffer", func(c *Config) { c.Context.DeliveryBuffer = -3 }, "delivery_buffer"},
		{"listen and dial", func(c *Config) {
			c.Host.Listen = ":7400"
			c.Host.Dial = "ws://h/"
		}, "mutually exclusive"},
		{"dial scheme", func(c *Config) { c.Host.Dial = "http://h/" }, "ws://"},
		{"timeout", func(c *Config) { c.Host.InvokeTimeout = 0 }, "invoke_timeout"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"ui over dial", func(c *Config) {
			c.UI.Enabled = true
			c.Host.Dial = "ws://h/"
		}, "ui requires"},
		{"ui over listen", func(c *Config) {
			c.UI.Enabled = true
			c.Host.Listen = ":7400"
		}, "ui requires"},
		{"script over listen", func(c *Config) {
			c.Script = "main.js"
			c.Host.Listen = ":7400"
		}, "script cannot run"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoggerBuilds(t *testing.T) {
	l, err := LogConfig{Level: "warn"}.Logger(false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))

	l, err = LogConfig{Level: "debug", Development: true}.Logger(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = LogConfig{Level: "nope"}.Logger(false)
	assert.Error(t, err)
}
