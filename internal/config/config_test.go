// File: internal/config/config_test.go
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "barrier-cli", cfg.Logger().ServiceName)
	assert.Equal(t, 4, cfg.Engine().WorkerConcurrency)
	assert.Equal(t, 1, cfg.Discovery().MaxDepth)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 90*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser().NetworkIdleQuiet)
	assert.Equal(t, 30*time.Second, cfg.Executor().SettleTimeout)
	assert.Equal(t, "Desktop", cfg.Executor().DefaultDevice)
	assert.Equal(t, "@hourly", cfg.Scheduler().Cron)
	assert.Equal(t, ":8080", cfg.Server().Addr)
	assert.Equal(t, []string{"*"}, cfg.Server().AllowedOrigins)
	assert.Empty(t, cfg.Server().DefaultUsername)
	assert.Contains(t, cfg.Guidance().DefaultLevels, "wcag2aa")
	assert.NotEmpty(t, cfg.Analysis().ScriptURL)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero workers", func(c *Config) { c.EngineCfg.WorkerConcurrency = 0 }, "engine.worker_concurrency must be a positive integer"},
		{"negative depth", func(c *Config) { c.DiscoveryCfg.MaxDepth = -1 }, "discovery.max_depth must not be negative"},
		{"depth zero", func(c *Config) { c.DiscoveryCfg.MaxDepth = 0 }, ""},
		{"no crawl rate", func(c *Config) { c.DiscoveryCfg.RequestsPerSecond = 0 }, "discovery.requests_per_second must be positive"},
		{"no analyzer source", func(c *Config) {
			c.AnalysisCfg.ScriptURL = ""
			c.AnalysisCfg.ScriptPath = ""
		}, "analysis.script_path or analysis.script_url is required"},
		{"local analyzer only", func(c *Config) {
			c.AnalysisCfg.ScriptURL = ""
			c.AnalysisCfg.ScriptPath = "/opt/axe.min.js"
		}, ""},
		{"bad cron", func(c *Config) { c.SchedulerCfg.Cron = "every hour" }, "scheduler configuration invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		cfg   SchedulerConfig
		valid bool
	}{
		{SchedulerConfig{Enabled: true, Cron: "0 * * * *"}, true},
		{SchedulerConfig{Enabled: true, Cron: "@every 30m"}, true},
		{SchedulerConfig{Enabled: false, Cron: "not a cron"}, true},
		{SchedulerConfig{Enabled: true, Cron: "61 * * * *"}, false},
		{SchedulerConfig{Enabled: true}, false},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.valid {
			assert.NoError(t, err, "cron %q", tt.cfg.Cron)
		} else {
			assert.Error(t, err, "cron %q", tt.cfg.Cron)
		}
	}
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		v := loadYAML(t, `
discovery:
  max_depth: 3
  requests_per_second: 0.5
executor:
  default_device: "iPhone X"
server:
  allowed_origins: ["https://dashboard.example.com"]
  default_username: "scanner"
guidance:
  default_levels: ["wcag2a"]
`)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Discovery().MaxDepth)
		assert.Equal(t, 0.5, cfg.Discovery().RequestsPerSecond)
		assert.Equal(t, "iPhone X", cfg.Executor().DefaultDevice)
		assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.Server().AllowedOrigins)
		assert.Equal(t, "scanner", cfg.Server().DefaultUsername)
		assert.Equal(t, []string{"wcag2a"}, cfg.Guidance().DefaultLevels)
		// Untouched sections keep their defaults.
		assert.Equal(t, "@hourly", cfg.Scheduler().Cron)
	})

	t.Run("durations parse from strings", func(t *testing.T) {
		v := loadYAML(t, `
executor:
  settle_timeout: "5s"
browser:
  network_idle_quiet: "250ms"
`)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Executor().SettleTimeout)
		assert.Equal(t, 250*time.Millisecond, cfg.Browser().NetworkIdleQuiet)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("discovery.max_depth", -2)

		cfg, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		v := loadYAML(t, `
database:
  url: "postgres://file/barrier"
`)
		t.Setenv("BARRIER_DATABASE_URL", "postgres://env/barrier")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/barrier", cfg.Database().URL)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetDiscoveryMaxDepth(7)
	iface.SetEngineWorkerConcurrency(9)
	iface.SetBrowserHeadless(false)
	iface.SetServerAddr("127.0.0.1:9000")

	assert.Equal(t, 7, cfg.Discovery().MaxDepth)
	assert.Equal(t, 9, cfg.Engine().WorkerConcurrency)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server().Addr)
}
