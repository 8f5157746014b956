// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Engine() EngineConfig
	Browser() BrowserConfig
	Discovery() DiscoveryConfig
	Analysis() AnalysisConfig
	Executor() ExecutorConfig
	Scheduler() SchedulerConfig
	Server() ServerConfig
	Guidance() GuidanceConfig

	// Setters used by CLI flag overrides.
	SetDiscoveryMaxDepth(int)
	SetEngineWorkerConcurrency(int)
	SetBrowserHeadless(bool)
	SetServerAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	DiscoveryCfg DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	AnalysisCfg  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	ExecutorCfg  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	SchedulerCfg SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	GuidanceCfg  GuidanceConfig  `mapstructure:"guidance" yaml:"guidance"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Discovery() DiscoveryConfig { return c.DiscoveryCfg }
func (c *Config) Analysis() AnalysisConfig   { return c.AnalysisCfg }
func (c *Config) Executor() ExecutorConfig   { return c.ExecutorCfg }
func (c *Config) Scheduler() SchedulerConfig { return c.SchedulerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Guidance() GuidanceConfig   { return c.GuidanceCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDiscoveryMaxDepth(d int)       { c.DiscoveryCfg.MaxDepth = d }
func (c *Config) SetEngineWorkerConcurrency(w int) { c.EngineCfg.WorkerConcurrency = w }
func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetServerAddr(addr string)        { c.ServerCfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// EngineConfig configures the batch run engine.
type EngineConfig struct {
	// WorkerConcurrency caps how many scans of one batch run at the same time.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NetworkIdleQuiet  time.Duration `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
}

// DiscoveryConfig controls the URL discovery crawl.
type DiscoveryConfig struct {
	MaxDepth          int           `mapstructure:"max_depth" yaml:"max_depth"`
	PageTimeout       time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// AnalysisConfig locates the accessibility analyzer script injected into pages.
type AnalysisConfig struct {
	ScriptPath   string        `mapstructure:"script_path" yaml:"script_path"`
	ScriptURL    string        `mapstructure:"script_url" yaml:"script_url"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	RunTimeout   time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// ExecutorConfig controls a single scan run.
type ExecutorConfig struct {
	// SettleTimeout bounds the post-navigation wait before a page is analysed anyway.
	SettleTimeout time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	DefaultDevice string        `mapstructure:"default_device" yaml:"default_device"`
}

// SchedulerConfig controls the expiry sweep trigger.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Cron    string `mapstructure:"cron" yaml:"cron"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// Username is attributed to scan requests created through the API when no user header is sent.
	DefaultUsername string `mapstructure:"default_username" yaml:"default_username"`
}

// GuidanceConfig lists the guidance levels offered when the database has none.
type GuidanceConfig struct {
	DefaultLevels []string `mapstructure:"default_levels" yaml:"default_levels"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "barrier-cli")
	v.SetDefault("logger.log_file", "barrier.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 4)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.network_idle_quiet", "500ms")

	// -- Discovery --
	v.SetDefault("discovery.max_depth", 1)
	v.SetDefault("discovery.page_timeout", "45s")
	v.SetDefault("discovery.requests_per_second", 4.0)

	// -- Analysis --
	v.SetDefault("analysis.script_url", "https://cdn.jsdelivr.net/npm/axe-core@4.10.2/axe.min.js")
	v.SetDefault("analysis.fetch_timeout", "30s")
	v.SetDefault("analysis.run_timeout", "2m")

	// -- Executor --
	v.SetDefault("executor.settle_timeout", "30s")
	v.SetDefault("executor.default_device", "Desktop")

	// -- Scheduler --
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "@hourly")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.default_username", "")

	// -- Guidance --
	v.SetDefault("guidance.default_levels", []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa", "best-practice"})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "BARRIER_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// database.url is checked by the commands that open a pool.
func (c *Config) Validate() error {
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.DiscoveryCfg.MaxDepth < 0 {
		return fmt.Errorf("discovery.max_depth must not be negative")
	}
	if c.DiscoveryCfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("discovery.requests_per_second must be positive")
	}
	if c.AnalysisCfg.ScriptPath == "" && c.AnalysisCfg.ScriptURL == "" {
		return fmt.Errorf("analysis.script_path or analysis.script_url is required")
	}
	if err := c.SchedulerCfg.Validate(); err != nil {
		return fmt.Errorf("scheduler configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the cron expression when the scheduler is enabled.
func (s *SchedulerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Cron == "" {
		return fmt.Errorf("cron expression is required when the scheduler is enabled")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(s.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}
	return nil
}
