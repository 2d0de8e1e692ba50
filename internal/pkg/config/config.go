package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // platform zones must resolve in slim containers

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Health    HealthConfig    `yaml:"health"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Poller    PollerConfig    `yaml:"poller"`
	Signals   SignalsConfig   `yaml:"signals"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" (default) or "memory"
}

// RedisConfig enables the writer's seen-key cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // optional JSON log file
}

type HealthConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type PollerConfig struct {
	Interval           time.Duration      `yaml:"interval"`
	FetchTimeout       time.Duration      `yaml:"fetch_timeout"`
	WriteTimeout       time.Duration      `yaml:"write_timeout"`
	MaxRows            int                `yaml:"max_rows"`
	Granularity        models.Granularity `yaml:"granularity"`
	AlertAfterFailures int                `yaml:"alert_after_failures"`
	Browser            BrowserConfig      `yaml:"browser"`
	Platforms          []PlatformConfig   `yaml:"platforms"`
}

type BrowserConfig struct {
	Headless   *bool         `yaml:"headless"`
	ExecPath   string        `yaml:"exec_path"`
	UserAgent  string        `yaml:"user_agent"`
	SettleWait time.Duration `yaml:"settle_wait"` // pause after the selector shows up
}

// PlatformConfig describes one external feed.
type PlatformConfig struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"` // source driver, default "chromedp"
	URL      string `yaml:"url"`    // page URL, or a file path for the fixture driver
	Selector string `yaml:"selector"`
	Timezone string `yaml:"timezone"` // zone of the clock readings on the page
}

// Location resolves the platform's timezone, UTC when empty.
func (p PlatformConfig) Location() (*time.Location, error) {
	return loadLocation(p.Timezone)
}

type SignalsConfig struct {
	Port              int           `yaml:"port"`
	APIKey            string        `yaml:"api_key"`
	Platforms         []string      `yaml:"platforms"` // defaults to poller platform names
	Cadence           time.Duration `yaml:"cadence"`
	InternalSchedule  bool          `yaml:"internal_schedule"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	Timezone          string        `yaml:"timezone"` // zone of the hour bucket
	HistorySize       int           `yaml:"history_size"`
	MinRounds         int           `yaml:"min_rounds"`
	LowThreshold      float64       `yaml:"low_threshold"`
	HighThreshold     float64       `yaml:"high_threshold"`
	DecisionThreshold float64       `yaml:"decision_threshold"`
	MaxConfidence     float64       `yaml:"max_confidence"`
	TTL               time.Duration `yaml:"ttl"`
	NormalRange       string        `yaml:"normal_range"`
	HighRange         string        `yaml:"high_range"`
}

func (s SignalsConfig) Location() (*time.Location, error) {
	return loadLocation(s.Timezone)
}

type ReconcileConfig struct {
	PageSize  int `yaml:"page_size"`
	ChunkSize int `yaml:"chunk_size"`
}

// envOverrides are secrets and deployment knobs that may come from the environment.
type envOverrides struct {
	PostgresDSN      string `env:"POSTGRES_DSN"`
	RedisAddr        string `env:"REDIS_ADDR"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`
	SignalsAPIKey    string `env:"SIGNALS_API_KEY"`
	LogLevel         string `env:"LOG_LEVEL"`
}

// MaxConfidenceCeiling is the exclusive upper bound for any advisory confidence.
const MaxConfidenceCeiling = 0.95

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}
	if o.PostgresDSN != "" {
		c.Postgres.DSN = o.PostgresDSN
	}
	if o.RedisAddr != "" {
		c.Redis.Addr = o.RedisAddr
	}
	if o.RedisPassword != "" {
		c.Redis.Password = o.RedisPassword
	}
	if o.TelegramBotToken != "" {
		c.Telegram.BotToken = o.TelegramBotToken
	}
	if o.TelegramChatID != 0 {
		c.Telegram.ChatID = o.TelegramChatID
	}
	if o.SignalsAPIKey != "" {
		c.Signals.APIKey = o.SignalsAPIKey
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Health.ReadHeaderTimeout <= 0 {
		c.Health.ReadHeaderTimeout = 5 * time.Second
	}

	p := &c.Poller
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = 30 * time.Second
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = 10 * time.Second
	}
	if p.MaxRows <= 0 {
		p.MaxRows = 20
	}
	if p.Granularity <= 0 {
		p.Granularity = models.GranularitySecond
	}
	if p.AlertAfterFailures <= 0 {
		p.AlertAfterFailures = 30
	}
	for i := range p.Platforms {
		if p.Platforms[i].Driver == "" {
			p.Platforms[i].Driver = "chromedp"
		}
		p.Platforms[i].Name = strings.ToLower(strings.TrimSpace(p.Platforms[i].Name))
	}

	s := &c.Signals
	if len(s.Platforms) == 0 {
		for _, pl := range p.Platforms {
			s.Platforms = append(s.Platforms, pl.Name)
		}
	}
	for i := range s.Platforms {
		s.Platforms[i] = strings.ToLower(strings.TrimSpace(s.Platforms[i]))
	}
	if s.Cadence <= 0 {
		s.Cadence = time.Hour
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 50 * time.Second
	}
	if s.HistorySize <= 0 {
		s.HistorySize = 200
	}
	if s.MinRounds <= 0 {
		s.MinRounds = 10
	}
	if s.LowThreshold <= 0 {
		s.LowThreshold = 2.0
	}
	if s.HighThreshold <= 0 {
		s.HighThreshold = 10.0
	}
	if s.DecisionThreshold <= 0 {
		s.DecisionThreshold = 0.6
	}
	if s.MaxConfidence <= 0 {
		s.MaxConfidence = 0.94
	}
	if s.TTL <= 0 {
		s.TTL = time.Hour
	}
	if s.NormalRange == "" {
		s.NormalRange = "1.50x - 2.00x"
	}
	if s.HighRange == "" {
		s.HighRange = "5.00x - 10.00x"
	}

	if c.Reconcile.PageSize <= 0 {
		c.Reconcile.PageSize = 1000
	}
	if c.Reconcile.ChunkSize <= 0 {
		c.Reconcile.ChunkSize = 100
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}

	seen := make(map[string]bool)
	for i, pl := range c.Poller.Platforms {
		if pl.Name == "" {
			errs = append(errs, fmt.Errorf("poller.platforms[%d].name is required", i))
			continue
		}
		if seen[pl.Name] {
			errs = append(errs, fmt.Errorf("poller.platforms[%d]: duplicate platform %q", i, pl.Name))
		}
		seen[pl.Name] = true
		if pl.URL == "" {
			errs = append(errs, fmt.Errorf("poller.platforms[%d] (%s): url is required", i, pl.Name))
		}
		if pl.Driver == "chromedp" && pl.Selector == "" {
			errs = append(errs, fmt.Errorf("poller.platforms[%d] (%s): selector is required for chromedp", i, pl.Name))
		}
		if _, err := pl.Location(); err != nil {
			errs = append(errs, fmt.Errorf("poller.platforms[%d] (%s): %w", i, pl.Name, err))
		}
	}

	s := c.Signals
	seenSignals := make(map[string]bool)
	for i, name := range s.Platforms {
		if name == "" {
			errs = append(errs, fmt.Errorf("signals.platforms[%d] is empty", i))
			continue
		}
		if seenSignals[name] {
			errs = append(errs, fmt.Errorf("signals.platforms[%d]: duplicate platform %q", i, name))
		}
		seenSignals[name] = true
	}
	if s.MaxConfidence >= MaxConfidenceCeiling {
		errs = append(errs, fmt.Errorf("signals.max_confidence must be below %.2f, got %.2f", MaxConfidenceCeiling, s.MaxConfidence))
	}
	if s.HighThreshold <= s.LowThreshold {
		errs = append(errs, fmt.Errorf("signals.high_threshold (%.2f) must exceed low_threshold (%.2f)", s.HighThreshold, s.LowThreshold))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Errorf("signals.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// HeadlessBrowser defaults to true.
func (b BrowserConfig) HeadlessBrowser() bool {
	return b.Headless == nil || *b.Headless
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}
