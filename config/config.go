package config

import (
	"fmt"
	"strings"
	"time"

	"listing-scraper/models"
	"listing-scraper/utils"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// SiteConfig is one entry of the sites list. Zero values fall back to the
// global settings.
type SiteConfig struct {
	Site      string `mapstructure:"site"`
	StartURL  string `mapstructure:"start_url"`
	City      string `mapstructure:"city"`
	State     string `mapstructure:"state"`
	MaxPages  int    `mapstructure:"max_pages"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Output    string `mapstructure:"output"`

	SkipDetails bool `mapstructure:"skip_details"`
}

type RetryConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	Delay              time.Duration `mapstructure:"delay"`
	BlockedMaxAttempts int           `mapstructure:"blocked_max_attempts"`
	BlockedDelay       time.Duration `mapstructure:"blocked_delay"`
	BlockedMaxDelay    time.Duration `mapstructure:"blocked_max_delay"`
}

type Config struct {
	Concurrency int           `mapstructure:"concurrency"`
	TimeoutMs   int           `mapstructure:"timeout_ms"`
	Output      string        `mapstructure:"output"`
	Append      bool          `mapstructure:"append"`
	Renderer    string        `mapstructure:"renderer"`
	Headless    bool          `mapstructure:"headless"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Retry       RetryConfig   `mapstructure:"retry"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
	HistoryDB   string `mapstructure:"history_db"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	Sites     []SiteConfig    `mapstructure:"sites"`
	Locations LocationsConfig `mapstructure:"locations"`
}

const (
	RendererChrome = "chrome"
	RendererRod    = "rod"
	RendererHTTP   = "http"
)

func DefaultConfig() *Config {
	return &Config{
		Concurrency: 3,
		TimeoutMs:   60000,
		Output:      "output/listings.csv",
		Renderer:    RendererChrome,
		Headless:    true,
		MinDelay:    3 * time.Second,
		MaxDelay:    7 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:        3,
			Delay:              2 * time.Second,
			BlockedMaxAttempts: 4,
			BlockedDelay:       5 * time.Second,
			BlockedMaxDelay:    time.Minute,
		},
		LogLevel: "info",
	}
}

// SetDefaults registers DefaultConfig on v so env vars and flags can
// override individual keys.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("timeout_ms", d.TimeoutMs)
	v.SetDefault("output", d.Output)
	v.SetDefault("append", d.Append)
	v.SetDefault("renderer", d.Renderer)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("min_delay", d.MinDelay)
	v.SetDefault("max_delay", d.MaxDelay)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.blocked_max_attempts", d.Retry.BlockedMaxAttempts)
	v.SetDefault("retry.blocked_delay", d.Retry.BlockedDelay)
	v.SetDefault("retry.blocked_max_delay", d.Retry.BlockedMaxDelay)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("history_db", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_prefix", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", false)
	v.SetDefault("locations.file", "")
	v.SetDefault("locations.max_pages", 0)
	v.SetDefault("locations.output", "")
	v.SetDefault("locations.skip_details", false)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Renderer {
	case RendererChrome, RendererRod, RendererHTTP:
	default:
		return fmt.Errorf("unknown renderer %q (chrome|rod|http)", c.Renderer)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("invalid delay range %v-%v", c.MinDelay, c.MaxDelay)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.BlockedMaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.Locations.File != "" && len(c.Locations.Sites) == 0 {
		return fmt.Errorf("locations: sites is required with file")
	}
	if c.Locations.MaxPages < 0 {
		return fmt.Errorf("locations: max_pages must be >= 0")
	}
	for i, s := range c.Sites {
		if strings.TrimSpace(s.Site) == "" {
			return fmt.Errorf("sites[%d]: site is required", i)
		}
		if s.MaxPages < 0 {
			return fmt.Errorf("sites[%d]: max_pages must be >= 0", i)
		}
		if s.TimeoutMs < 0 {
			return fmt.Errorf("sites[%d]: timeout_ms must be >= 0", i)
		}
	}
	return nil
}

// HasJobs reports whether any site or locations file is configured.
func (c *Config) HasJobs() bool {
	return len(c.Sites) > 0 || c.Locations.File != ""
}

// Jobs turns the sites list, then every (locations site, row) pair, into
// scrape jobs, each with a fresh id.
func (c *Config) Jobs() ([]models.ScrapeJob, error) {
	jobs := make([]models.ScrapeJob, 0, len(c.Sites))
	for _, s := range c.Sites {
		timeout := s.TimeoutMs
		if timeout == 0 {
			timeout = c.TimeoutMs
		}
		jobs = append(jobs, c.job(SiteConfig{
			Site:      s.Site,
			StartURL:  s.StartURL,
			City:      s.City,
			State:     s.State,
			MaxPages:  s.MaxPages,
			TimeoutMs: timeout,
			Output:    s.Output,

			SkipDetails: s.SkipDetails,
		}))
	}

	if c.Locations.File == "" {
		return jobs, nil
	}
	locations, err := LoadLocations(c.Locations.File)
	if err != nil {
		return nil, err
	}
	for _, site := range c.Locations.Sites {
		for _, loc := range locations {
			jobs = append(jobs, c.job(SiteConfig{
				Site:      site,
				City:      loc.City,
				State:     loc.State,
				MaxPages:  c.Locations.MaxPages,
				TimeoutMs: c.TimeoutMs,
				Output:    c.Locations.Output,

				SkipDetails: c.Locations.SkipDetails,
			}))
		}
	}
	return jobs, nil
}

func (c *Config) job(s SiteConfig) models.ScrapeJob {
	output := s.Output
	if output == "" {
		output = c.Output
	}
	return models.ScrapeJob{
		JobID:            uuid.NewString(),
		SiteID:           strings.ToLower(strings.TrimSpace(s.Site)),
		StartURL:         s.StartURL,
		City:             s.City,
		State:            s.State,
		MaxPages:         s.MaxPages,
		ConcurrencyLimit: c.Concurrency,
		Timeout:          time.Duration(s.TimeoutMs) * time.Millisecond,
		OutputPath:       output,
		SkipDetails:      s.SkipDetails,
	}
}

func (c *Config) RetryPolicy() utils.RetryPolicy {
	p := utils.DefaultRetryPolicy()
	r := c.Retry
	p[models.KindTimeout] = utils.RetryRule{MaxAttempts: r.MaxAttempts, Delay: r.Delay}
	p[models.KindNetworkFailure] = utils.RetryRule{MaxAttempts: r.MaxAttempts, Delay: r.Delay}
	p[models.KindBlocked] = utils.RetryRule{
		MaxAttempts: r.BlockedMaxAttempts,
		Delay:       r.BlockedDelay,
		Exponential: true,
		MaxDelay:    r.BlockedMaxDelay,
	}
	return p
}
