package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	ErrMissingToken    = errors.New("GITHUB_TOKEN is required")
	ErrMissingUsername = errors.New("GITHUB_USERNAME is required")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

// Config holds application configuration.
type Config struct {
	GitHub      GitHubConfig      `yaml:"github"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	OwnerFilter OwnerFilterConfig `yaml:"owner_filter"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GitHubConfig configures API access.
type GitHubConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	Username       string        `yaml:"username"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DiscoveryConfig controls the repository search.
type DiscoveryConfig struct {
	MaxStars     int `yaml:"max_stars"`
	ReposPerPage int `yaml:"repos_per_page"`
	Pages        int `yaml:"pages"`
}

// TrackingConfig controls reciprocity tracking.
type TrackingConfig struct {
	GracePeriodDays int    `yaml:"grace_period_days"`
	StateFile       string `yaml:"state_file"`
}

// ScheduleConfig controls when cycles run.
type ScheduleConfig struct {
	WindowStart      string        `yaml:"window_start"`
	WindowHours      int           `yaml:"window_hours"`
	FirstOffset      time.Duration `yaml:"first_offset"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	MinStarDelay     time.Duration `yaml:"min_star_delay"`
	MaxStarDelay     time.Duration `yaml:"max_star_delay"`
}

// OwnerFilterConfig controls the optional owner quality filter.
type OwnerFilterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequireReadme bool          `yaml:"require_readme"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// MetricsConfig controls the status and metrics listener.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the listener.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			URL:            "https://api.github.com",
			RequestTimeout: 30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			MaxStars:     5,
			ReposPerPage: 100,
			Pages:        1,
		},
		Tracking: TrackingConfig{
			GracePeriodDays: 3,
			StateFile:       "check_following.json",
		},
		Schedule: ScheduleConfig{
			WindowStart:      "0 21 * * *",
			WindowHours:      3,
			ProgressInterval: 10 * time.Minute,
			MinStarDelay:     1500 * time.Millisecond,
			MaxStarDelay:     3500 * time.Millisecond,
		},
		OwnerFilter: OwnerFilterConfig{
			CacheTTL: 24 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.GitHub.URL = getEnvOrDefault("GITHUB_URL", c.GitHub.URL)
	c.GitHub.Token = getEnvOrDefault("GITHUB_TOKEN", c.GitHub.Token)
	// USERNAME is usually the OS login, so it is only a fallback.
	if c.GitHub.Username == "" {
		c.GitHub.Username = os.Getenv("USERNAME")
	}
	c.GitHub.Username = getEnvOrDefault("GITHUB_USERNAME", c.GitHub.Username)
	c.Tracking.StateFile = getEnvOrDefault("STATE_FILE", c.Tracking.StateFile)
	c.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", c.Metrics.Addr)

	ints := []struct {
		key    string
		target *int
	}{
		{"REPOS_PER_PAGE", &c.Discovery.ReposPerPage},
		{"NUM_OF_PAGES", &c.Discovery.Pages},
		{"MAX_STARS", &c.Discovery.MaxStars},
		{"GRACE_PERIOD_DAYS", &c.Tracking.GracePeriodDays},
	}
	for _, v := range ints {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, v.key, raw)
		}
		*v.target = n
	}
	return nil
}

// Validate reports every missing or out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	if c.GitHub.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	if c.GitHub.Username == "" {
		errs = append(errs, ErrMissingUsername)
	}
	if c.Discovery.ReposPerPage < 1 || c.Discovery.ReposPerPage > 100 {
		errs = append(errs, fmt.Errorf("%w: repos_per_page must be between 1 and 100, got %d", ErrInvalidValue, c.Discovery.ReposPerPage))
	}
	if c.Discovery.Pages < 1 {
		errs = append(errs, fmt.Errorf("%w: pages must be at least 1, got %d", ErrInvalidValue, c.Discovery.Pages))
	}
	if c.Discovery.MaxStars < 1 {
		errs = append(errs, fmt.Errorf("%w: max_stars must be at least 1, got %d", ErrInvalidValue, c.Discovery.MaxStars))
	}
	if c.Tracking.GracePeriodDays < 0 {
		errs = append(errs, fmt.Errorf("%w: grace_period_days must not be negative, got %d", ErrInvalidValue, c.Tracking.GracePeriodDays))
	}
	if c.Tracking.StateFile == "" {
		errs = append(errs, fmt.Errorf("%w: state_file is required", ErrInvalidValue))
	}
	if c.Schedule.WindowHours < 1 || c.Schedule.WindowHours > 24 {
		errs = append(errs, fmt.Errorf("%w: window_hours must be between 1 and 24, got %d", ErrInvalidValue, c.Schedule.WindowHours))
	}
	if c.Schedule.MaxStarDelay < c.Schedule.MinStarDelay {
		errs = append(errs, fmt.Errorf("%w: max_star_delay is below min_star_delay", ErrInvalidValue))
	}
	return errors.Join(errs...)
}

// HasMetrics returns true if the status listener is enabled.
func (c *Config) HasMetrics() bool {
	return c.Metrics.Addr != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
