// Package config loads scraper settings from a YAML file, a .env file and
// SCRAPER_* environment variables. Command-line flags are applied on top by
// the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/client"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/export"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/logging"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/metrics"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/pagination"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/scraper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCRAPER_"

// Config is the full scraper configuration.
type Config struct {
	Mode      string        `yaml:"mode"`
	Pages     int           `yaml:"pages"`
	BatchSize int           `yaml:"batch_size"`
	PauseMS   int           `yaml:"pause_ms"`
	Timeout   time.Duration `yaml:"timeout"`
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`

	Output  OutputConfig  `yaml:"output"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// OutputConfig controls the terminal table and CSV export.
type OutputConfig struct {
	// CSV is a file path, "auto" for a timestamped name, or empty to skip
	CSV       string `yaml:"csv"`
	CSVAppend bool   `yaml:"csv_append"`
	Top       int    `yaml:"top"`
}

// RedisConfig enables snapshot publishing when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// MetricsConfig enables a Pushgateway push when Pushgateway is set.
type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns fast mode over 10 pages with the stock request settings.
func Default() *Config {
	batch := pagination.DefaultConfig()
	return &Config{
		Mode:      string(scraper.ModeFast),
		Pages:     10,
		BatchSize: batch.BatchSize,
		PauseMS:   int(batch.Pause / time.Millisecond),
		Timeout:   client.DefaultTimeout,
		BaseURL:   client.DefaultBaseURL,
		UserAgent: client.DefaultUserAgent,
		Output:    OutputConfig{Top: export.DefaultTopN},
		Redis:     RedisConfig{Channel: export.DefaultChannel},
		Metrics:   MetricsConfig{Job: metrics.DefaultJob},
		Log:       LogConfig{Level: string(logging.LevelInfo)},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), the .env file in the working directory if present,
// and SCRAPER_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(file string) error {
	if err := godotenv.Load(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// ApplyEnv overrides fields from SCRAPER_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	strs := map[string]*string{
		"MODE":           &c.Mode,
		"BASE_URL":       &c.BaseURL,
		"USER_AGENT":     &c.UserAgent,
		"CSV":            &c.Output.CSV,
		"REDIS_ADDR":     &c.Redis.Addr,
		"REDIS_PASSWORD": &c.Redis.Password,
		"REDIS_CHANNEL":  &c.Redis.Channel,
		"PUSHGATEWAY":    &c.Metrics.Pushgateway,
		"PUSH_JOB":       &c.Metrics.Job,
		"LOG_LEVEL":      &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAGES":      &c.Pages,
		"BATCH_SIZE": &c.BatchSize,
		"PAUSE_MS":   &c.PauseMS,
		"TOP":        &c.Output.Top,
		"REDIS_DB":   &c.Redis.DB,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"CSV_APPEND": &c.Output.CSVAppend,
		"LOG_PRETTY": &c.Log.Pretty,
	}
	for key, dst := range bools {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}

	return nil
}

// ApplyMode pins the batch settings of safe mode.
func (c *Config) ApplyMode() {
	if c.Mode != string(scraper.ModeSafe) {
		return
	}
	safe := pagination.SafeConfig()
	c.BatchSize = safe.BatchSize
	c.PauseMS = int(safe.Pause / time.Millisecond)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := scraper.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Pages < 0 {
		return fmt.Errorf("pages must be >= 0 (got %d)", c.Pages)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1 (got %d)", c.BatchSize)
	}
	if c.PauseMS < 0 {
		return fmt.Errorf("pause must be >= 0 (got %dms)", c.PauseMS)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.Log.Level)); err != nil {
		return err
	}
	return nil
}

// ScraperOptions converts the configuration into run options.
func (c *Config) ScraperOptions() (scraper.Options, error) {
	mode, err := scraper.ParseMode(c.Mode)
	if err != nil {
		return scraper.Options{}, err
	}

	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = c.BaseURL
	clientCfg.Timeout = c.Timeout
	if c.UserAgent != "" {
		clientCfg.UserAgent = c.UserAgent
	}

	return scraper.Options{
		Mode:  mode,
		Pages: c.Pages,
		Batch: pagination.Config{
			BatchSize: c.BatchSize,
			Pause:     time.Duration(c.PauseMS) * time.Millisecond,
		},
		Client: clientCfg,
	}, nil
}

// Logging converts the log section into a logging.Config writing to stderr.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
