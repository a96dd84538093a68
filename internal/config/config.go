// Package config loads the storebus configuration file.
//
// The file is YAML. Unknown keys are rejected so a typo never silently
// falls back to a default. Every field is optional; Default supplies the
// values a bare install runs with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storebus/internal/engine"
	"github.com/roach88/storebus/internal/scenario"
)

// DefaultDatabase is the SQLite file used when none is configured.
const DefaultDatabase = "storebus.db"

// Config is the full configuration threaded through constructors.
type Config struct {
	// Database is the SQLite file holding scenarios, rebuilds and the lock.
	Database string `yaml:"database"`
	// CatalogDir holds the CUE marketplace catalog.
	CatalogDir string `yaml:"catalog_dir"`
	// StoreURL is the storefront origin; scenario return URLs must share it.
	StoreURL string `yaml:"store_url"`
	// DemoMode refuses every mutating operation.
	DemoMode bool `yaml:"demo_mode"`

	Lock     LockConfig     `yaml:"lock"`
	Builder  BuilderConfig  `yaml:"builder"`
	Executor ExecutorConfig `yaml:"executor"`
}

// LockConfig configures the rebuild lock lease.
type LockConfig struct {
	Key string        `yaml:"key"`
	TTL time.Duration `yaml:"ttl"`
}

// BuilderConfig configures the scenario builder.
type BuilderConfig struct {
	MaxPasses        int    `yaml:"max_passes"`
	DependentsPolicy string `yaml:"dependents_policy"`
}

// ExecutorConfig configures the rebuild executor.
type ExecutorConfig struct {
	MaxStepAttempts int           `yaml:"max_step_attempts"`
	StepTimeout     time.Duration `yaml:"step_timeout"` // 0 means no timeout
	BatchSize       int           `yaml:"batch_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: DefaultDatabase,
		Lock: LockConfig{
			Key: engine.DefaultLockKey,
			TTL: engine.DefaultLockTTL,
		},
		Builder: BuilderConfig{
			MaxPasses:        scenario.DefaultMaxPasses,
			DependentsPolicy: string(scenario.PolicyCascade),
		},
		Executor: ExecutorConfig{
			MaxStepAttempts: engine.DefaultMaxStepAttempts,
			BatchSize:       engine.DefaultBatchSize,
		},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields a file set to their zero value.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.Lock.Key == "" {
		c.Lock.Key = def.Lock.Key
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = def.Lock.TTL
	}
	if c.Builder.MaxPasses == 0 {
		c.Builder.MaxPasses = def.Builder.MaxPasses
	}
	if c.Builder.DependentsPolicy == "" {
		c.Builder.DependentsPolicy = def.Builder.DependentsPolicy
	}
	if c.Executor.MaxStepAttempts == 0 {
		c.Executor.MaxStepAttempts = def.Executor.MaxStepAttempts
	}
	if c.Executor.BatchSize == 0 {
		c.Executor.BatchSize = def.Executor.BatchSize
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.StoreURL != "" {
		u, err := url.Parse(c.StoreURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("store_url %q must be an absolute URL", c.StoreURL))
		}
	}
	if c.Lock.TTL < 0 {
		errs = append(errs, fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL))
	}
	if c.Builder.MaxPasses < 0 {
		errs = append(errs, fmt.Errorf("builder.max_passes must be positive, got %d", c.Builder.MaxPasses))
	}
	if _, err := scenario.ParseDependentsPolicy(c.Builder.DependentsPolicy); err != nil {
		errs = append(errs, fmt.Errorf("builder.dependents_policy: %w", err))
	}
	if c.Executor.MaxStepAttempts < 0 {
		errs = append(errs, fmt.Errorf("executor.max_step_attempts must be positive, got %d", c.Executor.MaxStepAttempts))
	}
	if c.Executor.StepTimeout < 0 {
		errs = append(errs, fmt.Errorf("executor.step_timeout must not be negative, got %s", c.Executor.StepTimeout))
	}
	if c.Executor.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("executor.batch_size must be positive, got %d", c.Executor.BatchSize))
	}
	return errors.Join(errs...)
}

// DependentsPolicy returns the parsed builder policy.
func (c Config) DependentsPolicy() scenario.DependentsPolicy {
	p, err := scenario.ParseDependentsPolicy(c.Builder.DependentsPolicy)
	if err != nil {
		return scenario.PolicyCascade
	}
	return p
}
