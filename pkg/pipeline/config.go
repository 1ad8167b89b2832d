// Package pipeline drives the yearly sweep: per-region fetch, extract and import
// units followed by the change detection step of each year.
package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/footprint/pkg/aggregate"
	"github.com/ethpandaops/footprint/pkg/changes"
	"github.com/ethpandaops/footprint/pkg/fetcher"
	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/redis"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/scheduler"
	"github.com/ethpandaops/footprint/pkg/server"
	"github.com/ethpandaops/footprint/pkg/store/postgis"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DSNEnv overrides store.dsn when set
const DSNEnv = "FOOTPRINT_STORE_DSN"

var (
	// ErrTempDirRequired is returned when no working directory is configured
	ErrTempDirRequired = errors.New("tempDir is required")
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

// Config represents the complete pipeline configuration
type Config struct {
	// Core settings
	Logging string        `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	Server  server.Config `yaml:",inline"`

	TempDir     string `yaml:"tempDir" default:"./temp_bdot10k"`
	Concurrency int    `yaml:"concurrency" default:"1"`

	Layer   layers.Config     `yaml:"layer"`
	Source  fetcher.Config    `yaml:"source"`
	Years   regions.YearRange `yaml:"years"`
	Regions regions.Catalog   `yaml:"regions"`
	Store   postgis.Config    `yaml:"store"`
	Redis   *redis.Config     `yaml:"redis"`
	Changes changes.Config    `yaml:"changes"`
	Report  aggregate.Config  `yaml:"report"`
	Watch   scheduler.Config  `yaml:"watch"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}

	if c.TempDir == "" {
		return ErrTempDirRequired
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	validators := []struct {
		name     string
		validate func() error
	}{
		{"layer", c.Layer.Validate},
		{"source", c.Source.Validate},
		{"years", c.Years.Validate},
		{"regions", c.Regions.Validate},
		{"store", c.Store.Validate},
		{"changes", c.Changes.Validate},
		{"report", c.Report.Validate},
		{"watch", c.Watch.Validate},
	}

	for _, v := range validators {
		if err := v.validate(); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", v.name, err)
		}
	}

	if c.Redis.Enabled() {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis configuration: %w", err)
		}
	}

	return nil
}

// SetDefaults fills the values the default tags cannot express
func (c *Config) SetDefaults() {
	c.Layer.SetDefaults()
	c.Source.SetDefaults()
	c.Store.SetDefaults()

	if len(c.Regions) == 0 {
		c.Regions = regions.Default()
	}
}

// LoadConfig reads a YAML configuration file. A missing file yields the defaults,
// so a DSN from the environment is enough to run.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err == nil {
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if dsn := os.Getenv(DSNEnv); dsn != "" {
		config.Store.DSN = dsn
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
