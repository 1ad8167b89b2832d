// Package postgis implements the geospatial store on PostgreSQL with PostGIS.
package postgis

import (
	"errors"
	"regexp"
	"time"
)

// Static errors for configuration validation
var (
	ErrDSNRequired      = errors.New("store DSN is required")
	ErrInvalidSchema    = errors.New("schema must be a lower-case SQL identifier")
	ErrInvalidSRID      = errors.New("SRID must be positive")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config contains PostGIS connection and layout settings
type Config struct {
	DSN          string        `yaml:"dsn"`
	Schema       string        `yaml:"schema" default:"public"`
	SRID         int           `yaml:"srid" default:"2180"`
	QueryTimeout time.Duration `yaml:"queryTimeout" default:"10m"`
	BatchSize    int           `yaml:"batchSize" default:"500"`
	MaxOpenConns int           `yaml:"maxOpenConns" default:"8"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrDSNRequired
	}

	if !identifierPattern.MatchString(c.Schema) {
		return ErrInvalidSchema
	}

	if c.SRID <= 0 {
		return ErrInvalidSRID
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	return nil
}

// SetDefaults fills zero values. Used when the config is built in code rather than
// loaded through the YAML defaults.
func (c *Config) SetDefaults() {
	if c.Schema == "" {
		c.Schema = "public"
	}

	if c.SRID == 0 {
		c.SRID = 2180
	}

	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Minute
	}

	if c.BatchSize == 0 {
		c.BatchSize = 500
	}

	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 8
	}
}
