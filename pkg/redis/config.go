// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrAddressRequired = errors.New("redis address is required")
)

// Config holds Redis client configuration. Address is a redis:// URL.
type Config struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"footprint"`
}

// Enabled reports whether a Redis address is configured
func (c *Config) Enabled() bool {
	return c != nil && c.Address != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = "footprint"
	}

	if _, err := redis.ParseURL(c.Address); err != nil {
		return fmt.Errorf("invalid redis address: %w", err)
	}

	return nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}

// NewClient parses the address and creates a client
func NewClient(c *Config) (*redis.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(c.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address: %w", err)
	}

	return redis.NewClient(opts), nil
}
