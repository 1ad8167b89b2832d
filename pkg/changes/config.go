package changes

import (
	"errors"
	"fmt"
)

// GapPolicy decides what a year without data does to the retained snapshot
type GapPolicy string

const (
	// GapReset drops the retained snapshot; the next year with data is diffed against nothing
	GapReset GapPolicy = "reset"
	// GapCarry keeps the last snapshot and diffs the next year with data against it
	GapCarry GapPolicy = "carry"
)

// ErrInvalidGapPolicy is returned for an unknown gap policy
var ErrInvalidGapPolicy = errors.New("invalid gap policy")

// Config holds change detection settings
type Config struct {
	GapPolicy GapPolicy `yaml:"gapPolicy" default:"reset"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.GapPolicy {
	case GapReset, GapCarry:
		return nil
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidGapPolicy, c.GapPolicy, GapReset, GapCarry)
	}
}
