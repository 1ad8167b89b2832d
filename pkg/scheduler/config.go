// Package scheduler re-runs the pipeline on a cron schedule for watch mode
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrScheduleRequired is returned when no schedule is configured
	ErrScheduleRequired = errors.New("schedule is required")
	// ErrInvalidCheckInterval is returned when the check interval is not positive
	ErrInvalidCheckInterval = errors.New("check interval must be positive")
)

//nolint:gochecknoglobals // shared cron parser
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config defines scheduler configuration
type Config struct {
	Schedule      string        `yaml:"schedule" default:"@weekly"`
	CheckInterval time.Duration `yaml:"checkInterval" default:"30s"`
	RunTimeout    time.Duration `yaml:"runTimeout"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if c.Schedule == "" {
		return ErrScheduleRequired
	}

	if _, err := ParseSchedule(c.Schedule); err != nil {
		return err
	}

	if c.CheckInterval <= 0 {
		return ErrInvalidCheckInterval
	}

	return nil
}

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@weekly" or "@every 24h"
func ParseSchedule(schedule string) (cron.Schedule, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule format: %w", err)
	}

	return sched, nil
}

// IsDue reports whether a run is due at now given the previous run. A job that
// has never run is always due.
func IsDue(sched cron.Schedule, lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}

	return !now.Before(sched.Next(lastRun))
}
