// Package fetcher obtains the raw yearly archive of a region, downloading it at most once
package fetcher

import (
	"errors"
	"net/url"
	"time"
)

// Configuration errors
var (
	ErrBaseURLRequired     = errors.New("source base URL is required")
	ErrInvalidBaseURL      = errors.New("source base URL must be an absolute http(s) URL")
	ErrURLTemplateRequired = errors.New("source URL template is required")
	ErrInvalidTimeout      = errors.New("source timeout must be positive")
)

// Source defaults
const (
	DefaultBaseURL   = "https://opendata.geoportal.gov.pl/Archiwum/bdot10k"
	DefaultUserAgent = "footprint"
)

// DefaultURLTemplate addresses the BDOT10k archive of one powiat and year
const DefaultURLTemplate = "{{ .BaseURL }}/{{ .Year }}/SHP/{{ .Parent }}/{{ .Region }}_SHP_{{ .Year }}.zip"

// Config holds archive source settings
type Config struct {
	BaseURL string `yaml:"baseURL" default:"https://opendata.geoportal.gov.pl/Archiwum/bdot10k"`
	// URLTemplate is a text/template with .BaseURL .Year .Parent and .Region
	URLTemplate string        `yaml:"urlTemplate"`
	Timeout     time.Duration `yaml:"timeout" default:"60s"`
	UserAgent   string        `yaml:"userAgent" default:"footprint"`
}

// Validate checks the source configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	if c.URLTemplate == "" {
		return ErrURLTemplateRequired
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// SetDefaults fills unset values, including those the default tags carry for
// configs built in code
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.URLTemplate == "" {
		c.URLTemplate = DefaultURLTemplate
	}

	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}
