package layers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Configuration errors
var (
	ErrInvalidKind          = errors.New("layer kind must be a lowercase identifier")
	ErrMarkerRequired       = errors.New("layer marker is required")
	ErrInvalidCanonicalBase = errors.New("canonical base name must be a plain identifier")
	ErrInvalidExtension     = errors.New("sidecar extension must start with a dot")
	ErrShapefileRequired    = errors.New("sidecar extensions must include .shp")
)

var (
	kindPattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	basePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// DefaultExtensions is the sidecar file-set copied for a shapefile layer
//
//nolint:gochecknoglobals // read-only default
var DefaultExtensions = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// Config describes which layer is pulled out of each archive and how it is named
type Config struct {
	// Kind prefixes every stored layer name
	Kind string `yaml:"kind" default:"bubd"`
	// Marker is matched case-insensitively against file names inside the archive
	Marker string `yaml:"marker" default:"bubd"`
	// CanonicalBase replaces the archive's dotted file names in the staging copy
	CanonicalBase string   `yaml:"canonicalBase" default:"BUBD_TEMP"`
	Extensions    []string `yaml:"extensions"`
}

// Validate checks the layer settings
func (c *Config) Validate() error {
	if !kindPattern.MatchString(c.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, c.Kind)
	}

	if strings.TrimSpace(c.Marker) == "" {
		return ErrMarkerRequired
	}

	if !basePattern.MatchString(c.CanonicalBase) {
		return fmt.Errorf("%w: %q", ErrInvalidCanonicalBase, c.CanonicalBase)
	}

	hasShp := false

	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || strings.Contains(ext[1:], ".") {
			return fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
		}

		if strings.EqualFold(ext, ".shp") {
			hasShp = true
		}
	}

	if len(c.Extensions) > 0 && !hasShp {
		return ErrShapefileRequired
	}

	return nil
}

// SetDefaults fills values yaml may have cleared
func (c *Config) SetDefaults() {
	if c.Kind == "" {
		c.Kind = "bubd"
	}

	if c.Marker == "" {
		c.Marker = "bubd"
	}

	if c.CanonicalBase == "" {
		c.CanonicalBase = "BUBD_TEMP"
	}

	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
}
