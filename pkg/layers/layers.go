// Package layers derives the canonical names and local paths the pipeline uses as
// idempotence keys.
package layers

import (
	"fmt"
	"path/filepath"
)

// Name is the stored layer name for one region and year: <kind>_<year>_<code>
func Name(kind string, year int, code string) string {
	return fmt.Sprintf("%s_%d_%s", kind, year, code)
}

// MergedName is the regional snapshot name for years where several regions have data
func MergedName(kind string, year int) string {
	return fmt.Sprintf("%s_merged_%d", kind, year)
}

// ChangeName is the name of the layer holding the year's new features
func ChangeName(kind string, year int) string {
	return fmt.Sprintf("%s_merged_new_%d", kind, year)
}

// Paths is the on-disk cache layout of one (region, year) unit
type Paths struct {
	// Archive is the downloaded container, <root>/<code>_<year>.zip
	Archive string
	// Extracted is the unpacked archive, <root>/<code>_<year>
	Extracted string
	// Clean holds the normalized sidecar set, <root>/clean_<code>_<year>
	Clean string
}

// TempPaths derives the cache layout; it depends only on the region code and year
// so it stays stable across runs.
func TempPaths(root, code string, year int) Paths {
	stem := fmt.Sprintf("%s_%d", code, year)

	return Paths{
		Archive:   filepath.Join(root, stem+".zip"),
		Extracted: filepath.Join(root, stem),
		Clean:     filepath.Join(root, "clean_"+stem),
	}
}
