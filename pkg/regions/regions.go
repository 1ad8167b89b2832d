// Package regions holds the closed set of administrative regions and years the
// pipeline sweeps.
package regions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrEmptyCatalog         = errors.New("region catalog is empty")
	ErrInvalidCode          = errors.New("invalid code")
	ErrDuplicateParent      = errors.New("duplicate parent code")
	ErrDuplicateRegion      = errors.New("duplicate region code")
	ErrDuplicateName        = errors.New("duplicate region name")
	ErrEmptyGroup           = errors.New("parent group has no regions")
	ErrMissingName          = errors.New("region name is required")
	ErrRegionOutsideParent  = errors.New("region code does not start with its parent code")
	ErrRegionNotFound       = errors.New("region not found")
	ErrInvalidYearRange     = errors.New("invalid year range")
	ErrYearRangeUnspecified = errors.New("year range is required")
)

var codePattern = regexp.MustCompile(`^[0-9A-Za-z]+$`)

// Region is an administrative unit for which a yearly archive is published
type Region struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Parent is filled from the enclosing group; it only feeds URL construction.
	Parent string `yaml:"-"`
}

func (r Region) String() string {
	return fmt.Sprintf("%s (%s)", r.Code, r.Name)
}

// Group is the set of regions published under one parent code
type Group struct {
	Code    string   `yaml:"code"`
	Regions []Region `yaml:"regions"`
}

// Catalog is the ordered region configuration
type Catalog []Group

// Validate checks codes are well formed and (parent, region) pairs are consistent:
// parent codes unique, region codes unique across the whole catalog, every region
// code prefixed by its parent code and names unique.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}

	parents := make(map[string]struct{}, len(c))
	codes := make(map[string]string)
	names := make(map[string]string)

	for _, g := range c {
		if !codePattern.MatchString(g.Code) {
			return fmt.Errorf("%w: parent %q", ErrInvalidCode, g.Code)
		}

		if _, dup := parents[g.Code]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateParent, g.Code)
		}
		parents[g.Code] = struct{}{}

		if len(g.Regions) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyGroup, g.Code)
		}

		for _, r := range g.Regions {
			if !codePattern.MatchString(r.Code) {
				return fmt.Errorf("%w: region %q under %s", ErrInvalidCode, r.Code, g.Code)
			}

			if !strings.HasPrefix(r.Code, g.Code) {
				return fmt.Errorf("%w: %s under %s", ErrRegionOutsideParent, r.Code, g.Code)
			}

			if prev, dup := codes[r.Code]; dup {
				return fmt.Errorf("%w: %s under %s and %s", ErrDuplicateRegion, r.Code, prev, g.Code)
			}
			codes[r.Code] = g.Code

			if strings.TrimSpace(r.Name) == "" {
				return fmt.Errorf("%w: %s", ErrMissingName, r.Code)
			}

			if prev, dup := names[r.Name]; dup {
				return fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateName, r.Name, prev, r.Code)
			}
			names[r.Name] = r.Code
		}
	}

	return nil
}

// Regions flattens the catalog in configuration order with parents filled in
func (c Catalog) Regions() []Region {
	out := make([]Region, 0, len(c))

	for _, g := range c {
		for _, r := range g.Regions {
			r.Parent = g.Code
			out = append(out, r)
		}
	}

	return out
}

// Lookup finds a region by code
func (c Catalog) Lookup(code string) (Region, error) {
	for _, r := range c.Regions() {
		if r.Code == code {
			return r, nil
		}
	}

	return Region{}, fmt.Errorf("%w: %s", ErrRegionNotFound, code)
}

// Filter narrows the catalog to the given region codes, keeping catalog order.
// An empty filter returns the catalog unchanged.
func (c Catalog) Filter(codes []string) (Catalog, error) {
	if len(codes) == 0 {
		return c, nil
	}

	want := make(map[string]bool, len(codes))
	for _, code := range codes {
		if _, err := c.Lookup(code); err != nil {
			return nil, err
		}
		want[code] = true
	}

	out := make(Catalog, 0, len(c))

	for _, g := range c {
		var kept []Region

		for _, r := range g.Regions {
			if want[r.Code] {
				kept = append(kept, r)
			}
		}

		if len(kept) > 0 {
			out = append(out, Group{Code: g.Code, Regions: kept})
		}
	}

	return out, nil
}

// Default returns the voivodeship capitals covered by the BDOT10k sweep, keyed by
// voivodeship TERYT code with powiat TERYT region codes.
func Default() Catalog {
	return Catalog{
		{Code: "02", Regions: []Region{{Code: "0264", Name: "Wrocław"}}},
		{Code: "04", Regions: []Region{{Code: "0461", Name: "Bydgoszcz"}, {Code: "0463", Name: "Toruń"}}},
		{Code: "06", Regions: []Region{{Code: "0663", Name: "Lublin"}}},
		{Code: "08", Regions: []Region{{Code: "0861", Name: "Gorzów Wlkp."}, {Code: "0862", Name: "Zielona Góra"}}},
		{Code: "10", Regions: []Region{{Code: "1061", Name: "Łódź"}}},
		{Code: "12", Regions: []Region{{Code: "1261", Name: "Kraków"}}},
		{Code: "14", Regions: []Region{{Code: "1465", Name: "Warszawa"}}},
		{Code: "16", Regions: []Region{{Code: "1661", Name: "Opole"}}},
		{Code: "18", Regions: []Region{{Code: "1863", Name: "Rzeszów"}}},
		{Code: "20", Regions: []Region{{Code: "2061", Name: "Białystok"}}},
		{Code: "22", Regions: []Region{{Code: "2261", Name: "Gdańsk"}}},
		{Code: "24", Regions: []Region{{Code: "2469", Name: "Katowice"}}},
		{Code: "26", Regions: []Region{{Code: "2661", Name: "Kielce"}}},
		{Code: "28", Regions: []Region{{Code: "2862", Name: "Olsztyn"}}},
		{Code: "30", Regions: []Region{{Code: "3064", Name: "Poznań"}}},
		{Code: "32", Regions: []Region{{Code: "3262", Name: "Szczecin"}}},
	}
}
