package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is rendered
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// ErrInvalidFormat is returned for an unknown report format
var ErrInvalidFormat = errors.New("invalid report format")

// Config selects report format and destination. An empty output writes to stdout.
type Config struct {
	Format Format `yaml:"format" default:"table"`
	Output string `yaml:"output"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Format {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
}

// Report is everything a report renders
type Report struct {
	GeneratedAt time.Time    `json:"generatedAt" yaml:"generatedAt"`
	From        int          `json:"from" yaml:"from"`
	To          int          `json:"to" yaml:"to"`
	Totals      []Total      `json:"totals" yaml:"totals"`
	Changes     []YearChange `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// Grand is the sum over all regions
func (r *Report) Grand() int64 {
	var sum int64
	for _, t := range r.Totals {
		sum += t.Count
	}

	return sum
}

// Write renders the report to w
func Write(w io.Writer, format Format, r *Report) error {
	switch format {
	case FormatTable:
		return writeTable(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(r); err != nil {
			return err
		}

		return enc.Close()
	case FormatCSV:
		return writeCSV(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

// WriteFile renders the report into path, creating parent directories
func WriteFile(path string, format Format, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return outcome.New(outcome.KindLocalIO, path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return outcome.New(outcome.KindLocalIO, path, err)
	}

	if err := Write(f, format, r); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return outcome.New(outcome.KindLocalIO, path, err)
	}

	return nil
}

func writeTable(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "REGION\tCODE\tBUILDINGS %d-%d\n", r.From, r.To)

	for _, t := range r.Totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Code, humanize.Comma(t.Count))
	}

	fmt.Fprintf(tw, "TOTAL\t\t%s\n", humanize.Comma(r.Grand()))

	if len(r.Changes) > 0 {
		fmt.Fprintf(tw, "\nYEAR\tCHANGE LAYER\tNEW BUILDINGS\n")

		for _, c := range r.Changes {
			count := "-"
			if c.Present {
				count = humanize.Comma(c.Count)
			}

			fmt.Fprintf(tw, "%d\t%s\t%s\n", c.Year, c.Layer, count)
		}
	}

	return tw.Flush()
}

func writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)

	header := []string{"code", "name", "parent", "total"}
	for year := r.From; year <= r.To; year++ {
		header = append(header, strconv.Itoa(year))
	}

	if err := cw.Write(header); err != nil {
		return err
	}

	for _, t := range r.Totals {
		row := []string{t.Code, t.Name, t.Parent, strconv.FormatInt(t.Count, 10)}
		for year := r.From; year <= r.To; year++ {
			row = append(row, strconv.FormatInt(t.Years[year], 10))
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
