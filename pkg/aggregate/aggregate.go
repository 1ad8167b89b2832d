// Package aggregate sums stored feature counts for reporting. It only reads from
// the store.
package aggregate

import (
	"context"
	"fmt"

	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/sirupsen/logrus"
)

// Total is the summed feature count of one region across the year range
type Total struct {
	Code   string        `json:"code" yaml:"code"`
	Name   string        `json:"name" yaml:"name"`
	Parent string        `json:"parent" yaml:"parent"`
	Count  int64         `json:"count" yaml:"count"`
	Years  map[int]int64 `json:"years,omitempty" yaml:"years,omitempty"`
}

// YearChange is the size of one year's change layer
type YearChange struct {
	Year    int    `json:"year" yaml:"year"`
	Layer   string `json:"layer" yaml:"layer"`
	Present bool   `json:"present" yaml:"present"`
	Count   int64  `json:"count" yaml:"count"`
}

// Aggregator reads layer counts from the store
type Aggregator struct {
	log   logrus.FieldLogger
	store store.Reader
	kind  string
}

// New creates an aggregator for layers of kind
func New(log logrus.FieldLogger, r store.Reader, kind string) *Aggregator {
	return &Aggregator{
		log:   log.WithField("component", "aggregate"),
		store: r,
		kind:  kind,
	}
}

// Aggregate returns one total per region in the given order. Years without a stored
// layer contribute zero.
func (a *Aggregator) Aggregate(ctx context.Context, rs []regions.Region, years []int) ([]Total, error) {
	totals := make([]Total, 0, len(rs))

	for _, region := range rs {
		total := Total{
			Code:   region.Code,
			Name:   region.Name,
			Parent: region.Parent,
			Years:  make(map[int]int64),
		}

		for _, year := range years {
			n, ok, err := a.countIfExists(ctx, layers.Name(a.kind, year, region.Code))
			if err != nil {
				return nil, err
			}

			if ok {
				total.Years[year] = n
				total.Count += n
			}
		}

		totals = append(totals, total)
	}

	a.log.WithFields(logrus.Fields{
		"regions": len(rs),
		"years":   len(years),
	}).Debug("Aggregated stored layers")

	return totals, nil
}

// Changes returns the change layer size of every year
func (a *Aggregator) Changes(ctx context.Context, years []int) ([]YearChange, error) {
	out := make([]YearChange, 0, len(years))

	for _, year := range years {
		name := layers.ChangeName(a.kind, year)

		n, ok, err := a.countIfExists(ctx, name)
		if err != nil {
			return nil, err
		}

		out = append(out, YearChange{Year: year, Layer: name, Present: ok, Count: n})
	}

	return out, nil
}

// Mapping turns totals into the region-name to count mapping consumed by reports
func Mapping(totals []Total) map[string]int64 {
	out := make(map[string]int64, len(totals))
	for _, t := range totals {
		out[t.Name] += t.Count
	}

	return out
}

func (a *Aggregator) countIfExists(ctx context.Context, name string) (int64, bool, error) {
	ok, err := a.store.Exists(ctx, name)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check layer %s: %w", name, err)
	}

	if !ok {
		return 0, false, nil
	}

	n, err := a.store.Count(ctx, name)
	if err != nil {
		return 0, false, fmt.Errorf("failed to count layer %s: %w", name, err)
	}

	return n, true, nil
}
