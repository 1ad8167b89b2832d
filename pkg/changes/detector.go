// Package changes derives yearly snapshots and the footprints new in each year.
//
// The detector is a fold over ascending years. The only state carried between
// years is State, which names the snapshot retained from the previous step; it is
// passed in and returned explicitly so the ordering dependency is visible to
// callers.
package changes

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/sirupsen/logrus"
)

// Detector errors
var (
	ErrYearsNotAscending = errors.New("years must be strictly ascending")
	ErrSubsetViolation   = errors.New("change layer has more features than its snapshot")
)

// State is the snapshot retained between years. The zero value means no prior snapshot.
type State struct {
	Snapshot string `json:"snapshot,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// HasSnapshot reports whether a prior snapshot is retained
func (s State) HasSnapshot() bool {
	return s.Snapshot != ""
}

// Outcome classifies what happened to one year
type Outcome string

const (
	// OutcomeNoData means no region had a stored layer for the year
	OutcomeNoData Outcome = "no_data"
	// OutcomeBaseline means a snapshot was formed but there was nothing to diff against
	OutcomeBaseline Outcome = "baseline"
	// OutcomeDiffed means a change layer was produced against the prior snapshot
	OutcomeDiffed Outcome = "diffed"
	// OutcomeMergeFailed means the regional layers could not be merged
	OutcomeMergeFailed Outcome = "merge_failed"
	// OutcomeDiffFailed means the snapshot exists but the change selection failed
	OutcomeDiffFailed Outcome = "diff_failed"
)

// YearReport describes one step of the fold
type YearReport struct {
	Year          int      `json:"year" yaml:"year"`
	Layers        []string `json:"layers" yaml:"layers"`
	Snapshot      string   `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Against       string   `json:"against,omitempty" yaml:"against,omitempty"`
	AgainstYear   int      `json:"againstYear,omitempty" yaml:"againstYear,omitempty"`
	Change        string   `json:"change,omitempty" yaml:"change,omitempty"`
	SnapshotCount int64    `json:"snapshotCount" yaml:"snapshotCount"`
	ChangeCount   int64    `json:"changeCount" yaml:"changeCount"`
	Outcome       Outcome  `json:"outcome" yaml:"outcome"`
	Err           error    `json:"-" yaml:"-"`
}

// Detector runs the per-year snapshot and change steps against the store
type Detector struct {
	log     logrus.FieldLogger
	store   store.Store
	kind    string
	regions []regions.Region
	policy  GapPolicy
}

// NewDetector creates a detector over the regions in catalog order
func NewDetector(log logrus.FieldLogger, st store.Store, kind string, rs []regions.Region, policy GapPolicy) *Detector {
	if policy == "" {
		policy = GapReset
	}

	return &Detector{
		log:     log.WithField("component", "changes"),
		store:   st,
		kind:    kind,
		regions: rs,
		policy:  policy,
	}
}

// Fold applies Step to every year in order, threading the state through. It stops
// at the first error, returning the state and reports accumulated so far.
func (d *Detector) Fold(ctx context.Context, initial State, years []int) (State, []YearReport, error) {
	for i := 1; i < len(years); i++ {
		if years[i] <= years[i-1] {
			return initial, nil, fmt.Errorf("%w: %d after %d", ErrYearsNotAscending, years[i], years[i-1])
		}
	}

	state := initial
	reports := make([]YearReport, 0, len(years))

	for _, year := range years {
		next, report, err := d.Step(ctx, state, year)
		if err != nil {
			return state, reports, err
		}

		state = next
		reports = append(reports, report)
	}

	return state, reports, nil
}

// Step performs one transition. Spatial operation failures are reported in the
// YearReport; the returned error is reserved for failures that should stop the
// fold, such as an unreachable store or a cancelled context.
func (d *Detector) Step(ctx context.Context, prev State, year int) (State, YearReport, error) {
	report := YearReport{Year: year}
	log := d.log.WithField("year", year)

	if prev.HasSnapshot() && prev.Year >= year {
		return prev, report, fmt.Errorf("%w: %d after %d", ErrYearsNotAscending, year, prev.Year)
	}

	if prev.HasSnapshot() && d.policy == GapReset && prev.Year != year-1 {
		log.WithField("retained_year", prev.Year).Warn("Retained snapshot is not from the previous year, dropping it")

		prev = State{}
	}

	present, err := d.collect(ctx, year)
	if err != nil {
		return prev, report, err
	}

	report.Layers = present

	if len(present) == 0 {
		report.Outcome = OutcomeNoData
		d.finish(log, &report)

		if d.policy == GapCarry {
			return prev, report, nil
		}

		return State{}, report, nil
	}

	snapshot, err := d.snapshot(ctx, year, present)
	if err != nil {
		if ctx.Err() != nil {
			return prev, report, ctx.Err()
		}

		report.Outcome = OutcomeMergeFailed
		report.Err = outcome.New(outcome.KindSpatialOp, layers.MergedName(d.kind, year), err)
		d.finish(log, &report)

		if d.policy == GapCarry {
			return prev, report, nil
		}

		return State{}, report, nil
	}

	report.Snapshot = snapshot
	report.SnapshotCount = d.count(ctx, log, snapshot)
	next := State{Snapshot: snapshot, Year: year}

	if !prev.HasSnapshot() {
		report.Outcome = OutcomeBaseline
		log.WithField("snapshot", snapshot).Info("No prior snapshot, year skipped for diffing")
		d.finish(log, &report)

		return next, report, nil
	}

	report.Against = prev.Snapshot
	report.AgainstYear = prev.Year
	change := layers.ChangeName(d.kind, year)

	if _, err := d.store.SelectDisjoint(ctx, change, snapshot, prev.Snapshot); err != nil {
		if ctx.Err() != nil {
			return prev, report, ctx.Err()
		}

		report.Outcome = OutcomeDiffFailed
		report.Err = outcome.New(outcome.KindSpatialOp, change, err)
		d.finish(log, &report)

		return next, report, nil
	}

	report.Change = change
	report.ChangeCount = d.count(ctx, log, change)
	report.Outcome = OutcomeDiffed

	if report.ChangeCount > report.SnapshotCount {
		report.Err = fmt.Errorf("%w: %s has %d, %s has %d",
			ErrSubsetViolation, change, report.ChangeCount, snapshot, report.SnapshotCount)
	}

	d.finish(log, &report)

	return next, report, nil
}

// collect lists the stored layers of the year in catalog order
func (d *Detector) collect(ctx context.Context, year int) ([]string, error) {
	var present []string

	for _, region := range d.regions {
		name := layers.Name(d.kind, year, region.Code)

		ok, err := d.store.Exists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check layer %s: %w", name, err)
		}

		if ok {
			present = append(present, name)
		}
	}

	return present, nil
}

// snapshot returns the single layer itself or merges many into the year's merged
// layer. The store rebuilds the merged layer when the set of present layers changed
// since it was last built.
func (d *Detector) snapshot(ctx context.Context, year int, present []string) (string, error) {
	if len(present) == 1 {
		return present[0], nil
	}

	name := layers.MergedName(d.kind, year)

	built, err := d.store.Merge(ctx, name, present)
	if err != nil {
		return "", err
	}

	d.log.WithFields(logrus.Fields{
		"year":    year,
		"layer":   name,
		"sources": len(present),
		"built":   built,
	}).Debug("Regional snapshot merged")

	return name, nil
}

func (d *Detector) count(ctx context.Context, log logrus.FieldLogger, name string) int64 {
	n, err := d.store.Count(ctx, name)
	if err != nil {
		log.WithError(err).WithField("layer", name).Warn("Failed to count layer features")

		return 0
	}

	return n
}

func (d *Detector) finish(log logrus.FieldLogger, report *YearReport) {
	fields := logrus.Fields{
		"outcome":  report.Outcome,
		"layers":   len(report.Layers),
		"snapshot": report.Snapshot,
	}

	if report.Change != "" {
		fields["change"] = report.Change
		fields["change_features"] = report.ChangeCount
		fields["against_year"] = report.AgainstYear
	}

	entry := log.WithFields(fields)

	switch {
	case report.Err != nil:
		entry.WithError(report.Err).Error("Change detection step failed")
		observability.RecordError("changes", outcome.Label(report.Err))
	case report.Outcome == OutcomeNoData:
		entry.Info("No data for this year")
	default:
		entry.Info("Change detection step complete")
	}

	observability.RecordYear(report.Year, string(report.Outcome), report.SnapshotCount, report.ChangeCount)
}
