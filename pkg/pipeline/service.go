package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/footprint/pkg/aggregate"
	"github.com/ethpandaops/footprint/pkg/archive"
	"github.com/ethpandaops/footprint/pkg/changes"
	"github.com/ethpandaops/footprint/pkg/fetcher"
	"github.com/ethpandaops/footprint/pkg/importer"
	"github.com/ethpandaops/footprint/pkg/ledger"
	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Unit stages recorded in the ledger
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageImport  = "import"
)

// UnitPresent is the unit outcome when the layer was stored by an earlier run
const UnitPresent = "present"

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Service runs the pipeline stages against one store
type Service struct {
	log    logrus.FieldLogger
	config *Config

	store     store.Store
	ledger    ledger.Ledger
	fetcher   *fetcher.Fetcher
	extractor *archive.Extractor
	importer  *importer.Importer
	detector  *changes.Detector
	regions   []regions.Region

	now func() time.Time
}

// NewService assembles the stages from a validated configuration
func NewService(log logrus.FieldLogger, cfg *Config, st store.Store, led ledger.Ledger) (*Service, error) {
	if led == nil {
		led = ledger.NewNoop()
	}

	f, err := fetcher.New(log, &cfg.Source, cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	rs := cfg.Regions.Regions()

	return &Service{
		log:       log.WithField("component", "pipeline"),
		config:    cfg,
		store:     st,
		ledger:    led,
		fetcher:   f,
		extractor: archive.NewExtractor(log, cfg.TempDir, &cfg.Layer),
		importer:  importer.New(log, st, cfg.Layer.Kind),
		detector:  changes.NewDetector(log, st, cfg.Layer.Kind, rs, cfg.Changes.GapPolicy),
		regions:   rs,
		now:       time.Now,
	}, nil
}

// Run ingests every (region, year) unit and runs change detection. Years are handled
// in ascending order; the regions of a year run concurrently up to the configured
// limit and the year's change step waits for all of them.
func (s *Service) Run(ctx context.Context) (*ledger.Run, error) {
	run := s.newRun("run")

	state := changes.State{}

	for _, year := range s.config.Years.Years() {
		if err := s.ingestYear(ctx, run, year); err != nil {
			return s.finish(run, err)
		}

		next, report, err := s.detector.Step(ctx, state, year)
		if err != nil {
			return s.finish(run, err)
		}

		state = next
		run.Years = append(run.Years, summarize(report))
	}

	return s.finish(run, nil)
}

// RunChanges runs only change detection over the layers already stored
func (s *Service) RunChanges(ctx context.Context) (*ledger.Run, error) {
	run := s.newRun("changes")

	_, reports, err := s.detector.Fold(ctx, changes.State{}, s.config.Years.Years())

	for _, report := range reports {
		run.Years = append(run.Years, summarize(report))
	}

	return s.finish(run, err)
}

// Aggregate builds the report over the stored layers. It never writes to the store.
func (s *Service) Aggregate(ctx context.Context) (*aggregate.Report, error) {
	agg := aggregate.New(s.log, s.store, s.config.Layer.Kind)
	years := s.config.Years.Years()

	totals, err := agg.Aggregate(ctx, s.regions, years)
	if err != nil {
		return nil, err
	}

	yearChanges, err := agg.Changes(ctx, years)
	if err != nil {
		return nil, err
	}

	return &aggregate.Report{
		GeneratedAt: s.now().UTC(),
		From:        s.config.Years.From,
		To:          s.config.Years.To,
		Totals:      totals,
		Changes:     yearChanges,
	}, nil
}

func (s *Service) newRun(command string) *ledger.Run {
	run := &ledger.Run{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: s.now().UTC(),
		Units:     make(map[string]int),
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"command": command,
		"from":    s.config.Years.From,
		"to":      s.config.Years.To,
		"regions": len(s.regions),
	}).Info("Starting pipeline run")

	return run
}

// ingestYear processes every region of the year. Unit failures are recorded and
// skipped; only a fatal failure cancels the remaining units and is returned.
func (s *Service) ingestYear(ctx context.Context, run *ledger.Run, year int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	var mu sync.Mutex

	for _, region := range s.regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			label, err := s.unit(gctx, run.ID, region, year)

			mu.Lock()
			run.Units[label]++
			mu.Unlock()

			if outcome.IsFatal(err) {
				return err
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("year %d aborted: %w", year, err)
	}

	return nil
}

// unit runs fetch, extract and import for one region and year and records the result
func (s *Service) unit(ctx context.Context, runID string, region regions.Region, year int) (string, error) {
	stage, label, err := s.process(ctx, region, year)

	rec := ledger.Record{
		RunID:   runID,
		Region:  region.Code,
		Year:    year,
		Stage:   stage,
		Outcome: label,
		Layer:   s.importer.Name(year, region),
	}

	if err != nil {
		rec.Error = err.Error()

		if !outcome.IsFatal(err) {
			observability.RecordError(stage, label)
		}
	}

	if lerr := s.ledger.Record(context.WithoutCancel(ctx), rec); lerr != nil {
		s.log.WithError(lerr).WithFields(logrus.Fields{
			"region": region.Code,
			"year":   year,
		}).Warn("Failed to update ledger")
	}

	return label, err
}

func (s *Service) process(ctx context.Context, region regions.Region, year int) (stage, label string, err error) {
	// A stored layer needs no download.
	exists, err := s.importer.Exists(ctx, year, region)
	if err != nil {
		return StageImport, outcome.Label(err), err
	}

	if exists {
		return StageImport, UnitPresent, nil
	}

	archivePath, err := s.fetcher.Fetch(ctx, region, year)
	if err != nil {
		return StageFetch, outcome.Label(err), err
	}

	staged, err := s.extractor.ExtractAndLocate(archivePath, region, year)
	if err != nil {
		return StageExtract, outcome.Label(err), err
	}

	result, err := s.importer.Import(ctx, staged, year, region)
	if err != nil {
		return StageImport, outcome.Label(err), err
	}

	return StageImport, string(result), nil
}

func (s *Service) finish(run *ledger.Run, err error) (*ledger.Run, error) {
	run.FinishedAt = s.now().UTC()
	run.Status = StatusSuccess

	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
	}

	observability.RecordRun(run.Status, float64(run.FinishedAt.Unix()))

	// The summary is saved even when the run was interrupted.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if serr := s.ledger.SaveRun(ctx, *run); serr != nil {
		s.log.WithError(serr).Warn("Failed to save run summary")
	}

	log := s.log.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"status":   run.Status,
		"units":    run.Units,
		"duration": run.FinishedAt.Sub(run.StartedAt).String(),
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Pipeline run interrupted")
		} else {
			log.WithError(err).Error("Pipeline run failed")
		}

		return run, err
	}

	log.Info("Pipeline run finished")

	return run, nil
}

func summarize(report changes.YearReport) ledger.YearSummary {
	summary := ledger.YearSummary{
		Year:          report.Year,
		Outcome:       string(report.Outcome),
		Snapshot:      report.Snapshot,
		Change:        report.Change,
		SnapshotCount: report.SnapshotCount,
		ChangeCount:   report.ChangeCount,
	}

	if report.Err != nil {
		summary.Error = report.Err.Error()
	}

	return summary
}
