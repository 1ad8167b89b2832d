// Package importer loads staged layers into the geospatial store under their
// canonical names.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/sirupsen/logrus"
)

// Result tells whether an import created a layer
type Result string

const (
	// ResultImported means a new stored layer was created
	ResultImported Result = "imported"
	// ResultSkipped means the layer already existed and nothing changed
	ResultSkipped Result = "skipped"
)

// Importer writes staged layers into the store
type Importer struct {
	log   logrus.FieldLogger
	store store.Store
	kind  string
}

// New creates an importer naming layers with kind
func New(log logrus.FieldLogger, st store.Store, kind string) *Importer {
	return &Importer{
		log:   log.WithField("component", "importer"),
		store: st,
		kind:  kind,
	}
}

// Name is the canonical stored layer name for the unit
func (i *Importer) Name(year int, region regions.Region) string {
	return layers.Name(i.kind, year, region.Code)
}

// Exists reports whether the unit's layer is already stored
func (i *Importer) Exists(ctx context.Context, year int, region regions.Region) (bool, error) {
	return i.store.Exists(ctx, i.Name(year, region))
}

// Import loads the staged layer at path. An existing layer makes the call a no-op
// reporting ResultSkipped. A rejected conversion is returned as KindImportFailed.
func (i *Importer) Import(ctx context.Context, path string, year int, region regions.Region) (Result, error) {
	start := time.Now()
	name := i.Name(year, region)

	log := i.log.WithFields(logrus.Fields{
		"region": region.Code,
		"year":   year,
		"layer":  name,
	})

	exists, err := i.store.Exists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check layer %s: %w", name, err)
	}

	if exists {
		log.Info("Layer already stored, skipped")
		observability.RecordUnit("import", string(ResultSkipped), time.Since(start).Seconds())

		return ResultSkipped, nil
	}

	created, err := i.store.Import(ctx, name, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		log.WithError(err).Error("Layer import failed")
		observability.RecordUnit("import", string(outcome.KindImportFailed), time.Since(start).Seconds())

		return "", outcome.New(outcome.KindImportFailed, name, err)
	}

	if !created {
		// Another worker created the layer between the check and the import.
		log.Info("Layer already stored, skipped")
		observability.RecordUnit("import", string(ResultSkipped), time.Since(start).Seconds())

		return ResultSkipped, nil
	}

	log.Info("Layer imported")
	observability.RecordUnit("import", string(ResultImported), time.Since(start).Seconds())

	return ResultImported, nil
}
