package store

import (
	"context"
	"time"

	"github.com/ethpandaops/footprint/pkg/observability"
)

type instrumented struct {
	next Store
}

// Instrument wraps s so every capability call is recorded in store metrics
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

func record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordStoreOperation(operation, status, time.Since(start).Seconds())
}

func (i *instrumented) Exists(ctx context.Context, name string) (bool, error) {
	start := time.Now()
	ok, err := i.next.Exists(ctx, name)
	record("exists", start, err)

	return ok, err
}

func (i *instrumented) Count(ctx context.Context, name string) (int64, error) {
	start := time.Now()
	n, err := i.next.Count(ctx, name)
	record("count", start, err)

	return n, err
}

func (i *instrumented) Import(ctx context.Context, name, path string) (bool, error) {
	start := time.Now()
	created, err := i.next.Import(ctx, name, path)
	record("import", start, err)

	return created, err
}

func (i *instrumented) Merge(ctx context.Context, name string, sources []string) (bool, error) {
	start := time.Now()
	created, err := i.next.Merge(ctx, name, sources)
	record("merge", start, err)

	return created, err
}

func (i *instrumented) SelectDisjoint(ctx context.Context, name, source, against string) (bool, error) {
	start := time.Now()
	created, err := i.next.SelectDisjoint(ctx, name, source, against)
	record("select_disjoint", start, err)

	return created, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
