// Package store defines the narrow contract the pipeline needs from a persistent
// geospatial store. Imported layers are create-if-absent by name. Merged and
// disjoint layers are derived: the store records the lineage they were built from
// and rebuilds them when it differs. Every mutating capability reports whether it
// wrote anything.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// Store errors
var (
	ErrLayerNotFound = errors.New("stored layer not found")
	ErrNoSources     = errors.New("merge needs at least one source layer")
	ErrInvalidName   = errors.New("invalid layer name")
)

// Reader is the read-only part of the store
type Reader interface {
	// Exists reports whether a layer with the name is stored
	Exists(ctx context.Context, name string) (bool, error)
	// Count returns the number of features in the layer
	Count(ctx context.Context, name string) (int64, error)
}

// Store is the full geospatial store capability set
type Store interface {
	Reader

	// Import loads the file-set at path into a new layer. It is a no-op returning
	// false when the layer already exists.
	Import(ctx context.Context, name, path string) (bool, error)
	// Merge unions the source layers into name. No-op when name was already
	// built from the same sources; otherwise name is replaced.
	Merge(ctx context.Context, name string, sources []string) (bool, error)
	// SelectDisjoint stores the features of source that intersect no feature of
	// against. No-op when name was already built from the same two inputs.
	SelectDisjoint(ctx context.Context, name, source, against string) (bool, error)
	// Close releases the store
	Close() error
}

// MergeLineage describes a merge of layers with the given lineages. Order does not
// matter.
func MergeLineage(sources []string) string {
	sorted := slices.Clone(sources)
	slices.Sort(sorted)

	return "merge(" + strings.Join(sorted, ",") + ")"
}

// DisjointLineage describes a disjoint selection of source against prior
func DisjointLineage(source, against string) string {
	return "disjoint(" + source + ";" + against + ")"
}
