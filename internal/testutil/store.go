package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethpandaops/footprint/pkg/store"
)

var errNoFixture = errors.New("no fixture registered for path")

// Rect is an axis-aligned footprint used in place of real geometry
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether two closed rectangles share at least one point
func (r Rect) Intersects(o Rect) bool {
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// Square returns a unit square with its lower-left corner at (x, y)
func Square(x, y float64) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x + 1, MaxY: y + 1}
}

// Grid returns n disjoint unit squares laid out on row y
func Grid(n int, y float64) []Rect {
	out := make([]Rect, n)
	for i := range out {
		out[i] = Square(float64(i)*2, y)
	}

	return out
}

// Feature is a stored feature; Source and FID identify it across layers
type Feature struct {
	Source string
	FID    int
	Rect   Rect
}

// FakeStore is an in-memory store.Store. Imports read rectangles registered per
// file path; spatial predicates work on rectangles. Derived layers are rebuilt
// when their lineage changes, like the PostGIS store.
type FakeStore struct {
	mu       sync.Mutex
	layers   map[string][]Feature
	lineages map[string]string
	files    map[string][]Rect
	calls    map[string]int
	failures map[string]error
}

var _ store.Store = (*FakeStore)(nil)

// NewFakeStore creates an empty fake store
func NewFakeStore() *FakeStore {
	return &FakeStore{
		layers:   make(map[string][]Feature),
		lineages: make(map[string]string),
		files:    make(map[string][]Rect),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// AddLayer stores a layer directly
func (f *FakeStore) AddLayer(name string, rects ...Rect) {
	f.mu.Lock()
	defer f.mu.Unlock()

	features := make([]Feature, len(rects))
	for i, r := range rects {
		features[i] = Feature{Source: name, FID: i, Rect: r}
	}

	f.layers[name] = features
}

// RegisterFile makes Import of path yield rects
func (f *FakeStore) RegisterFile(path string, rects ...Rect) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = rects
}

// FailOn makes any mutating call targeting name fail with err. A nil err clears it.
func (f *FakeStore) FailOn(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.failures, name)
		return
	}

	f.failures[name] = err
}

// Layer returns the features of a layer
func (f *FakeStore) Layer(name string) ([]Feature, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	features, ok := f.layers[name]

	return append([]Feature(nil), features...), ok
}

// Names lists the stored layers in no particular order
func (f *FakeStore) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.layers))
	for name := range f.layers {
		out = append(out, name)
	}

	return out
}

// Calls returns how often a capability was invoked
func (f *FakeStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Mutations returns how many calls actually created or rebuilt a layer
func (f *FakeStore) Mutations() int {
	return f.Calls("created")
}

func (f *FakeStore) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["exists"]++
	_, ok := f.layers[name]

	return ok, nil
}

func (f *FakeStore) Count(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["count"]++

	features, ok := f.layers[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrLayerNotFound, name)
	}

	return int64(len(features)), nil
}

func (f *FakeStore) Import(_ context.Context, name, path string) (bool, error) {
	return f.create("import", name, nil, func() ([]Feature, error) {
		rects, ok := f.files[path]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errNoFixture, path)
		}

		features := make([]Feature, len(rects))
		for i, r := range rects {
			features[i] = Feature{Source: name, FID: i, Rect: r}
		}

		return features, nil
	})
}

func (f *FakeStore) Merge(_ context.Context, name string, sources []string) (bool, error) {
	lineage := func() string {
		parts := make([]string, len(sources))
		for i, src := range sources {
			parts[i] = f.lineage(src)
		}

		return store.MergeLineage(parts)
	}

	return f.create("merge", name, lineage, func() ([]Feature, error) {
		if len(sources) == 0 {
			return nil, store.ErrNoSources
		}

		var out []Feature

		for _, src := range sources {
			features, ok := f.layers[src]
			if !ok {
				return nil, fmt.Errorf("%w: %s", store.ErrLayerNotFound, src)
			}
			out = append(out, features...)
		}

		return out, nil
	})
}

func (f *FakeStore) SelectDisjoint(_ context.Context, name, source, against string) (bool, error) {
	lineage := func() string {
		return store.DisjointLineage(f.lineage(source), f.lineage(against))
	}

	return f.create("select_disjoint", name, lineage, func() ([]Feature, error) {
		current, ok := f.layers[source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrLayerNotFound, source)
		}

		prior, ok := f.layers[against]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrLayerNotFound, against)
		}

		out := make([]Feature, 0, len(current))

		for _, c := range current {
			hit := false

			for _, p := range prior {
				if c.Rect.Intersects(p.Rect) {
					hit = true
					break
				}
			}

			if !hit {
				out = append(out, c)
			}
		}

		return out, nil
	})
}

func (f *FakeStore) Close() error {
	return nil
}

func (f *FakeStore) lineage(name string) string {
	if l, ok := f.lineages[name]; ok {
		return l
	}

	return name
}

// create builds name unless it exists. With a lineage an existing layer is
// rebuilt when its recorded lineage differs; a failed rebuild keeps it.
func (f *FakeStore) create(op, name string, lineage func() string, build func() ([]Feature, error)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	var want string
	if lineage != nil {
		want = lineage()
	}

	if _, ok := f.layers[name]; ok {
		if lineage == nil || f.lineage(name) == want {
			return false, nil
		}
	}

	if err, ok := f.failures[name]; ok {
		return false, err
	}

	features, err := build()
	if err != nil {
		return false, err
	}

	f.layers[name] = features
	if lineage != nil {
		f.lineages[name] = want
	}

	f.calls["created"]++

	return true, nil
}
