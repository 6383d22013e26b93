package walker

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cruciblehq/bundlegen/internal/catalog"
	"golang.org/x/sync/errgroup"
)

// Source of library records.
type Lookuper interface {
	Lookup(name string) (catalog.Record, bool)
}

// A library name that the catalog does not describe.
//
// Not fatal: the library stays in the closure with host-only eligibility.
type UnresolvedDependencyWarning struct {
	Dependency string `json:"dependency"`           // Name missing from the catalog.
	RequiredBy string `json:"requiredBy,omitempty"` // Library that declared it; empty for roots.
}

func (w UnresolvedDependencyWarning) Error() string {
	if w.RequiredBy == "" {
		return fmt.Sprintf("library %q is not in the catalog, using the device copy", w.Dependency)
	}
	return fmt.Sprintf("dependency %q of %q is not in the catalog, using the device copy", w.Dependency, w.RequiredBy)
}

// Set of libraries reachable from a set of roots.
type Closure struct {
	Roots      []string                      // Declared roots, sorted.
	Libraries  []string                      // Every library in the closure, sorted.
	Unresolved []UnresolvedDependencyWarning // Names missing from the catalog, sorted.
}

// Reports whether name is part of the closure.
func (c *Closure) Contains(name string) bool {
	_, ok := slices.BinarySearch(c.Libraries, name)
	return ok
}

// Reports whether name was reached but is missing from the catalog.
func (c *Closure) IsUnresolved(name string) bool {
	for _, w := range c.Unresolved {
		if w.Dependency == name {
			return true
		}
	}
	return false
}

// Returns the closure made of exactly the given roots. Used when dependency
// walking is disabled.
func Roots(roots []string) *Closure {
	libs := unique(roots)
	return &Closure{Roots: libs, Libraries: slices.Clone(libs)}
}

// Configures [Walk].
type Option func(*options)

type options struct {
	workers int
}

// Expands up to n libraries of a frontier concurrently. Values below 2 walk
// sequentially.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Computes the dependency closure of roots.
//
// Returns an error only when ctx is cancelled.
func Walk(ctx context.Context, roots []string, cat Lookuper, opts ...Option) (*Closure, error) {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	w := &walk{
		cat:     cat,
		visited: make(map[string]bool),
	}

	frontier := make([]string, 0, len(roots))
	for _, r := range unique(roots) {
		if _, ok := cat.Lookup(r); !ok {
			w.record(r, "")
		}
		if w.claim(r) {
			frontier = append(frontier, r)
		}
	}

	for depth := 0; len(frontier) > 0; depth++ {
		slog.Debug("expanding dependency frontier", "depth", depth, "libraries", len(frontier))

		next, err := w.expand(ctx, frontier, o.workers)
		if err != nil {
			return nil, err
		}
		frontier = next
	}

	return w.closure(roots), nil
}

// State of a single walk.
type walk struct {
	cat        Lookuper
	mu         sync.Mutex
	visited    map[string]bool
	unresolved []UnresolvedDependencyWarning
}

// Marks name as visited. Returns false if it already was.
func (w *walk) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.visited[name] {
		return false
	}
	w.visited[name] = true
	return true
}

// Expands every library of the frontier and returns the newly claimed
// dependencies, sorted.
func (w *walk) expand(ctx context.Context, frontier []string, workers int) ([]string, error) {
	var (
		mu   sync.Mutex
		next []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, name := range frontier {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found := w.visit(name)
			mu.Lock()
			next = append(next, found...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.Sort(next)
	return next, nil
}

// Looks up one library and claims its dependencies. Returns the names that
// were not visited before. Unknown libraries have no edges to follow; they
// were recorded when first reached.
func (w *walk) visit(name string) []string {
	rec, ok := w.cat.Lookup(name)
	if !ok {
		return nil
	}

	var claimed []string
	for _, dep := range rec.DependsOn {
		if _, known := w.cat.Lookup(dep); !known {
			w.record(dep, name)
		}
		if w.claim(dep) {
			claimed = append(claimed, dep)
		}
	}
	return claimed
}

// Records an edge to a library missing from the catalog.
func (w *walk) record(dep, requiredBy string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unresolved = append(w.unresolved, UnresolvedDependencyWarning{Dependency: dep, RequiredBy: requiredBy})
}

// Assembles the sorted result.
func (w *walk) closure(roots []string) *Closure {
	w.mu.Lock()
	defer w.mu.Unlock()

	libs := make([]string, 0, len(w.visited))
	for name := range w.visited {
		libs = append(libs, name)
	}
	slices.Sort(libs)

	unresolved := slices.Clone(w.unresolved)
	slices.SortFunc(unresolved, func(a, b UnresolvedDependencyWarning) int {
		return cmp.Or(cmp.Compare(a.Dependency, b.Dependency), cmp.Compare(a.RequiredBy, b.RequiredBy))
	})
	unresolved = slices.Compact(unresolved)

	return &Closure{
		Roots:      unique(roots),
		Libraries:  libs,
		Unresolved: unresolved,
	}
}

// Returns a sorted copy of names without duplicates or empty strings.
func unique(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
