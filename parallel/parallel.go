// Package parallel provides the CPU-sized fan-out/fan-in driver used
// both for indexing a directory and for the tree-less flat search
// variant. Work is split into independent batches with no shared
// mutable state; results are reduced through commutative/associative
// operations (set union, list concatenation).
package parallel

import (
	"context"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gundermanc/bloomdex/bloom"
	"github.com/gundermanc/bloomdex/index"
	"github.com/gundermanc/bloomdex/trigram"
)

// Workers returns the default worker count: the reported CPU count.
func Workers() int {
	return runtime.NumCPU()
}

// Batches splits [0,n) into count contiguous, approximately equal
// half-open ranges [start,end). A count of zero or less is clamped to
// one batch covering everything, which keeps callers from looping
// forever when the caller naively derives count from a tiny input
// (see tree.Build, which derives count from ceil(N/K)). Empty
// trailing batches are dropped.
func Batches(n, count int) [][2]int {
	if count <= 0 {
		count = 1
	}
	itemsPerBatch := (n + count - 1) / count

	var batches [][2]int
	for i := 0; i < count; i++ {
		start := i * itemsPerBatch
		end := start + itemsPerBatch
		if end > n {
			end = n
		}
		if end <= start {
			continue
		}
		batches = append(batches, [2]int{start, end})
	}
	return batches
}

// IndexDirectory indexes every path in paths across workers
// goroutines, logging and skipping per-file I/O failures. The order
// of the returned FileEntries is unspecified.
func IndexDirectory(ctx context.Context, paths []string, bits, workers int) ([]index.FileEntry, error) {
	if workers <= 0 {
		workers = Workers()
	}

	batches := Batches(len(paths), workers)
	out := make([][]index.FileEntry, len(batches))
	g, _ := errgroup.WithContext(ctx)

	for i, rng := range batches {
		i, rng := i, rng
		g.Go(func() error {
			var entries []index.FileEntry
			for _, path := range paths[rng[0]:rng[1]] {
				entry, err := index.File(path, bits)
				if err != nil {
					log.Printf("index: skipping %s: %v", path, err)
					continue
				}
				entries = append(entries, entry)
			}
			out[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range out {
		total += len(r)
	}
	all := make([]index.FileEntry, 0, total)
	for _, r := range out {
		all = append(all, r...)
	}
	return all, nil
}

// FlatSearch filters entries against query across workers goroutines
// and unions the surviving paths. It is the tree-less variant of
// search, retained for small indexes or diagnostics; tree-based search
// (see package tree) does not use this, since the tree's pruning walk
// already dominates and parallelism wouldn't reduce the number of
// Bloom comparisons performed.
func FlatSearch(ctx context.Context, entries []index.FileEntry, query string, bits, workers int) (map[string]struct{}, error) {
	if workers <= 0 {
		workers = Workers()
	}
	qfilter := bloom.New(trigram.EncodeAll(query), bits)

	g, _ := errgroup.WithContext(ctx)
	batches := Batches(len(entries), workers)
	out := make([]map[string]struct{}, len(batches))

	for i, rng := range batches {
		i, rng := i, rng
		g.Go(func() error {
			matched := make(map[string]struct{})
			for _, entry := range entries[rng[0]:rng[1]] {
				ok, err := entry.Filter.PossiblyContains(qfilter)
				if err != nil {
					return err
				}
				if ok {
					matched[entry.Path] = struct{}{}
				}
			}
			out[i] = matched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string]struct{})
	for _, m := range out {
		for path := range m {
			results[path] = struct{}{}
		}
	}
	return results, nil
}
