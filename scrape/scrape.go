// Package scrape implements the match-scraping pass: given a list of
// candidate file paths (typically the Bloom-filter search result) and
// a literal query, it opens each file and finds real, case-folded
// substring hits, returning a snippet of surrounding context for each.
//
// This is deliberately a correctness pass distinct from THE CORE: the
// Bloom filter is an over-approximation, so it may surface zero real
// hits even for a file the tree search matched.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gundermanc/bloomdex/parallel"
)

// DefaultSurroundingLines is the number of lines of context kept
// around a match, split evenly before and after.
const DefaultSurroundingLines = 5

// Match is one literal hit of a query within a file.
type Match struct {
	Path    string
	Offset  int
	Length  int
	Context string
}

// Files scans every path for case-folded occurrences of query,
// returning zero or more Matches per file. An empty query yields no
// matches: the scraper is the correctness pass that filters the Bloom
// layer's over-approximation, and an empty query can't meaningfully
// narrow anything.
func Files(paths []string, query string, surroundingLines int) ([]Match, error) {
	if len(query) == 0 {
		return nil, nil
	}

	var matches []Match
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scrape: read %s: %w", path, err)
		}
		matches = append(matches, scanFile(path, data, query, surroundingLines)...)
	}
	return matches, nil
}

// ParallelFiles is the fan-out counterpart to Files, partitioning
// paths across workers goroutines the same way package parallel does
// for indexing and flat search.
func ParallelFiles(ctx context.Context, paths []string, query string, surroundingLines, workers int) ([]Match, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = parallel.Workers()
	}

	batches := parallel.Batches(len(paths), workers)
	results := make([][]Match, len(batches))
	g, _ := errgroup.WithContext(ctx)

	for i, rng := range batches {
		i, rng := i, rng
		g.Go(func() error {
			m, err := Files(paths[rng[0]:rng[1]], query, surroundingLines)
			results[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Match
	for _, m := range results {
		all = append(all, m...)
	}
	return all, nil
}

func scanFile(path string, data []byte, query string, surroundingLines int) []Match {
	text := dropBOM(data)
	lowered := bytes.ToLower(text)
	loweredQuery := bytes.ToLower([]byte(query))

	var matches []Match
	for i := 0; i+len(loweredQuery) <= len(lowered); i++ {
		if !bytes.Equal(lowered[i:i+len(loweredQuery)], loweredQuery) {
			continue
		}
		matches = append(matches, Match{
			Path:    path,
			Offset:  i,
			Length:  len(loweredQuery),
			Context: formatContext(text, lowered, i, len(loweredQuery), surroundingLines),
		})
	}
	return matches
}

func dropBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		return data[3:]
	}
	return data
}

// formatContext expands [offset, offset+length) outward by roughly
// surroundingLines/2 newlines in each direction and returns the
// resulting slice of the original (non-lowered) text.
func formatContext(text, lowered []byte, offset, length, surroundingLines int) string {
	perDirection := surroundingLines / 2

	expandedOffset := offset
	lines := 0
	for i := offset - 1; i >= 0; i-- {
		c := lowered[i]
		if c == '\r' || c == '\n' {
			lines++
			if lines >= perDirection+1 {
				break
			}
		}
		expandedOffset = i
	}

	expandedEnd := offset + length
	lines = 0
	for i := offset + length; i < len(lowered); i++ {
		c := lowered[i]
		if c == '\r' || c == '\n' {
			lines++
			if lines >= perDirection+1 {
				break
			}
		}
		expandedEnd = i + 1
	}

	return string(text[expandedOffset:expandedEnd])
}
