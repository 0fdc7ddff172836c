// Command bloomdex is the search engine's CLI surface: index a
// directory tree into a Bloom-filter summary tree, search it for a
// literal query, or drive it interactively from a REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/fatih/color"

	"github.com/gundermanc/bloomdex/bloom"
	"github.com/gundermanc/bloomdex/parallel"
	"github.com/gundermanc/bloomdex/scrape"
	"github.com/gundermanc/bloomdex/tree"
	"github.com/gundermanc/bloomdex/walk"
)

var usageMessage = `usage: bloomdex <command> [arguments]

bloomdex builds and queries a trigram Bloom-filter index of a source
tree, the same way cindex/csearch build and query a posting-list
index, but summarized hierarchically instead of inverted.

The commands are:

	index <path>          build .index/ under path
	search <path> <query> search the index built for path
	repl <path>           load the index for path, then read queries
	                      from stdin until EOF

Flags follow the command name. Every command accepts:

	-color         force colored output even when stdout isn't a terminal
	-cpuprofile f  write a CPU profile to f

index also accepts:

	-workers N     override the default (NumCPU) worker count
	-arity N       tree branching factor (default 2)

search and repl also accept:

	-context N     lines of context kept around each match (default 5)
`

func usage() {
	fmt.Fprint(os.Stderr, usageMessage)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "index":
		runIndex(rest)
	case "search":
		runSearch(rest)
	case "repl":
		runRepl(rest)
	default:
		fmt.Fprintf(os.Stderr, "bloomdex: unknown command %q\n\n", cmd)
		usage()
	}
}

func indexDir(root string) string {
	return filepath.Join(root, ".index")
}

// startCPUProfile mirrors cindex's -cpuprofile handling: an empty path
// is a no-op, otherwise profiling runs until the returned func is
// called (typically via defer).
func startCPUProfile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cpuprofile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cpuprofile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func runIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	workers := fs.Int("workers", 0, "worker count (0 = NumCPU)")
	arity := fs.Int("arity", tree.DefaultArity, "tree branching factor")
	useColor := fs.Bool("color", false, "force colored output")
	cpuProfile := fs.String("cpuprofile", "", "write a CPU profile to this file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bloomdex index [flags] <path>")
		os.Exit(2)
	}
	root := fs.Arg(0)
	color.NoColor = !*useColor && color.NoColor

	stopProfile, err := startCPUProfile(*cpuProfile)
	if err != nil {
		log.Fatalf("index: %v", err)
	}
	defer stopProfile()

	w, err := walk.NewGitignoreWalker()
	if err != nil {
		log.Printf("index: gitignore patterns unavailable, falling back: %v", err)
		w = walk.New()
	}

	paths, err := walk.Files(w, root)
	if err != nil {
		log.Fatalf("index: enumerate %s: %v", root, err)
	}
	color.Cyan("found %d files under %s", len(paths), root)

	start := time.Now()
	entries, err := parallel.IndexDirectory(context.Background(), paths, bloom.DefaultBits, *workers)
	if err != nil {
		log.Fatalf("index: %v", err)
	}
	color.Cyan("indexed %d files in %s", len(entries), time.Since(start))

	dir := indexDir(root)
	root2, err := tree.Build(entries, dir, bloom.DefaultBits, *arity)
	if err != nil {
		log.Fatalf("index: build tree: %v", err)
	}
	if err := tree.Save(root2, dir); err != nil {
		log.Fatalf("index: save tree: %v", err)
	}
	color.Green("done: wrote index for %d files to %s", root2.FilesCount, dir)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	surroundingLines := fs.Int("context", scrape.DefaultSurroundingLines, "lines of context per match")
	useColor := fs.Bool("color", false, "force colored output")
	cpuProfile := fs.String("cpuprofile", "", "write a CPU profile to this file")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: bloomdex search [flags] <path> <query>")
		os.Exit(2)
	}
	root, query := fs.Arg(0), fs.Arg(1)
	color.NoColor = !*useColor && color.NoColor

	stopProfile, err := startCPUProfile(*cpuProfile)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	defer stopProfile()

	dir := indexDir(root)
	idx, err := tree.Load(dir)
	if err != nil {
		log.Fatalf("search: load %s: %v", dir, err)
	}
	runQuery(idx, dir, query, *surroundingLines)
}

func runRepl(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	surroundingLines := fs.Int("context", scrape.DefaultSurroundingLines, "lines of context per match")
	useColor := fs.Bool("color", false, "force colored output")
	cpuProfile := fs.String("cpuprofile", "", "write a CPU profile to this file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bloomdex repl [flags] <path>")
		os.Exit(2)
	}
	root := fs.Arg(0)
	color.NoColor = !*useColor && color.NoColor

	stopProfile, err := startCPUProfile(*cpuProfile)
	if err != nil {
		log.Fatalf("repl: %v", err)
	}
	defer stopProfile()

	dir := indexDir(root)
	idx, err := tree.Load(dir)
	if err != nil {
		log.Fatalf("repl: load %s: %v", dir, err)
	}
	color.Cyan("loaded index for %d files; enter queries, Ctrl-D to quit", idx.FilesCount)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		query := scanner.Text()
		if query != "" {
			runQuery(idx, dir, query, *surroundingLines)
		}
		fmt.Print("> ")
	}
}

func runQuery(idx *tree.Node, dir, query string, surroundingLines int) {
	start := time.Now()
	results, compared, err := idx.Search(query, dir)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	paths := tree.SortedPaths(results)

	matches, err := scrape.Files(paths, query, surroundingLines)
	if err != nil {
		log.Fatalf("search: scrape: %v", err)
	}
	for _, m := range matches {
		color.Yellow("%s:%d", m.Path, m.Offset)
		fmt.Println(m.Context)
		fmt.Println()
	}

	narrowed := 0.0
	if idx.FilesCount > 0 {
		narrowed = 100 * float64(len(paths)) / float64(idx.FilesCount)
	}
	color.Cyan(
		"narrowed search to %d of %d files (%.1f%%) using %d bloom comparisons in %s",
		len(paths), idx.FilesCount, narrowed, compared, time.Since(start),
	)
}
