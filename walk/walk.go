// Copyright 2020 The Go Authors. All rights reserved.
// Copyright 2021 Andrew Archibald. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package walk implements the directory-enumerator collaborator the
// indexing pipeline consumes: a recursive depth-first listing of file
// paths, always skipping ".git" trees.
package walk

import (
	"bufio"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Func is the callback invoked per visited path, modeled on
// fs.WalkDirFunc.
type Func = fs.WalkDirFunc

// SkipDir, returned from a Func, skips the rest of the named
// directory.
var SkipDir = fs.SkipDir

// Walker enumerates files under a root directory.
type Walker interface {
	// Walk visits every file and directory under root in lexical,
	// depth-first order, including root itself.
	Walk(root string, fn Func) error
}

// Files returns the flat list of regular file paths reachable from
// root via w, always excluding ".git" directories and skipping
// symlinks that don't resolve to a regular file.
func Files(w Walker, root string) ([]string, error) {
	var paths []string
	err := w.Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// File removed since its directory was listed: skip, don't
			// fail the walk. Broken symlinks are dropped by the Stat below.
			return nil
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			target, statErr := os.Stat(path)
			if statErr != nil || !target.Mode().IsRegular() {
				return nil
			}
		} else if !info.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// plainWalker is the default enumerator: a depth-first filesystem walk
// with no exclusion policy of its own; Files layers the ".git" skip on
// top of any Walker.
type plainWalker struct{}

// New returns the default Walker.
func New() Walker {
	return plainWalker{}
}

func (plainWalker) Walk(root string, fn Func) error {
	return filepath.WalkDir(root, fn)
}

// gitignoreWalker additionally excludes paths matched by .gitignore
// files encountered during the walk, and by the user's global and
// system gitignore patterns. This supplements the minimal
// directory-enumerator contract; callers that want exactly that
// contract use New() instead.
type gitignoreWalker struct {
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// NewGitignoreWalker returns a gitignore-aware Walker.
func NewGitignoreWalker() (Walker, error) {
	var w gitignoreWalker
	if err := w.loadGlobalPatterns(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (w *gitignoreWalker) loadGlobalPatterns() error {
	fsys := osfs.New("/")
	system, err := gitignore.LoadSystemPatterns(fsys)
	if err != nil {
		return err
	}
	global, err := gitignore.LoadGlobalPatterns(fsys)
	if err != nil {
		return err
	}
	patterns := global
	if len(system) != 0 {
		patterns = append(system, global...)
	}
	w.patterns = patterns
	w.matcher = gitignore.NewMatcher(patterns)
	return nil
}

// Walk descends root, calling fn for every file and directory.
// Directories named ".git" are always skipped, regardless of gitignore
// content, since they hold the repository's internal object store
// rather than searchable source.
func (w *gitignoreWalker) Walk(root string, fn Func) error {
	info, err := os.Lstat(root)
	if err != nil {
		return fn(root, nil, err)
	}
	err = w.walk(root, splitPath(root), &statDirEntry{info}, fn)
	if err == SkipDir {
		return nil
	}
	return err
}

func (w *gitignoreWalker) walk(path string, pathSplit []string, d fs.DirEntry, fn Func) error {
	if err := fn(path, d, nil); err != nil || !d.IsDir() {
		if err == SkipDir && d.IsDir() {
			return nil
		}
		return err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fn(path, d, err)
	}

	savedLen := len(w.patterns)
	if err := w.readGitignore(path, pathSplit); err != nil {
		if err := fn(path, d, err); err != nil {
			return err
		}
	}

	for _, child := range entries {
		name := child.Name()
		if name == ".git" && child.IsDir() {
			continue
		}
		childPath := filepath.Join(path, name)
		childSplit := append(append([]string{}, pathSplit...), name)

		if w.matcher.Match(childSplit, child.IsDir()) {
			log.Printf("walk: skipped %s: excluded by gitignore", childPath)
			continue
		}
		if err := w.walk(childPath, childSplit, child, fn); err != nil {
			if err == SkipDir {
				break
			}
			return err
		}
	}

	w.patterns = w.patterns[:savedLen]
	return nil
}

func (w *gitignoreWalker) readGitignore(dir string, pathSplit []string) error {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil
		}
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		w.patterns = append(w.patterns, gitignore.ParsePattern(line, pathSplit))
	}
	w.matcher = gitignore.NewMatcher(w.patterns)
	return s.Err()
}

type statDirEntry struct{ info fs.FileInfo }

func (d *statDirEntry) Name() string               { return d.info.Name() }
func (d *statDirEntry) IsDir() bool                { return d.info.IsDir() }
func (d *statDirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d *statDirEntry) Info() (fs.FileInfo, error) { return d.info, nil }

func splitPath(path string) []string {
	sep := string(os.PathSeparator)
	if path == sep {
		return []string{}
	}
	return strings.Split(strings.TrimPrefix(path, sep), sep)
}
