// Package tree implements the hierarchical summary tree: a balanced
// tree of Bloom-filter unions over the leaf index.Chunks, searched by
// a depth-first prune-and-collect walk.
//
// Root file format. The tree is serialized depth-first, preorder:
//
//	magic  [16]byte  "bloomdex root 1\n"
//	<node>
//
// A node is:
//
//	bits        uint32
//	words       uint32
//	filter      [words]uint64
//	filesCount  uint32
//	leafCount   uint32      number of LazyIndex leaf refs
//	leaf refs   [leafCount]leafRef
//	childCount  uint32      number of child nodes (0 unless leafCount == 0)
//	children    [childCount]<node>  (recursive)
//
// Exactly one of leafCount/childCount is nonzero for any node but the
// (degenerate, single-file) root, mirroring the data model's
// leaf-xor-internal invariant.
//
// A leafRef is:
//
//	nameLen  uint32
//	name     [nameLen]byte
package tree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/gundermanc/bloomdex/bloom"
	"github.com/gundermanc/bloomdex/index"
	"github.com/gundermanc/bloomdex/parallel"
	"github.com/gundermanc/bloomdex/trigram"
)

const rootMagic = "bloomdex root 1\n"

// DefaultArity is the branching factor K used by Build when the
// caller does not override it. K=2 trades deeper trees for tighter,
// more selective unions at each node.
const DefaultArity = 2

// ErrDecode indicates a corrupt or truncated root file.
var ErrDecode = errors.New("tree: corrupt root")

// LazyIndex is a named on-disk reference to a serialized index.Chunk.
// Materializing it is on-demand and stateless: every Load call rereads
// the file from disk.
type LazyIndex struct {
	FileName string
}

// Load reads and decodes the chunk this reference names, from chunk
// files living under dir.
func (l LazyIndex) Load(dir string) (index.Chunk, error) {
	f, err := os.Open(filepath.Join(dir, l.FileName))
	if err != nil {
		return nil, fmt.Errorf("tree: load chunk %s: %w", l.FileName, err)
	}
	defer f.Close()
	return index.ReadChunk(f)
}

// Node is an interior or leaf-referencing node of the index tree.
// Exactly one of LeafRefs or Children is populated, except possibly at
// the root for a corpus small enough to fit in a single leaf chunk.
type Node struct {
	LeafRefs   []LazyIndex
	Children   []*Node
	Filter     *bloom.Filter
	FilesCount int
}

// Build constructs the tree bottom-up from a flat list of FileEntries,
// writing leaf chunks under dir with fresh unique names. arity <= 0
// uses DefaultArity.
func Build(entries []index.FileEntry, dir string, bits, arity int) (*Node, error) {
	if arity <= 0 {
		arity = DefaultArity
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tree: create %s: %w", dir, err)
	}

	leafBatchCount := ceilDiv(len(entries), arity)
	nodes := make([]*Node, 0, max(leafBatchCount, 1))
	for _, rng := range parallel.Batches(len(entries), leafBatchCount) {
		chunk := index.Chunk(entries[rng[0]:rng[1]])
		ref, err := writeChunk(dir, chunk)
		if err != nil {
			return nil, err
		}
		filter, err := unionEntries(chunk, bits)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{
			LeafRefs:   []LazyIndex{ref},
			Filter:     filter,
			FilesCount: len(chunk),
		})
	}
	if len(nodes) == 0 {
		// Empty corpus: a single empty leaf so the root is always valid.
		ref, err := writeChunk(dir, nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{
			LeafRefs:   []LazyIndex{ref},
			Filter:     bloom.New(nil, bits),
			FilesCount: 0,
		})
	}

	for len(nodes) > arity {
		parentBatchCount := ceilDiv(len(nodes), arity)
		var parents []*Node
		for _, rng := range parallel.Batches(len(nodes), parentBatchCount) {
			batch := nodes[rng[0]:rng[1]]
			parent, err := mergeChildren(batch)
			if err != nil {
				return nil, err
			}
			parents = append(parents, parent)
		}
		nodes = parents
	}

	root, err := mergeChildren(nodes)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func mergeChildren(children []*Node) (*Node, error) {
	if len(children) == 1 {
		// A singleton group just passes its only child through as
		// the parent, rather than wrapping it in a redundant layer.
		return children[0], nil
	}
	filters := make([]*bloom.Filter, len(children))
	filesCount := 0
	for i, c := range children {
		filters[i] = c.Filter
		filesCount += c.FilesCount
	}
	union, err := bloom.Union(filters...)
	if err != nil {
		return nil, err
	}
	return &Node{
		Children:   children,
		Filter:     union,
		FilesCount: filesCount,
	}, nil
}

func unionEntries(chunk index.Chunk, bits int) (*bloom.Filter, error) {
	if len(chunk) == 0 {
		return bloom.New(nil, bits), nil
	}
	filters := make([]*bloom.Filter, len(chunk))
	for i, entry := range chunk {
		filters[i] = entry.Filter
	}
	return bloom.Union(filters...)
}

func writeChunk(dir string, chunk index.Chunk) (LazyIndex, error) {
	name := uuid.NewString() + ".chunk"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return LazyIndex{}, fmt.Errorf("tree: write chunk: %w", err)
	}
	defer f.Close()
	if _, err := chunk.WriteTo(f); err != nil {
		return LazyIndex{}, fmt.Errorf("tree: write chunk: %w", err)
	}
	return LazyIndex{FileName: name}, nil
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Search descends the tree rooted at n, pruning subtrees whose union
// filter cannot possibly contain the query's trigrams, and returns the
// set of matching file paths plus the total number of Bloom
// comparisons performed (a pruning-quality diagnostic, not a
// correctness quantity).
func (n *Node) Search(query, dir string) (map[string]struct{}, int, error) {
	qfilter := bloom.New(trigram.EncodeAll(query), n.Filter.Bits())
	results := make(map[string]struct{})
	compared, err := n.search(qfilter, dir, results)
	return results, compared, err
}

func (n *Node) search(qfilter *bloom.Filter, dir string, results map[string]struct{}) (int, error) {
	ok, err := n.Filter.PossiblyContains(qfilter)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}

	compared := 0
	for _, child := range n.Children {
		c, err := child.search(qfilter, dir, results)
		if err != nil {
			return compared, err
		}
		compared += c
	}
	for _, ref := range n.LeafRefs {
		chunk, err := ref.Load(dir)
		if err != nil {
			return compared, err
		}
		for _, entry := range chunk {
			compared++
			ok, err := entry.Filter.PossiblyContains(qfilter)
			if err != nil {
				return compared, err
			}
			if ok {
				results[entry.Path] = struct{}{}
			}
		}
	}
	return compared, nil
}

// SortedPaths returns results as a sorted slice for stable display;
// Search's result set has no inherent order.
func SortedPaths(results map[string]struct{}) []string {
	out := make([]string, 0, len(results))
	for path := range results {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Save writes the tree rooted at root to dir/root.dat.
func Save(root *Node, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tree: create %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, "root.dat"))
	if err != nil {
		return fmt.Errorf("tree: save root: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(rootMagic); err != nil {
		return err
	}
	if err := writeNode(bw, root); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads the tree previously written to dir/root.dat.
func Load(dir string) (*Node, error) {
	f, err := os.Open(filepath.Join(dir, "root.dat"))
	if err != nil {
		return nil, fmt.Errorf("tree: load root: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic := make([]byte, len(rootMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("tree: read magic: %w", err)
	}
	if string(magic) != rootMagic {
		return nil, ErrDecode
	}
	return readNode(br)
}

func writeNode(w *bufio.Writer, n *Node) error {
	write := func(v interface{}) error { return binary.Write(w, binary.BigEndian, v) }

	words := n.Filter.Words()
	if err := write(uint32(n.Filter.Bits())); err != nil {
		return err
	}
	if err := write(uint32(len(words))); err != nil {
		return err
	}
	if err := write(words); err != nil {
		return err
	}
	if err := write(uint32(n.FilesCount)); err != nil {
		return err
	}
	if err := write(uint32(len(n.LeafRefs))); err != nil {
		return err
	}
	for _, ref := range n.LeafRefs {
		nameBytes := []byte(ref.FileName)
		if err := write(uint32(len(nameBytes))); err != nil {
			return err
		}
		if _, err := w.Write(nameBytes); err != nil {
			return err
		}
	}
	if err := write(uint32(len(n.Children))); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := writeNode(w, child); err != nil {
			return err
		}
	}
	return nil
}

func readNode(r *bufio.Reader) (*Node, error) {
	read := func(v interface{}) error { return binary.Read(r, binary.BigEndian, v) }

	var bits, wordCount uint32
	if err := read(&bits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := read(&wordCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	words := make([]uint64, wordCount)
	if err := read(words); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var filesCount, leafCount uint32
	if err := read(&filesCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := read(&leafCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	leafRefs := make([]LazyIndex, leafCount)
	for i := range leafRefs {
		var nameLen uint32
		if err := read(&nameLen); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		leafRefs[i] = LazyIndex{FileName: string(nameBytes)}
	}

	var childCount uint32
	if err := read(&childCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	children := make([]*Node, childCount)
	for i := range children {
		child, err := readNode(r)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}

	return &Node{
		LeafRefs:   leafRefs,
		Children:   children,
		Filter:     bloom.FromWords(words, int(bits)),
		FilesCount: int(filesCount),
	}, nil
}
