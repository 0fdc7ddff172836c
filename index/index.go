// Package index builds and serializes the leaf-level unit of the
// search engine: a FileEntry (a path plus its trigram Bloom filter)
// and a Chunk (an ordered, on-disk sequence of FileEntries).
//
// Chunk format. A chunk is a self-contained binary blob:
//
//	magic    [17]byte  "bloomdex chunk 1\n"
//	count    uint32    number of entries
//	entries  [count]entry
//
// Each entry has the form:
//
//	pathLen  uint32
//	path     [pathLen]byte
//	bits     uint32   filter bit width
//	words    uint32   filter word count
//	filter   [words]uint64
//
// All integers are big-endian. The format is private to this package
// and is not wire-compatible with anything outside it; only round-trip
// fidelity is guaranteed.
package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gundermanc/bloomdex/bloom"
	"github.com/gundermanc/bloomdex/trigram"
)

const chunkMagic = "bloomdex chunk 1\n"

// ErrDecode indicates a corrupt or truncated chunk file.
var ErrDecode = errors.New("index: corrupt chunk")

// FileEntry is one indexed file: its path and the Bloom filter over
// its trigram set.
type FileEntry struct {
	Path   string
	Filter *bloom.Filter
}

// Chunk is an ordered sequence of FileEntries, the unit persisted to
// a single leaf file by the tree builder.
type Chunk []FileEntry

// File reads path as UTF-8 text, normalizes and trigrams its content,
// and returns the resulting FileEntry. The only side effect is the
// single read of path; callers are responsible for logging and
// skipping on error per the corpus-level best-effort policy.
func File(path string, bits int) (FileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("index: read %s: %w", path, err)
	}
	inputs := trigram.EncodeAll(string(data))
	return FileEntry{Path: path, Filter: bloom.New(inputs, bits)}, nil
}

// WriteTo serializes the chunk in the format documented above.
func (c Chunk) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n := int64(0)

	write := func(v interface{}) error {
		return binary.Write(bw, binary.BigEndian, v)
	}

	if _, err := bw.WriteString(chunkMagic); err != nil {
		return 0, err
	}
	n += int64(len(chunkMagic))

	if err := write(uint32(len(c))); err != nil {
		return n, err
	}
	n += 4

	for _, entry := range c {
		pathBytes := []byte(entry.Path)
		if err := write(uint32(len(pathBytes))); err != nil {
			return n, err
		}
		n += 4
		if _, err := bw.Write(pathBytes); err != nil {
			return n, err
		}
		n += int64(len(pathBytes))

		words := entry.Filter.Words()
		if err := write(uint32(entry.Filter.Bits())); err != nil {
			return n, err
		}
		n += 4
		if err := write(uint32(len(words))); err != nil {
			return n, err
		}
		n += 4
		if err := write(words); err != nil {
			return n, err
		}
		n += int64(len(words)) * 8
	}

	if err := bw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

// ReadChunk deserializes a chunk previously written by WriteTo.
func ReadChunk(r io.Reader) (Chunk, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(chunkMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("index: read magic: %w", err)
	}
	if string(magic) != chunkMagic {
		return nil, ErrDecode
	}

	read := func(v interface{}) error {
		return binary.Read(br, binary.BigEndian, v)
	}

	var count uint32
	if err := read(&count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	chunk := make(Chunk, count)
	for i := range chunk {
		var pathLen uint32
		if err := read(&pathLen); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(br, pathBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}

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

		chunk[i] = FileEntry{
			Path:   string(pathBytes),
			Filter: bloom.FromWords(words, int(bits)),
		}
	}
	return chunk, nil
}
