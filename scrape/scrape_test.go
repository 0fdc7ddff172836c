package scrape

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFilesEmptyQueryYieldsNoMatches(t *testing.T) {
	path := writeTemp(t, "abcdefgh")
	matches, err := Files([]string{path}, "", DefaultSurroundingLines)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFilesFindsCaseFoldedMatches(t *testing.T) {
	contents := "ABCDEFGH\nIJKLMNOP\nQRSTUVWX\nYZ012345\nABCDEFGH ABCDEFGH\nIJKLMNOP IJKLMNOP\nQRSTUVWX QRSTUVWX"
	path := writeTemp(t, contents)

	matches, err := Files([]string{path}, "abc", DefaultSurroundingLines)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, 0, matches[0].Offset)
	assert.Equal(t, 3, matches[0].Length)
	assert.Equal(t, path, matches[0].Path)
}

func TestFilesNoMatchReturnsEmpty(t *testing.T) {
	path := writeTemp(t, "the quick brown fox")
	matches, err := Files([]string{path}, "cba", DefaultSurroundingLines)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFilesStripsBOM(t *testing.T) {
	contents := "\xef\xbb\xbfABCDEFGH\nIJKLMNOP"
	path := writeTemp(t, contents)

	matches, err := Files([]string{path}, "abc", DefaultSurroundingLines)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Offset)
}

func TestFilesMissingReturnsError(t *testing.T) {
	_, err := Files([]string{filepath.Join(t.TempDir(), "missing.txt")}, "x", DefaultSurroundingLines)
	assert.Error(t, err)
}
