package trigram

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

func TestExtractShortInputs(t *testing.T) {
	for _, s := range []string{"", "a", "ab"} {
		assert.Empty(t, Extract(Normalize(s)), "input %q", s)
	}
}

func TestExtractOne(t *testing.T) {
	got := Extract(Normalize("abc"))
	assert.Equal(t, []Trigram{{'a', 'b', 'c'}}, got)
}

func TestExtractSliding(t *testing.T) {
	got := Extract(Normalize("abcde"))
	assert.Equal(t, []Trigram{
		{'a', 'b', 'c'},
		{'b', 'c', 'd'},
		{'c', 'd', 'e'},
	}, got)
}

func TestNormalizeFoldsAndStrips(t *testing.T) {
	assert.Equal(t, Extract(Normalize("A!b@C")), Extract(Normalize("abc")))
}

func TestEncode(t *testing.T) {
	tri := Trigram{'a', 'b', 'c'}
	want := uint32('a')<<16 | uint32('b')<<8 | uint32('c')
	assert.Equal(t, want, tri.Encode())
}

func TestEncodeAllEmpty(t *testing.T) {
	assert.Nil(t, EncodeAll(""))
	assert.Nil(t, EncodeAll("!!"))
}

func TestEncodeAllMatchesExtract(t *testing.T) {
	got := EncodeAll("hello world")
	trigrams := Extract(Normalize("hello world"))
	require := make([]uint32, len(trigrams))
	for i, tri := range trigrams {
		require[i] = tri.Encode()
	}
	assert.Equal(t, require, got)
}

// TestNormalizeIsDeterministic fingerprints Normalize's output with
// xxhash instead of comparing byte slices directly: two inputs that
// fold to the same trigram stream must
// fingerprint identically, and unrelated inputs practically never
// collide.
func TestNormalizeIsDeterministic(t *testing.T) {
	a := xxhash.Sum64(Normalize("Hello, World! 123"))
	b := xxhash.Sum64(Normalize("hello world 123"))
	assert.Equal(t, a, b)

	c := xxhash.Sum64(Normalize("goodbye, world! 123"))
	assert.NotEqual(t, a, c)
}
