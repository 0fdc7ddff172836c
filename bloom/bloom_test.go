package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmpty(t *testing.T) {
	f := New(nil, 64)
	assert.Equal(t, []uint64{0}, f.Words())
}

func TestBitWrapping(t *testing.T) {
	for i, want := range []uint64{
		0b0000_0001,
		0b0000_0010,
		0b0000_0100,
		0b0000_1000,
		0b0001_0000,
		0b0010_0000,
		0b0100_0000,
		0b1000_0000,
	} {
		f := New([]uint32{uint32(i)}, 1)
		assert.Equalf(t, want, f.Words()[0], "input %d", i)
	}
	// 64 wraps back to bit 0 of word 0 for a single-word (64-bit) filter.
	f := New([]uint32{64}, 1)
	assert.Equal(t, uint64(1), f.Words()[0])
}

func TestWordMapping(t *testing.T) {
	f := New([]uint32{0}, 128)
	assert.Equal(t, uint64(1), f.Words()[0])
	assert.Equal(t, uint64(0), f.Words()[1])

	f = New([]uint32{64}, 128)
	assert.Equal(t, uint64(0), f.Words()[0])
	assert.Equal(t, uint64(1), f.Words()[1])
}

func TestUnionRequiresSameWidth(t *testing.T) {
	a := New(nil, 64)
	b := New(nil, 128)
	_, err := Union(a, b)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Union()
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestUnionContainsInputs(t *testing.T) {
	a := New([]uint32{1, 2, 3}, 64)
	b := New([]uint32{100, 200}, 64)
	u, err := Union(a, b)
	require.NoError(t, err)

	ok, err := u.PossiblyContains(a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.PossiblyContains(b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPossiblyContainsRequiresSameWidth(t *testing.T) {
	a := New(nil, 64)
	b := New(nil, 128)
	_, err := a.PossiblyContains(b)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestEmptyFilterContainsEmptyOnly(t *testing.T) {
	empty := New(nil, DefaultBits)
	nonEmpty := New([]uint32{42}, DefaultBits)

	ok, err := empty.PossiblyContains(empty)
	require.NoError(t, err)
	assert.True(t, ok, "empty filter must possibly-contain empty query")

	ok, err = empty.PossiblyContains(nonEmpty)
	require.NoError(t, err)
	assert.False(t, ok)

	// Zero is a subset of everything: a non-empty filter always
	// possibly-contains the empty filter.
	ok, err = nonEmpty.PossiblyContains(empty)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPossiblyContainsMonotoneUnderUnion(t *testing.T) {
	a := New([]uint32{7, 19, 400}, DefaultBits)
	b := New([]uint32{55, 900}, DefaultBits)
	u, err := Union(a, b)
	require.NoError(t, err)

	for _, x := range [][]uint32{{7}, {19}, {400}, {55}, {900}} {
		sub := New(x, DefaultBits)
		ok, err := u.PossiblyContains(sub)
		require.NoError(t, err)
		assert.True(t, ok, "union must contain every member's trigrams")
	}
}

func TestFromWordsRoundTrip(t *testing.T) {
	original := New([]uint32{1, 999, 70000}, DefaultBits)
	restored := FromWords(original.Words(), original.Bits())
	assert.Equal(t, original.Words(), restored.Words())

	ok, err := restored.PossiblyContains(original)
	require.NoError(t, err)
	assert.True(t, ok)
}
