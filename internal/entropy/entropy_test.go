package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermuteIsDeterministic(t *testing.T) {
	src := NewHashSource()

	first := src.Permute(42, 10)
	second := src.Permute(42, 10)
	assert.Equal(t, first, second)
}

func TestPermuteDiffersBySeed(t *testing.T) {
	src := NewHashSource()

	a := src.Permute(1, 20)
	b := src.Permute(2, 20)
	assert.NotEqual(t, a, b)
}

func TestPermuteIsValidPermutation(t *testing.T) {
	src := NewHashSource()

	for _, n := range []int{1, 2, 5, 50} {
		perm := src.Permute(7, n)
		require.Len(t, perm, n)

		seen := make(map[int]bool, n)
		for _, p := range perm {
			assert.GreaterOrEqual(t, p, 1)
			assert.LessOrEqual(t, p, n)
			assert.False(t, seen[p], "duplicate position %d", p)
			seen[p] = true
		}
	}
}

func TestPermuteEmpty(t *testing.T) {
	src := NewHashSource()
	assert.Nil(t, src.Permute(3, 0))
}
