// Package entropy supplies the permutation source used to shuffle
// payout order on randomized pools. The default source is a
// hash-stream shuffle: the same seed always yields the same order, so
// a pool's payout order is auditable from its recorded seed.
package entropy

import (
	"crypto/sha256"
	"encoding/binary"

	"go.uber.org/fx"
)

// Module provides the deterministic hash-stream source.
var Module = fx.Provide(NewHashSource)

// Source produces a permutation of 1..n for the given seed.
type Source interface {
	Permute(seed int64, n int) []int
}

type hashSource struct{}

func NewHashSource() Source {
	return hashSource{}
}

// Permute runs a Fisher-Yates shuffle driven by a SHA-256 counter
// stream over the seed.
func (hashSource) Permute(seed int64, n int) []int {
	if n <= 0 {
		return nil
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i + 1
	}

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	for i, counter := n-1, uint64(0); i > 0; i, counter = i-1, counter+1 {
		binary.BigEndian.PutUint64(buf[8:], counter)
		digest := sha256.Sum256(buf[:])
		j := int(binary.BigEndian.Uint64(digest[:8]) % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}

	return perm
}
