package commerce

import (
	"math"
	"unicode/utf16"
)

const lcgModulus = 2147483647

// seededRandom is a small deterministic generator seeded from a string, so an
// order id always resolves to the same mock order on every host.
type seededRandom struct {
	seed int32
}

func newSeededRandom(s string) *seededRandom {
	h := uint32(0x811c9dc5)
	for _, c := range utf16.Encode([]rune(s)) {
		h ^= uint32(c)
		h *= 0x01000193
	}
	return &seededRandom{seed: int32(h)}
}

// next returns a value in [0, 1].
func (r *seededRandom) next() float64 {
	product := int32(uint32(r.seed) * 48271)
	r.seed = int32(int64(product) % lcgModulus)
	return float64(r.seed&math.MaxInt32) / lcgModulus
}

// intn returns floor(next() * n), clamped to n-1 when next() yields exactly 1.
func (r *seededRandom) intn(n int) int {
	i := int(math.Floor(r.next() * float64(n)))
	if i >= n {
		i = n - 1
	}
	return i
}

func pick[T any](r *seededRandom, items []T) T {
	return items[r.intn(len(items))]
}
