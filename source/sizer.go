package source

import "math/rand/v2"

// Sizer picks the size of the next chunk requested from a Reader.
type Sizer interface {
	Next() int
}

type fixedSize int

func (f fixedSize) Next() int { return int(f) }

func FixedSize(n int) Sizer {
	if n < 1 {
		n = 1
	}
	return fixedSize(n)
}

type randomSize struct {
	min, span int
	rng       *rand.Rand
}

func (r *randomSize) Next() int { return r.min + r.rng.IntN(r.span) }

// RandomSize returns sizes uniformly distributed in [lo, hi]. The same
// seed yields the same sequence.
func RandomSize(lo, hi int, seed uint64) Sizer {
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return &randomSize{min: lo, span: hi - lo + 1, rng: rand.New(rand.NewPCG(seed, seed))}
}
