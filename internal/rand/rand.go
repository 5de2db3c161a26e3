// Package rand wraps a PCG32 generator so that every random draw made by
// the simulation comes from a single seedable source.
package rand

import (
	"time"

	"github.com/MichaelTJones/pcg"
)

// pcg stream selector; any odd constant works.
const pcgSequence = 0xda3e39cb94b95bdb

// Rand is not safe for concurrent use. Each sim.Engine owns one.
type Rand struct {
	r *pcg.PCG32
}

// New returns a generator seeded with s. A zero seed selects a
// time-based seed.
func New(s int64) *Rand {
	r := &Rand{r: pcg.NewPCG32()}
	if s == 0 {
		s = time.Now().UnixNano()
	}
	r.Seed(s)
	return r
}

func (r *Rand) Seed(s int64) {
	r.r.Seed(uint64(s), pcgSequence)
}

func (r *Rand) Uint32() uint32 {
	return r.r.Random()
}

// Intn returns a uniform value in [0,n). n must be positive.
func (r *Rand) Intn(n int) int {
	return int(r.r.Bounded(uint32(n)))
}

// Float64 returns a uniform value in [0,1) with 53 bits of precision.
func (r *Rand) Float64() float64 {
	hi := uint64(r.r.Random())
	lo := uint64(r.r.Random())
	return float64(hi<<21|lo>>11) / (1 << 53)
}

// Range returns a uniform value in [lo,hi).
func (r *Rand) Range(lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// Bernoulli reports whether a trial with success probability p succeeded.
func (r *Rand) Bernoulli(p float64) bool {
	return r.Float64() < p
}

// Read fills p with random bytes. It never fails; it exists so the
// generator can feed io.Reader consumers such as uuid.NewRandomFromReader.
func (r *Rand) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 4 {
		v := r.r.Random()
		for j := 0; j < 4 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}

// SampleSlice uniformly samples an element of a non-empty slice.
func SampleSlice[T any](r *Rand, slice []T) T {
	return slice[r.Intn(len(slice))]
}
