// Package prng provides a deterministic io.Reader over a seeded PRNG,
// used to drive faker.SetCryptoSource so fixture generation is
// reproducible across test runs. Adapted verbatim from pkg/prng — a
// seeded-reader wrapper has no domain semantics to change between the
// spreadsheet live-view and the index advisor.
package prng

import (
	"encoding/binary"
	"io"
	"math/rand"
)

// Reader is a deterministic io.Reader backed by a math/rand RNG.
type Reader struct {
	r *rand.Rand
}

// New returns a new deterministic PRNG reader seeded by an integer.
func New(seed int64) io.Reader {
	return &Reader{r: rand.New(rand.NewSource(seed))}
}

// Read fills p with pseudorandom bytes.
func (r *Reader) Read(p []byte) (int, error) {
	n := len(p)
	var buf [8]byte
	for i := 0; i < n; i += 8 {
		v := r.r.Int63() // 63-bit random value
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		copy(p[i:], buf[:])
	}
	return n, nil
}
