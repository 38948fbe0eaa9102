// Package cmsketch implements a count-min sketch application module: a
// WorkerHooks consumer that counts per-flow packet frequency without
// forwarding, giving the plug-in contract a realistic monitoring-only
// consumer (spec §8's RSS/worker-partitioning invariants need a
// consumer that actually inspects every packet it is handed).
//
// Grounded on original_source/benchmark/{include,src}/sc_sketch's
// cm_sketch: the same row/seed/counter-matrix shape and
// hash-then-increment update loop. The original's rte_spinlock_t
// guards one process-wide counters array shared by every lcore; this
// port instead gives each worker its own private Sketch in
// State.Sketch, since spec §3/§5 constrain PerCoreAppState to
// single-writer, no-shared-mutation -- so there is nothing left for a
// lock to protect. WorkerAllExit folds every worker's Sketch into one
// process-wide total the way the original's __cm_evaluate reports
// aggregate figures at exit.
package cmsketch

import (
	"github.com/cespare/xxhash/v2"
)

// Sketch is one count-min sketch: NbRows independent hash rows, each
// NbCountersPerRow wide, counted into a single flattened slice.
type Sketch struct {
	NbRows           uint32
	NbCountersPerRow uint32
	counters         []uint32
	seeds            []uint64
}

// NewSketch allocates a zeroed sketch with rows rows of cols counters
// each, hashed under seeds (one per row). len(seeds) must equal rows.
func NewSketch(rows, cols uint32, seeds []uint64) *Sketch {
	return &Sketch{
		NbRows:           rows,
		NbCountersPerRow: cols,
		counters:         make([]uint32, rows*cols),
		seeds:            seeds,
	}
}

// DefaultSeeds derives rows deterministic seeds from a single base seed,
// mirroring the original's precomputed hash_seeds array without
// depending on an external random source.
func DefaultSeeds(rows uint32, base uint64) []uint64 {
	seeds := make([]uint64, rows)
	for i := range seeds {
		seeds[i] = xxhash.Sum64(appendUint32(nil, uint32(i))) ^ base
	}
	return seeds
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Update increments, for every row, the counter key hashes to under
// that row's seed.
func (s *Sketch) Update(key []byte) {
	for row := uint32(0); row < s.NbRows; row++ {
		col := s.column(row, key)
		s.counters[row*s.NbCountersPerRow+col]++
	}
}

// Estimate returns the count-min estimate for key: the minimum counter
// value across all rows, which count-min sketches guarantee never
// under-counts the true frequency.
func (s *Sketch) Estimate(key []byte) uint32 {
	min := uint32(0)
	for row := uint32(0); row < s.NbRows; row++ {
		col := s.column(row, key)
		v := s.counters[row*s.NbCountersPerRow+col]
		if row == 0 || v < min {
			min = v
		}
	}
	return min
}

func (s *Sketch) column(row uint32, key []byte) uint32 {
	h := xxhash.NewWithSeed(s.seeds[row])
	h.Write(key)
	return uint32(h.Sum64() % uint64(s.NbCountersPerRow))
}

// Reset zeroes every counter, matching the original's __cm_clean.
func (s *Sketch) Reset() {
	for i := range s.counters {
		s.counters[i] = 0
	}
}

// MergeInto adds s's counters into dst, which must share s's shape.
// Used by WorkerAllExit to fold every worker's private sketch into one
// process-wide total.
func (s *Sketch) MergeInto(dst *Sketch) {
	for i, v := range s.counters {
		dst.counters[i] += v
	}
}
