// Package latency implements the round-trip timestamp instrumentation
// and offline tail-latency computation described in spec §4.7/§4.8:
// a bounded per-worker ring of TsTable records, and a stable merge
// sort over fused microsecond values feeding a percentile lookup.
package latency

import "time"

// MaxRingRecords bounds a Ring to at most 2^20-1 records (spec §4.7).
const MaxRingRecords = 1<<20 - 1

// TsTable is one round trip's four timestamps, in nanoseconds since an
// arbitrary epoch consistent across the run (spec §4.7): the sender
// stamps ClientSendNS before submitting; the echo server appends
// ServerRecvNS then ServerSendNS; the receiver appends ClientRecvNS.
type TsTable struct {
	ClientSendNS int64
	ServerRecvNS int64
	ServerSendNS int64
	ClientRecvNS int64
}

// RoundTripNS returns the end-to-end latency this record recorded.
func (t TsTable) RoundTripNS() int64 {
	return t.ClientRecvNS - t.ClientSendNS
}

// Ring is a per-worker bounded buffer of TsTable records. Once full,
// the oldest record is overwritten, per spec §4.7's bounded-ring
// wording -- a worker that outruns its own draining does not grow
// memory without bound.
type Ring struct {
	buf   []TsTable
	next  int
	count int
}

// NewRing creates a Ring holding at most capacity records, clamped to
// MaxRingRecords.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	if capacity > MaxRingRecords {
		capacity = MaxRingRecords
	}
	return &Ring{buf: make([]TsTable, capacity)}
}

// Append records one completed round trip, overwriting the oldest
// entry once the ring is full.
func (r *Ring) Append(t TsTable) {
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len reports how many records the ring currently holds.
func (r *Ring) Len() int { return r.count }

// Snapshot returns a copy of every record currently held, oldest
// first. The copy means the caller can sort or retain it without
// racing a concurrent Append.
func (r *Ring) Snapshot() []TsTable {
	out := make([]TsTable, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	// full ring: oldest is at r.next (about to be overwritten next).
	n := copy(out, r.buf[r.next:])
	copy(out[n:], r.buf[:r.next])
	return out
}

// MergeSort stably sorts us in ascending order, returning a new slice;
// the input is left untouched. Merge sort is used instead of an
// in-place quadratic sort because sample counts routinely exceed 10^6
// and the allocation pattern here (one scratch buffer of length n,
// shared by every merge) is easy to audit for worst-case memory use (spec §4.8).
func MergeSort(us []int64) []int64 {
	n := len(us)
	if n < 2 {
		out := make([]int64, n)
		copy(out, us)
		return out
	}
	src := make([]int64, n)
	copy(src, us)
	scratch := make([]int64, n)
	mergeSort(src, scratch, 0, n)
	return src
}

func mergeSort(a, scratch []int64, lo, hi int) {
	if hi-lo < 2 {
		return
	}
	mid := lo + (hi-lo)/2
	mergeSort(a, scratch, lo, mid)
	mergeSort(a, scratch, mid, hi)
	merge(a, scratch, lo, mid, hi)
}

func merge(a, scratch []int64, lo, mid, hi int) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if a[i] <= a[j] {
			scratch[k] = a[i]
			i++
		} else {
			scratch[k] = a[j]
			j++
		}
		k++
	}
	for i < mid {
		scratch[k] = a[i]
		i++
		k++
	}
	for j < hi {
		scratch[k] = a[j]
		j++
		k++
	}
	copy(a[lo:hi], scratch[lo:hi])
}

// FuseMicros converts a (sec, usec) pair into a single microsecond
// value (spec §4.8).
func FuseMicros(sec, usec int64) int64 {
	return sec*1_000_000 + usec
}

// Percentiles of interest for TailLatency (spec §4.8).
var Percentiles = [...]float64{0.10, 0.50, 0.80, 0.99}

// TailLatency merge-sorts us ascending and returns the value at index
// floor(percent * n). Callers pass a percent from Percentiles, or any
// value in [0, 1). TailLatency returns 0 for an empty input.
func TailLatency(us []int64, percent float64) int64 {
	if len(us) == 0 {
		return 0
	}
	sorted := MergeSort(us)
	idx := int(percent * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// RoundTripMicros converts a Ring snapshot's round-trip nanosecond
// durations into the microsecond values TailLatency expects.
func RoundTripMicros(records []TsTable) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.RoundTripNS() / int64(time.Microsecond)
	}
	return out
}
