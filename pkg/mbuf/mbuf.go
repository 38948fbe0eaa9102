// Package mbuf defines the packet-buffer type that crosses the boundary
// between the SoConnect runtime and both the poll-mode driver and
// application hooks.
//
// An Mbuf is a single segment of a possibly-chained packet buffer,
// mirroring the teacher's sync.Pool-backed buffer discipline
// (bfd.PacketPool) generalized to support multi-segment chains: a send
// buffer only chains when the staged packet exceeds one segment's data
// room (see internal/header's AssembleIntoMbuf).
package mbuf

// DefaultDataRoom is the usable byte capacity of one segment, mirroring
// a conservative default mbuf data room (2048 minus headroom, rounded
// down for alignment headroom the same way DPDK's default mbuf pool
// reserves RTE_PKTMBUF_HEADROOM).
const DefaultDataRoom = 1984

// Owner is implemented by whatever pool allocated an Mbuf, so the
// buffer can return itself without the caller holding a direct pool
// reference. Pools drawn from internal/mbufpool satisfy this.
type Owner interface {
	Put(buf []byte)
}

// Mbuf is one segment of a chained packet buffer.
//
// Data holds the segment's bytes; Len is the number of valid bytes
// within Data (Data may be over-allocated to DefaultDataRoom). Next
// chains to the following segment, or nil for the tail. NbSegs is only
// meaningful on the first segment of a chain and reports the total
// chain length, mirroring the rte_mbuf convention the teacher's
// original DPDK source follows (original_source/include/sc_mbuf.hpp).
type Mbuf struct {
	Data   []byte
	Len    int
	Next   *Mbuf
	NbSegs int

	owner Owner
}

// New creates a single, unchained segment with capacity cap.
func New(capacity int) *Mbuf {
	return &Mbuf{Data: make([]byte, capacity), NbSegs: 1}
}

// Reset clears a segment for reuse without reallocating its backing array.
func (m *Mbuf) Reset() {
	m.Len = 0
	m.Next = nil
	m.NbSegs = 1
}

// TotalLen returns the sum of Len across the whole chain starting at m.
func (m *Mbuf) TotalLen() int {
	total := 0
	for seg := m; seg != nil; seg = seg.Next {
		total += seg.Len
	}
	return total
}

// Free returns the entire chain to its owning pool, segment by segment
// from the head, so a partially-built chain can be unwound on an
// assembly error.
// Segments with no owner (constructed directly via New, e.g. in tests)
// are simply discarded.
func (m *Mbuf) Free() {
	for seg := m; seg != nil; {
		next := seg.Next
		if seg.owner != nil {
			seg.owner.Put(seg.Data[:cap(seg.Data)])
		}
		seg.Next = nil
		seg = next
	}
}

// SetOwner attaches the pool that allocated this segment by setting the
// unexported owner field. It is exported so internal/mbufpool (which
// implements Owner) can call it; application code never needs to.
func SetOwner(m *Mbuf, owner Owner) {
	m.owner = owner
}
