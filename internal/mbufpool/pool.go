// Package mbufpool implements the per-(port, queue) buffer pools the port
// initializer provisions before any port is started (spec §4.3). Each Pool
// wraps a sync.Pool of *mbuf.Mbuf segments and implements mbuf.Owner so
// buffers can return themselves on Free without the caller holding a pool
// reference, generalizing the teacher's bfd.PacketPool
// (sync.Pool-of-[]byte) to chained, multi-segment buffers.
package mbufpool

import (
	"fmt"
	"sync"

	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// Pool is a named, capacity-bounded source of single-segment *mbuf.Mbuf
// buffers. Capacity is enforced with a buffered channel acting as a
// semaphore around the underlying sync.Pool, so a pool can report Memory
// exhaustion instead of growing without bound -- the teacher's
// PacketPool has no bound because BFD packets are fixed-size and rare;
// a packet generator's fast path cannot make that assumption.
type Pool struct {
	name     string
	dataRoom int
	tokens   chan struct{}
	segments sync.Pool
}

// New creates a pool named name with room for capacity in-flight segments,
// each with dataRoom usable bytes.
func New(name string, capacity, dataRoom int) *Pool {
	p := &Pool{
		name:     name,
		dataRoom: dataRoom,
		tokens:   make(chan struct{}, capacity),
	}
	p.segments.New = func() any {
		return mbuf.New(dataRoom)
	}
	for i := 0; i < capacity; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Name returns the pool's identifying name, e.g. "rx_p0_q2".
func (p *Pool) Name() string {
	return p.name
}

// Get draws one fresh, unchained segment from the pool. It returns
// apphooks.StatusMemory if the pool's capacity is currently exhausted.
func (p *Pool) Get() (*mbuf.Mbuf, apphooks.Status) {
	select {
	case <-p.tokens:
	default:
		return nil, apphooks.StatusMemory
	}
	seg := p.segments.Get().(*mbuf.Mbuf)
	seg.Reset()
	mbuf.SetOwner(seg, p)
	return seg, apphooks.StatusOK
}

// Put returns a segment's backing array to the pool and releases one
// capacity token. It is called by (*mbuf.Mbuf).Free via the mbuf.Owner
// interface, never directly by application code.
func (p *Pool) Put(buf []byte) {
	seg := &mbuf.Mbuf{Data: buf}
	p.segments.Put(seg)
	p.tokens <- struct{}{}
}

// DataRoom returns the usable byte capacity of one segment drawn from
// this pool.
func (p *Pool) DataRoom() int {
	return p.dataRoom
}

// PairedPool is the RX/TX pool pair bound to one (logical_port, queue_id),
// per spec §4.3: "for each (logical_port, queue_id) pair there is exactly
// one RX pool and one TX pool."
type PairedPool struct {
	RX *Pool
	TX *Pool
}

// NewPairedPools constructs the P*Q RX pools, P*Q TX pools, and one
// shared out-of-fast-path pool the port initializer requires, per the
// §4.3 contract: each per-queue pool's capacity is 2*queueDepth-1, named
// "rx_p{port}_q{queue}" / "tx_p{port}_q{queue}"; the shared pool has
// capacity (rxDepth+txDepth)*nbCores-1 and is named "shared".
//
// perQueue[port] is the number of queues configured on that port. If the
// per-queue or shared capacity works out non-positive it returns
// apphooks.StatusInvalidValue and no pools.
func NewPairedPools(perQueue []int, rxDepth, txDepth, nbCores, dataRoom int) (map[[2]int]*PairedPool, *Pool, apphooks.Status) {
	pools := make(map[[2]int]*PairedPool)
	perQueueCap := 2*queueDepth(rxDepth, txDepth) - 1
	if perQueueCap <= 0 {
		return nil, nil, apphooks.StatusInvalidValue
	}

	for port, nbQueues := range perQueue {
		for queue := 0; queue < nbQueues; queue++ {
			rx := New(fmt.Sprintf("rx_p%d_q%d", port, queue), perQueueCap, dataRoom)
			tx := New(fmt.Sprintf("tx_p%d_q%d", port, queue), perQueueCap, dataRoom)
			pools[[2]int{port, queue}] = &PairedPool{RX: rx, TX: tx}
		}
	}

	sharedCap := (rxDepth+txDepth)*nbCores - 1
	if sharedCap <= 0 {
		return nil, nil, apphooks.StatusInvalidValue
	}
	shared := New("shared", sharedCap, dataRoom)

	return pools, shared, apphooks.StatusOK
}

// queueDepth picks the larger of rxDepth and txDepth so a single
// "2*depth-1" rule covers both RX and TX pools, matching the contract's
// description of a single queue_depth input per pool.
func queueDepth(rxDepth, txDepth int) int {
	if rxDepth > txDepth {
		return rxDepth
	}
	return txDepth
}
