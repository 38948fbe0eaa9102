package driver

import (
	"encoding/binary"
	"sync"

	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// simPort holds one port's configuration and per-queue receive rings.
type simPort struct {
	mu sync.Mutex

	configured bool
	started    bool
	promisc    bool
	conf       PortConfig

	rxPools map[int]*mbufpool.Pool
	rxRings map[int][]*mbuf.Mbuf
}

// SimDriver is an in-memory reference Driver used by tests in place of
// real hardware: it reflects bursts it is told to transmit across a
// fixed port topology (Link), routing each packet to the destination
// port's RSS-selected queue exactly as a real RSS-capable NIC would,
// so tests can assert per-queue delivery invariants (spec §8 invariant
// 5) against it. Grounded on the teacher's MockPacketConn
// (injectable-behavior test double with recorded calls).
type SimDriver struct {
	mu    sync.Mutex
	ports map[int]*simPort

	// Link maps a source port to the destination port a transmitted
	// burst is delivered to, modeling a fixed point-to-point topology
	// (e.g. a client/server pair wired back to back).
	Link map[int]int

	// TxAccept, if set, is consulted on every TxBurst call to decide how
	// many of the requested buffers are accepted; it must return a value
	// in [0, requested]. A nil TxAccept accepts every buffer, every time.
	TxAccept func(port, queue, requested int) int
}

// NewSimDriver creates a SimDriver with the given port-to-port link
// topology. link may be nil or incomplete; ports with no entry act as a
// sink (transmitted bursts are dropped, not delivered anywhere).
func NewSimDriver(link map[int]int) *SimDriver {
	return &SimDriver{
		ports: make(map[int]*simPort),
		Link:  link,
	}
}

func (d *SimDriver) port(idx int) *simPort {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[idx]
	if !ok {
		p = &simPort{
			rxPools: make(map[int]*mbufpool.Pool),
			rxRings: make(map[int][]*mbuf.Mbuf),
		}
		d.ports[idx] = p
	}
	return p
}

// Capabilities reports a generous, fixed capability set: SimDriver is a
// reference double, not a model of any particular NIC's limits.
func (d *SimDriver) Capabilities(port int) (Capabilities, apphooks.Status) {
	return Capabilities{MaxRxQueues: 64, MaxTxQueues: 64, ChecksumOffload: true, RSSOffload: true}, apphooks.StatusOK
}

func (d *SimDriver) Configure(port int, conf PortConfig) apphooks.Status {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conf = conf
	p.configured = true
	return apphooks.StatusOK
}

func (d *SimDriver) RxQueueSetup(port, queue int, pool *mbufpool.Pool) apphooks.Status {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return apphooks.StatusInternal
	}
	if pool == nil {
		return apphooks.StatusInvalidValue
	}
	p.rxPools[queue] = pool
	return apphooks.StatusOK
}

func (d *SimDriver) TxQueueSetup(port, queue int) apphooks.Status {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return apphooks.StatusInternal
	}
	return apphooks.StatusOK
}

func (d *SimDriver) SetPromiscuous(port int, enabled bool) apphooks.Status {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return apphooks.StatusInternal
	}
	p.promisc = enabled
	return apphooks.StatusOK
}

func (d *SimDriver) Start(port int) apphooks.Status {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return apphooks.StatusInternal
	}
	p.started = true
	return apphooks.StatusOK
}

// RxBurst returns up to max buffers previously delivered to (port,
// queue) by a TxBurst on a linked source port.
func (d *SimDriver) RxBurst(port, queue int, bufs []*mbuf.Mbuf, max int) int {
	p := d.port(port)
	p.mu.Lock()
	defer p.mu.Unlock()

	ring := p.rxRings[queue]
	n := max
	if n > len(ring) {
		n = len(ring)
	}
	if n > len(bufs) {
		n = len(bufs)
	}
	copy(bufs, ring[:n])
	p.rxRings[queue] = ring[n:]
	return n
}

// TxBurst accepts up to TxAccept(port, queue, n) buffers (or all n, if
// TxAccept is nil), delivers each accepted buffer to its RSS-selected
// queue on the linked destination port (copied into a buffer drawn from
// that queue's bound RX pool, mirroring how a real driver's receive
// side is populated from its own RX pool rather than the sender's TX
// pool), and frees the original buffer -- transmit success returns
// ownership to the runtime, per spec §4.3.
func (d *SimDriver) TxBurst(port, queue int, bufs []*mbuf.Mbuf, n int) int {
	accept := n
	if d.TxAccept != nil {
		accept = d.TxAccept(port, queue, n)
		if accept < 0 {
			accept = 0
		}
		if accept > n {
			accept = n
		}
	}

	dstIdx, linked := d.Link[port]
	for i := 0; i < accept; i++ {
		if linked {
			d.deliver(dstIdx, bufs[i])
		}
		bufs[i].Free()
		bufs[i] = nil
	}
	return accept
}

// deliver flattens buf's wire bytes, computes its RSS queue on dst
// under dst's configured key/mask, and appends a copy (drawn from that
// queue's bound RX pool, or a bare unowned buffer if no pool is bound)
// to dst's matching receive ring.
func (d *SimDriver) deliver(dst int, buf *mbuf.Mbuf) {
	p := d.port(dst)
	p.mu.Lock()
	defer p.mu.Unlock()

	data := flatten(buf)
	tuple, _, ok := parseTuple(data)
	nbQueues := p.conf.NbRXRings
	if nbQueues < 1 {
		nbQueues = 1
	}

	var queue uint32
	if ok && p.conf.EnableRSS {
		queue = rss.QueueID(tuple, p.conf.RSSKey, uint32(nbQueues), p.conf.RSSHashField)
	}

	copied := copyToPool(p.rxPools[int(queue)], data)
	p.rxRings[int(queue)] = append(p.rxRings[int(queue)], copied)
}

// flatten concatenates a chain's segment bytes into a single slice.
func flatten(m *mbuf.Mbuf) []byte {
	out := make([]byte, 0, m.TotalLen())
	for seg := m; seg != nil; seg = seg.Next {
		out = append(out, seg.Data[:seg.Len]...)
	}
	return out
}

// copyToPool draws one buffer from pool (or allocates a bare, unowned
// one if pool is nil) and copies data into it.
func copyToPool(pool *mbufpool.Pool, data []byte) *mbuf.Mbuf {
	if pool == nil {
		m := mbuf.New(len(data))
		copy(m.Data, data)
		m.Len = len(data)
		return m
	}

	m, status := pool.Get()
	if !status.OK() {
		return nil
	}
	if len(data) > len(m.Data) {
		data = data[:len(m.Data)]
	}
	copy(m.Data, data)
	m.Len = len(data)
	return m
}

// parseTuple extracts the RSS-relevant tuple from a flattened Ethernet
// frame, recognizing IPv4/IPv6 with UDP/TCP/SCTP. It reports ok=false
// for anything it cannot parse (e.g. ARP, truncated frames).
func parseTuple(data []byte) (rss.Tuple, rss.FieldMask, bool) {
	if len(data) < 14 {
		return rss.Tuple{}, 0, false
	}
	ethType := binary.BigEndian.Uint16(data[12:14])
	off := 14
	if ethType == 0x8100 {
		if len(data) < 18 {
			return rss.Tuple{}, 0, false
		}
		ethType = binary.BigEndian.Uint16(data[16:18])
		off = 18
	}

	switch ethType {
	case 0x0800: // IPv4
		if len(data) < off+20 {
			return rss.Tuple{}, 0, false
		}
		ihl := int(data[off]&0x0F) * 4
		proto := data[off+9]
		src := data[off+12 : off+16]
		dst := data[off+16 : off+20]
		return l4Tuple(data, off+ihl, src, dst, proto, rss.HashFieldIPv4)

	case 0x86DD: // IPv6
		if len(data) < off+40 {
			return rss.Tuple{}, 0, false
		}
		proto := data[off+6]
		src := data[off+8 : off+24]
		dst := data[off+24 : off+40]
		return l4Tuple(data, off+40, src, dst, proto, rss.HashFieldIPv6)

	default:
		return rss.Tuple{}, 0, false
	}
}

func l4Tuple(data []byte, l4off int, src, dst []byte, proto uint8, l3Field rss.HashField) (rss.Tuple, rss.FieldMask, bool) {
	tuple := rss.Tuple{SrcIP: src, DstIP: dst}
	mask := rss.FieldMask(0).WithField(l3Field)

	switch proto {
	case 17: // UDP
		mask = mask.WithField(rss.HashFieldUDP)
		if len(data) >= l4off+4 {
			tuple.SrcPort = binary.BigEndian.Uint16(data[l4off : l4off+2])
			tuple.DstPort = binary.BigEndian.Uint16(data[l4off+2 : l4off+4])
		}
	case 6: // TCP
		mask = mask.WithField(rss.HashFieldTCP)
		if len(data) >= l4off+4 {
			tuple.SrcPort = binary.BigEndian.Uint16(data[l4off : l4off+2])
			tuple.DstPort = binary.BigEndian.Uint16(data[l4off+2 : l4off+4])
		}
	case 132: // SCTP
		mask = mask.WithField(rss.HashFieldSCTP)
		if len(data) >= l4off+8 {
			tuple.SctpTag = binary.BigEndian.Uint32(data[l4off+4 : l4off+8])
		}
	}

	return tuple, mask, true
}

var _ Driver = (*SimDriver)(nil)
