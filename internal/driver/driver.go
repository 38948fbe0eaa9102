// Package driver defines the poll-mode driver boundary the core
// consumes (spec §1/§6): burst-send and burst-receive primitives plus
// the port configuration calls the port initializer drives. The
// concrete NIC driver (EAL init, device probing, descriptor rings) is
// out of scope; this package only defines the interface and a
// reference in-memory implementation, SimDriver, used by tests in
// place of real hardware.
//
// Grounded on the teacher's internal/netio.PacketConn, which applies
// the same interface-segregation discipline (a small interface the
// session engine depends on, with a mock implementation for tests)
// one layer up the stack, at the socket rather than the NIC queue.
package driver

import (
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// PortConfig describes how a port should be configured (spec §4.4 /
// §6's configure(port, nb_rx, nb_tx, conf)).
type PortConfig struct {
	NbRXRings     int
	NbTXRings     int
	EnableRSS     bool
	EnableOffload bool
	RSSKey        rss.Key
	RSSHashField  rss.FieldMask
}

// Capabilities reports what a port supports, queried by the port
// initializer before it opportunistically requests offloads (spec
// §4.4's "offload opportunism").
type Capabilities struct {
	MaxRxQueues     int
	MaxTxQueues     int
	ChecksumOffload bool
	RSSOffload      bool
}

// Driver is the poll-mode driver boundary: non-blocking burst receive
// and send, plus the port/queue configuration primitives the port
// initializer calls before any worker starts (spec §6).
type Driver interface {
	// Capabilities reports what port supports.
	Capabilities(port int) (Capabilities, apphooks.Status)

	// Configure applies conf to port, but does not start it.
	Configure(port int, conf PortConfig) apphooks.Status

	// RxQueueSetup binds queue's buffers to pool, per spec §4.4: "each
	// RX queue is bound to its dedicated RX pool from §4.3".
	RxQueueSetup(port, queue int, pool *mbufpool.Pool) apphooks.Status

	// TxQueueSetup prepares queue for transmit using default driver
	// parameters (spec §4.4: "TX queues use default driver parameters").
	TxQueueSetup(port, queue int) apphooks.Status

	// SetPromiscuous enables or disables promiscuous mode on port.
	SetPromiscuous(port int, enabled bool) apphooks.Status

	// Start brings port up. Must be called after Configure and every
	// RxQueueSetup/TxQueueSetup for that port.
	Start(port int) apphooks.Status

	// RxBurst is a non-blocking receive: it fills bufs with up to max
	// freshly-received buffers and returns the count, or 0 if none are
	// available. It never blocks.
	RxBurst(port, queue int, bufs []*mbuf.Mbuf, max int) int

	// TxBurst is a non-blocking send: it attempts to transmit the first
	// n buffers in bufs and returns how many were accepted. The caller
	// retains ownership of, and must free, any buffers beyond the
	// returned count.
	TxBurst(port, queue int, bufs []*mbuf.Mbuf, n int) int
}
