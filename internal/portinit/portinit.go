// Package portinit implements the port initializer (spec §4.4):
// allocating per-(port, queue) pools before any port is started, then
// configuring and starting each port whose MAC appears in the selected
// set, opportunistically enabling offloads and RSS, and recording a
// PortView per port for the worker engine to dispatch against.
//
// Grounded on the teacher's daemon startup sequence in
// cmd/gobfd/main.go (sequential subsystem bring-up, first failure
// aborts before the next stage), generalized from "start the gRPC and
// metrics servers" to "bring up every selected NIC port".
package portinit

import (
	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// PortDescriptor names one physical port to bring up and its queue
// depths, as selected by configuration (spec §3's RuntimeConfig port
// descriptors).
type PortDescriptor struct {
	PhysicalID   int
	LogicalID    int
	MAC          apphooks.MAC
	RxQueueDepth int
	TxQueueDepth int
}

// RSSConfig mirrors the configuration file's RSS keys (spec §6).
type RSSConfig struct {
	Enabled   bool
	Symmetric bool
	HashField rss.FieldMask
}

// Config is everything the port initializer needs, already validated by
// internal/config.
type Config struct {
	Ports             []PortDescriptor
	NbRXRingsPerPort  int
	NbTXRingsPerPort  int
	RSS               RSSConfig
	EnablePromiscuous bool
	EnableOffload     bool
	NbCores           int
}

// PortView records everything the worker engine and control plane need
// to know about one initialized port.
type PortView struct {
	PhysicalID int
	LogicalID  int
	MAC        apphooks.MAC
	NbRXQueues int
	NbTXQueues int

	// Pools maps queue id to its paired RX/TX pool.
	Pools map[int]*mbufpool.PairedPool
}

// Init brings up every port in cfg.Ports on d: allocates the RX/TX/shared
// pools the port initializer owns (spec §4.3), then for each port
// configures, binds queues to their pools, sets promiscuous mode, and
// starts it. Ports already started before a later failure are not
// reverted, per spec §4.4 -- the caller aborts before worker launch.
func Init(d driver.Driver, cfg Config) ([]PortView, *mbufpool.Pool, apphooks.Status) {
	// mbufpool.NewPairedPools keys its result by slice position, so logical
	// ids must be assigned 0..len(cfg.Ports)-1 in cfg.Ports order; Init
	// rejects any other assignment with StatusInvalidValue.
	for i, pd := range cfg.Ports {
		if pd.LogicalID != i {
			return nil, nil, apphooks.StatusInvalidValue
		}
	}

	perQueue := make([]int, len(cfg.Ports))
	for i := range cfg.Ports {
		perQueue[i] = cfg.NbRXRingsPerPort
	}

	rxDepth, txDepth := maxDepths(cfg.Ports)
	pools, shared, status := mbufpool.NewPairedPools(perQueue, rxDepth, txDepth, cfg.NbCores, mbuf.DefaultDataRoom)
	if !status.OK() {
		return nil, nil, apphooks.StatusMemory
	}

	rssKey := rss.AsymmetricKey
	if cfg.RSS.Symmetric {
		rssKey = rss.SymmetricKey
	}

	views := make([]PortView, 0, len(cfg.Ports))
	for _, pd := range cfg.Ports {
		caps, status := d.Capabilities(pd.PhysicalID)
		if !status.OK() {
			return nil, nil, apphooks.StatusInternal
		}

		portConf := driver.PortConfig{
			NbRXRings:     cfg.NbRXRingsPerPort,
			NbTXRings:     cfg.NbTXRingsPerPort,
			EnableRSS:     cfg.RSS.Enabled,
			EnableOffload: cfg.EnableOffload && caps.ChecksumOffload,
			RSSKey:        rssKey,
			RSSHashField:  cfg.RSS.HashField,
		}
		if status := d.Configure(pd.PhysicalID, portConf); !status.OK() {
			return nil, nil, apphooks.StatusInternal
		}

		view := PortView{
			PhysicalID: pd.PhysicalID,
			LogicalID:  pd.LogicalID,
			MAC:        pd.MAC,
			NbRXQueues: cfg.NbRXRingsPerPort,
			NbTXQueues: cfg.NbTXRingsPerPort,
			Pools:      make(map[int]*mbufpool.PairedPool, cfg.NbRXRingsPerPort),
		}

		for queue := 0; queue < cfg.NbRXRingsPerPort; queue++ {
			pair := pools[[2]int{pd.LogicalID, queue}]
			if status := d.RxQueueSetup(pd.PhysicalID, queue, pair.RX); !status.OK() {
				return nil, nil, apphooks.StatusInternal
			}
			view.Pools[queue] = pair
		}
		for queue := 0; queue < cfg.NbTXRingsPerPort; queue++ {
			if status := d.TxQueueSetup(pd.PhysicalID, queue); !status.OK() {
				return nil, nil, apphooks.StatusInternal
			}
		}

		if status := d.SetPromiscuous(pd.PhysicalID, cfg.EnablePromiscuous); !status.OK() {
			return nil, nil, apphooks.StatusInternal
		}
		if status := d.Start(pd.PhysicalID); !status.OK() {
			return nil, nil, apphooks.StatusInternal
		}

		views = append(views, view)
	}

	return views, shared, apphooks.StatusOK
}

// maxDepths returns the largest RX and TX queue depth across ports, used
// to size the uniform per-queue pool capacity spec §4.3 describes.
func maxDepths(ports []PortDescriptor) (rx, tx int) {
	for _, p := range ports {
		if p.RxQueueDepth > rx {
			rx = p.RxQueueDepth
		}
		if p.TxQueueDepth > tx {
			tx = p.TxQueueDepth
		}
	}
	return rx, tx
}
