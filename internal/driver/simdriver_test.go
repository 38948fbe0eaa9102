package driver_test

import (
	"testing"

	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
	"github.com/stretchr/testify/require"
)

func setupLinkedPorts(t *testing.T, nbQueues int) (*driver.SimDriver, *mbufpool.Pool, []*mbufpool.Pool) {
	t.Helper()
	d := driver.NewSimDriver(map[int]int{0: 1})

	conf := driver.PortConfig{NbRXRings: nbQueues, NbTXRings: nbQueues, EnableRSS: true, RSSKey: rss.AsymmetricKey, RSSHashField: rss.FieldMask(0).WithField(rss.HashFieldUDP)}
	require.Equal(t, apphooks.StatusOK, d.Configure(0, conf))
	require.Equal(t, apphooks.StatusOK, d.Configure(1, conf))

	txPool := mbufpool.New("tx_p0_q0", 8, 1984)
	rxPools := make([]*mbufpool.Pool, nbQueues)
	for q := 0; q < nbQueues; q++ {
		rxPools[q] = mbufpool.New("rx_p1_q", 8, 1984)
		require.Equal(t, apphooks.StatusOK, d.RxQueueSetup(1, q, rxPools[q]))
	}
	require.Equal(t, apphooks.StatusOK, d.TxQueueSetup(0, 0))
	require.Equal(t, apphooks.StatusOK, d.Start(0))
	require.Equal(t, apphooks.StatusOK, d.Start(1))

	return d, txPool, rxPools
}

func TestSimDriver_DeliversToRSSSelectedQueue(t *testing.T) {
	const nbQueues = 4
	d, txPool, _ := setupLinkedPorts(t, nbQueues)

	mask := rss.FieldMask(0).WithField(rss.HashFieldUDP)
	for target := uint32(0); target < nbQueues; target++ {
		var hdr header.PktHdr
		require.Equal(t, apphooks.StatusOK,
			header.GenerateRandom(&hdr, 128, header.L3IPv4, header.L4UDP, target, nbQueues, rss.AsymmetricKey, mask, true, nil))

		m, status := header.AssembleIntoMbuf(txPool, &hdr)
		require.Equal(t, apphooks.StatusOK, status)

		bufs := []*mbuf.Mbuf{m}
		sent := d.TxBurst(0, 0, bufs, 1)
		require.Equal(t, 1, sent)

		got := make([]*mbuf.Mbuf, 1)
		n := d.RxBurst(1, int(target), got, 1)
		require.Equal(t, 1, n, "packet steered at queue %d must be receivable there", target)
	}
}

func TestSimDriver_TxAcceptLimitsBurst(t *testing.T) {
	d, txPool, _ := setupLinkedPorts(t, 1)
	d.TxAccept = func(port, queue, requested int) int { return requested - 1 }

	var hdr header.PktHdr
	mask := rss.FieldMask(0).WithField(rss.HashFieldUDP)
	require.Equal(t, apphooks.StatusOK,
		header.GenerateRandom(&hdr, 128, header.L3IPv4, header.L4UDP, 0, 1, rss.AsymmetricKey, mask, false, nil))

	burst := make([]*mbuf.Mbuf, 3)
	for i := range burst {
		m, status := header.AssembleIntoMbuf(txPool, &hdr)
		require.Equal(t, apphooks.StatusOK, status)
		burst[i] = m
	}

	sent := d.TxBurst(0, 0, burst, 3)
	require.Equal(t, 2, sent)
	require.NotNil(t, burst[2], "the unaccepted buffer must remain the caller's to free")
	burst[2].Free()
}

func TestSimDriver_UnlinkedPortSinksTraffic(t *testing.T) {
	d := driver.NewSimDriver(nil)
	conf := driver.PortConfig{NbRXRings: 1, NbTXRings: 1}
	require.Equal(t, apphooks.StatusOK, d.Configure(0, conf))
	require.Equal(t, apphooks.StatusOK, d.Start(0))

	pool := mbufpool.New("tx_p0_q0", 2, 64)
	var hdr header.PktHdr
	require.Equal(t, apphooks.StatusOK,
		header.GenerateRandom(&hdr, 128, header.L3IPv4, header.L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))
	m, status := header.AssembleIntoMbuf(pool, &hdr)
	require.Equal(t, apphooks.StatusOK, status)

	bufs := []*mbuf.Mbuf{m}
	sent := d.TxBurst(0, 0, bufs, 1)
	require.Equal(t, 1, sent, "a sink port still reports the buffer as sent")
}

func TestSimDriver_RxQueueSetupRequiresConfigure(t *testing.T) {
	d := driver.NewSimDriver(nil)
	pool := mbufpool.New("rx_p0_q0", 1, 64)
	status := d.RxQueueSetup(0, 0, pool)
	require.Equal(t, apphooks.StatusInternal, status)
}
