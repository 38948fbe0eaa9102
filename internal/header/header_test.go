package header

import (
	"encoding/binary"
	"sync/atomic"
	"testing"

	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandom_RejectsShortPacket(t *testing.T) {
	var hdr PktHdr
	status := GenerateRandom(&hdr, 4, L3IPv4, L4UDP, 0, 4, rss.AsymmetricKey, rss.FieldMask(0).WithField(rss.HashFieldUDP), false, nil)
	require.Equal(t, apphooks.StatusInvalidValue, status)
}

func TestGenerateRandom_RejectsUnknownVariant(t *testing.T) {
	var hdr PktHdr
	status := GenerateRandom(&hdr, 1500, L3Variant(99), L4UDP, 0, 4, rss.AsymmetricKey, rss.FieldMask(0), false, nil)
	require.Equal(t, apphooks.StatusInvalidValue, status)
}

func TestGenerateRandom_BuildsWellFormedIPv4UDP(t *testing.T) {
	var hdr PktHdr
	status := GenerateRandom(&hdr, 256, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0).WithField(rss.HashFieldUDP), false, nil)
	require.Equal(t, apphooks.StatusOK, status)

	require.Equal(t, 256, hdr.PktLen)
	require.Equal(t, EtherHeaderLen+IPv4HeaderLen+UDPHeaderLen, hdr.PayloadOffset)
	require.Equal(t, 256-hdr.PayloadOffset, hdr.PayloadLen)
	require.Len(t, hdr.EthImage, EtherHeaderLen)
	require.Len(t, hdr.L3Image, IPv4HeaderLen)
	require.Len(t, hdr.L4Image, UDPHeaderLen)

	require.Equal(t, uint16(etherTypeIPv4), binary.BigEndian.Uint16(hdr.EthImage[12:14]))
	require.Equal(t, byte(0x45), hdr.L3Image[0])
	require.Equal(t, byte(defaultTTL), hdr.L3Image[8])
}

func TestGenerateRandom_HonorsRSSAffinity(t *testing.T) {
	var hdr PktHdr
	const nbQueues = 4
	const target = 2
	mask := rss.FieldMask(0).WithField(rss.HashFieldUDP)

	status := GenerateRandom(&hdr, 128, L3IPv4, L4UDP, target, nbQueues, rss.AsymmetricKey, mask, true, nil)
	require.Equal(t, apphooks.StatusOK, status)

	tuple := rss.Tuple{SrcIP: hdr.SrcIPv4[:], DstIP: hdr.DstIPv4[:], SrcPort: hdr.SrcPort, DstPort: hdr.DstPort}
	require.Equal(t, uint32(target), rss.QueueID(tuple, rss.AsymmetricKey, nbQueues, mask))
}

func TestGenerateRandom_AbortsOnQuit(t *testing.T) {
	var hdr PktHdr
	var quit atomic.Bool
	quit.Store(true)

	status := GenerateRandom(&hdr, 128, L3IPv4, L4UDP, 0, 4, rss.AsymmetricKey, rss.FieldMask(0).WithField(rss.HashFieldUDP), true, &quit)
	require.Equal(t, apphooks.StatusInternal, status)
}

func TestAssembleIntoMbuf_SingleSegment(t *testing.T) {
	pool := mbufpool.New("rx_p0_q0", 4, 1984)
	var hdr PktHdr
	require.Equal(t, apphooks.StatusOK, GenerateRandom(&hdr, 512, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))

	m, status := AssembleIntoMbuf(pool, &hdr)
	require.Equal(t, apphooks.StatusOK, status)
	require.Equal(t, 1, m.NbSegs)
	require.Equal(t, hdr.PktLen, m.TotalLen())

	require.Equal(t, hdr.EthImage, m.Data[0:EtherHeaderLen])
}

func TestAssembleIntoMbuf_MultiSegmentChain(t *testing.T) {
	pool := mbufpool.New("shared", 8, 256)
	var hdr PktHdr
	require.Equal(t, apphooks.StatusOK, GenerateRandom(&hdr, 700, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))

	m, status := AssembleIntoMbuf(pool, &hdr)
	require.Equal(t, apphooks.StatusOK, status)
	require.Greater(t, m.NbSegs, 1)
	require.Equal(t, hdr.PktLen, m.TotalLen())

	var segs int
	for seg := m; seg != nil; seg = seg.Next {
		segs++
	}
	require.Equal(t, m.NbSegs, segs)
}

func TestAssembleIntoMbuf_ExhaustionFreesPartialChain(t *testing.T) {
	pool := mbufpool.New("tx_p0_q0", 1, 256)
	var hdr PktHdr
	require.Equal(t, apphooks.StatusOK, GenerateRandom(&hdr, 700, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))

	_, status := AssembleIntoMbuf(pool, &hdr)
	require.Equal(t, apphooks.StatusMemory, status)

	// The single token must have been returned to the pool by Free().
	seg, status := pool.Get()
	require.Equal(t, apphooks.StatusOK, status)
	require.NotNil(t, seg)
}

func TestGenerateBurstFastV4UDP(t *testing.T) {
	pool := mbufpool.New("tx_p0_q0", 8, 1984)
	var hdr PktHdr
	require.Equal(t, apphooks.StatusOK, GenerateRandom(&hdr, 300, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))

	burst := make([]*mbuf.Mbuf, 4)
	status := GenerateBurstFastV4UDP(pool, &hdr, burst, 4)
	require.Equal(t, apphooks.StatusOK, status)
	for _, m := range burst {
		require.NotNil(t, m)
		require.Equal(t, hdr.PktLen, m.TotalLen())
	}
}

func TestCopyPayloadIntoBurst(t *testing.T) {
	pool := mbufpool.New("tx_p0_q0", 4, 1984)
	var hdr PktHdr
	require.Equal(t, apphooks.StatusOK, GenerateRandom(&hdr, 200, L3IPv4, L4UDP, 0, 1, rss.AsymmetricKey, rss.FieldMask(0), false, nil))

	burst := make([]*mbuf.Mbuf, 2)
	require.Equal(t, apphooks.StatusOK, GenerateBurstFastV4UDP(pool, &hdr, burst, 2))

	stamp := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.Equal(t, apphooks.StatusOK, CopyPayloadIntoBurst(stamp, hdr.PayloadOffset, burst, 2))

	for _, m := range burst {
		got := m.Data[hdr.PayloadOffset : hdr.PayloadOffset+len(stamp)]
		require.Equal(t, stamp, got)
	}
}
