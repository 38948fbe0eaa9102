// Package header implements the packet-header toolkit and generator:
// building Ethernet / IPv4 / IPv6 / UDP / TCP / SCTP wire images, staging
// them (plus payload) into one or more chained buffers drawn from a
// mbufpool.Pool, and producing RSS-steered random packets for load
// generation.
//
// Wire encoding follows the teacher's explicit big-endian, byte-offset
// codec discipline (bfd's MarshalControlPacket/UnmarshalControlPacket).
// Field semantics -- TTL, checksum folding, network byte order -- are
// grounded on original_source/src/sc_utils/pktgen/{ether,ipv4,ipv6,udp,
// tcp,sctp}.cpp.
package header

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"sync/atomic"

	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// Wire header lengths in bytes.
const (
	EtherHeaderLen = 14
	VLANHeaderLen  = 4
	IPv4HeaderLen  = 20
	IPv6HeaderLen  = 40
	UDPHeaderLen   = 8
	TCPHeaderLen   = 20
	SCTPHeaderLen  = 12

	// defaultTTL matches IP_DEFTTL in the original generator.
	defaultTTL = 64
)

// EtherType values, network byte order assigned on encode.
const (
	etherTypeIPv4 uint16 = 0x0800
	etherTypeIPv6 uint16 = 0x86DD
	etherTypeVLAN uint16 = 0x8100
)

// IP protocol numbers.
const (
	protoUDP  uint8 = 17
	protoTCP  uint8 = 6
	protoSCTP uint8 = 132
)

// L3Variant selects the network-layer header a PktHdr carries.
type L3Variant uint8

const (
	L3IPv4 L3Variant = iota
	L3IPv6
)

// L4Variant selects the transport-layer header a PktHdr carries.
type L4Variant uint8

const (
	L4UDP L4Variant = iota
	L4TCP
	L4SCTP
)

// l3HeaderLen returns the wire length of variant's header, or -1 if v is
// not a recognized variant.
func l3HeaderLen(v L3Variant) int {
	switch v {
	case L3IPv4:
		return IPv4HeaderLen
	case L3IPv6:
		return IPv6HeaderLen
	default:
		return -1
	}
}

// l4HeaderLen returns the wire length of variant's header, or -1 if v is
// not a recognized variant.
func l4HeaderLen(v L4Variant) int {
	switch v {
	case L4UDP:
		return UDPHeaderLen
	case L4TCP:
		return TCPHeaderLen
	case L4SCTP:
		return SCTPHeaderLen
	default:
		return -1
	}
}

func l4Proto(v L4Variant) uint8 {
	switch v {
	case L4UDP:
		return protoUDP
	case L4TCP:
		return protoTCP
	case L4SCTP:
		return protoSCTP
	default:
		return 0
	}
}

// ErrUnknownVariant is returned when PktHdr carries an L3Variant or
// L4Variant value this package does not recognize.
var ErrUnknownVariant = errors.New("header: unknown protocol variant")

// PktHdr is the logical description of one generated packet: addressing,
// variant tags, and the prebuilt wire images for each layer. The images
// are built once by GenerateRandom and reused by every copy AssembleIntoMbuf stages into a fresh buffer chain.
type PktHdr struct {
	SrcMAC, DstMAC [6]byte
	VLANEnabled    bool
	VLANID         uint16

	L3      L3Variant
	SrcIPv4 [4]byte
	DstIPv4 [4]byte
	SrcIPv6 [16]byte
	DstIPv6 [16]byte

	L4      L4Variant
	SrcPort uint16
	DstPort uint16
	SctpTag uint32

	// EthImage, L3Image, L4Image are the prebuilt wire images, set by
	// GenerateRandom. AssembleIntoMbuf copies them verbatim; changing the
	// addressing fields afterwards does not update them.
	EthImage []byte
	L3Image  []byte
	L4Image  []byte

	// Payload is the upper-layer payload appended after the L4 header.
	Payload []byte

	// PktLen, PayloadLen and PayloadOffset describe the fully assembled
	// wire packet: PktLen is the total on-wire length, PayloadLen the
	// length of Payload, and PayloadOffset the byte offset of Payload
	// within the assembled packet.
	PktLen        int
	PayloadLen    int
	PayloadOffset int
}

// GenerateRandom fills hdr with randomized addressing and prebuilt header
// images for an (l3, l4) packet of pktLen bytes carrying payload.
//
// If rssAffinity is set, src/dst ports and addresses are regenerated
// until the RSS hash of the resulting flow (under key and mask) selects
// targetQueue among nbQueues queues, mirroring
// sc_util_generate_random_pkt_hdr's retry loop. The loop aborts early,
// returning apphooks.StatusInternal, if quit is observed set -- the
// worker's cooperative shutdown signal (spec's global quit flag).
//
// Returns apphooks.StatusInvalidValue if pktLen is too small to hold the
// requested headers or if l3/l4 name an unrecognized variant.
func GenerateRandom(hdr *PktHdr, pktLen int, l3 L3Variant, l4 L4Variant, targetQueue, nbQueues uint32, key rss.Key, mask rss.FieldMask, rssAffinity bool, quit *atomic.Bool) apphooks.Status {
	l3Len := l3HeaderLen(l3)
	l4Len := l4HeaderLen(l4)
	if l3Len < 0 || l4Len < 0 {
		return apphooks.StatusInvalidValue
	}

	minLen := EtherHeaderLen + l3Len + l4Len
	if hdr.VLANEnabled {
		minLen += VLANHeaderLen
	}
	if pktLen < minLen {
		return apphooks.StatusInvalidValue
	}
	payloadLen := pktLen - minLen

	hdr.L3, hdr.L4 = l3, l4

	for {
		if quit != nil && quit.Load() {
			return apphooks.StatusInternal
		}

		hdr.SrcPort = uint16(rand.IntN(1 << 16))
		hdr.DstPort = uint16(rand.IntN(1 << 16))

		switch l3 {
		case L3IPv4:
			randomIPv4(&hdr.SrcIPv4)
			randomIPv4(&hdr.DstIPv4)
		case L3IPv6:
			randomIPv6(&hdr.SrcIPv6)
			randomIPv6(&hdr.DstIPv6)
		}

		if !rssAffinity {
			break
		}

		tuple := hdr.rssTuple(l3)
		if rss.QueueID(tuple, key, nbQueues, mask) == targetQueue {
			break
		}
	}

	randomMAC(&hdr.SrcMAC)
	randomMAC(&hdr.DstMAC)

	if err := hdr.buildImages(payloadLen); err != nil {
		return apphooks.StatusInternal
	}
	return apphooks.StatusOK
}

// rssTuple projects hdr's addressing into the tuple the RSS calculator
// expects.
func (hdr *PktHdr) rssTuple(l3 L3Variant) rss.Tuple {
	t := rss.Tuple{SrcPort: hdr.SrcPort, DstPort: hdr.DstPort, SctpTag: hdr.SctpTag}
	switch l3 {
	case L3IPv4:
		t.SrcIP, t.DstIP = hdr.SrcIPv4[:], hdr.DstIPv4[:]
	case L3IPv6:
		t.SrcIP, t.DstIP = hdr.SrcIPv6[:], hdr.DstIPv6[:]
	}
	return t
}

// buildImages constructs the wire images for hdr's ethernet, L3, and L4
// headers, bottom-up: the L4 image is built first from payloadLen, then
// L3 from the L4 image's length, then ethernet from L3's -- mirroring the
// pkt_len cascade in the original generator.
func (hdr *PktHdr) buildImages(payloadLen int) error {
	l4Image, l4Total, err := buildL4(hdr.L4, hdr.SrcPort, hdr.DstPort, hdr.SctpTag, payloadLen)
	if err != nil {
		return err
	}

	var l3Image []byte
	var l3Total int
	switch hdr.L3 {
	case L3IPv4:
		l3Image = buildIPv4Header(hdr.SrcIPv4, hdr.DstIPv4, l4Proto(hdr.L4), l4Total)
		l3Total = l4Total + IPv4HeaderLen
	case L3IPv6:
		l3Image = buildIPv6Header(hdr.SrcIPv6, hdr.DstIPv6, l4Proto(hdr.L4), l4Total)
		l3Total = l4Total + IPv6HeaderLen
	default:
		return ErrUnknownVariant
	}

	ethType := etherTypeIPv4
	if hdr.L3 == L3IPv6 {
		ethType = etherTypeIPv6
	}
	ethImage := buildEtherHeader(hdr.SrcMAC, hdr.DstMAC, ethType, hdr.VLANEnabled, hdr.VLANID)

	hdr.L4Image = l4Image
	hdr.L3Image = l3Image
	hdr.EthImage = ethImage
	hdr.PayloadLen = payloadLen
	hdr.PayloadOffset = len(ethImage) + len(l3Image) + len(l4Image)
	hdr.PktLen = hdr.PayloadOffset + payloadLen
	return nil
}

// buildL4 builds the wire image for variant, returning the image and the
// total length (header + payloadLen) the enclosing L3 header must carry.
func buildL4(variant L4Variant, srcPort, dstPort uint16, sctpTag uint32, payloadLen int) ([]byte, int, error) {
	switch variant {
	case L4UDP:
		return buildUDPHeader(srcPort, dstPort, payloadLen), UDPHeaderLen + payloadLen, nil
	case L4TCP:
		return buildTCPHeader(srcPort, dstPort), TCPHeaderLen + payloadLen, nil
	case L4SCTP:
		return buildSCTPHeader(srcPort, dstPort, sctpTag), SCTPHeaderLen + payloadLen, nil
	default:
		return nil, 0, ErrUnknownVariant
	}
}

// buildEtherHeader builds a 14-byte Ethernet header, or 18 bytes with an
// 802.1Q tag inserted when vlanEnabled.
func buildEtherHeader(src, dst [6]byte, ethType uint16, vlanEnabled bool, vlanID uint16) []byte {
	if !vlanEnabled {
		b := make([]byte, EtherHeaderLen)
		copy(b[0:6], dst[:])
		copy(b[6:12], src[:])
		binary.BigEndian.PutUint16(b[12:14], ethType)
		return b
	}

	b := make([]byte, EtherHeaderLen+VLANHeaderLen)
	copy(b[0:6], dst[:])
	copy(b[6:12], src[:])
	binary.BigEndian.PutUint16(b[12:14], etherTypeVLAN)
	binary.BigEndian.PutUint16(b[14:16], vlanID)
	binary.BigEndian.PutUint16(b[16:18], ethType)
	return b
}

// buildIPv4Header builds a 20-byte IPv4 header (no options) with the
// header checksum computed and folded per the standard Internet checksum
// algorithm.
func buildIPv4Header(src, dst [4]byte, proto uint8, payloadLen int) []byte {
	b := make([]byte, IPv4HeaderLen)
	b[0] = 0x45 // version 4, IHL 5 (no options)
	b[1] = 0    // type of service
	binary.BigEndian.PutUint16(b[2:4], uint16(IPv4HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(b[4:6], 0) // identification
	binary.BigEndian.PutUint16(b[6:8], 0) // flags/fragment offset
	b[8] = defaultTTL
	b[9] = proto
	binary.BigEndian.PutUint16(b[10:12], 0) // checksum, filled below
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])

	binary.BigEndian.PutUint16(b[10:12], ipv4Checksum(b))
	return b
}

// ipv4Checksum computes the IPv4 header checksum per RFC 791 §3.1: the
// one's complement of the one's-complement sum of all 16-bit words, with
// the checksum field itself treated as zero, and the all-zero result
// normalized to 0xFFFF.
func ipv4Checksum(hdrBytes []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdrBytes); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(hdrBytes[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	cksum := ^uint16(sum)
	if cksum == 0 {
		cksum = 0xFFFF
	}
	return cksum
}

// buildIPv6Header builds a 40-byte IPv6 header. No hop-by-hop options are
// generated.
func buildIPv6Header(src, dst [16]byte, proto uint8, payloadLen int) []byte {
	b := make([]byte, IPv6HeaderLen)
	binary.BigEndian.PutUint32(b[0:4], 0x60000000) // version 6, traffic class/flow label 0
	binary.BigEndian.PutUint16(b[4:6], uint16(payloadLen))
	b[6] = proto
	b[7] = defaultTTL // hop limit
	copy(b[8:24], src[:])
	copy(b[24:40], dst[:])
	return b
}

// buildUDPHeader builds an 8-byte UDP header. The checksum is left zero:
// UDP checksums are optional over IPv4 and this generator targets
// synthetic load, not wire-compatible application traffic.
func buildUDPHeader(srcPort, dstPort uint16, payloadLen int) []byte {
	b := make([]byte, UDPHeaderLen)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(UDPHeaderLen+payloadLen))
	binary.BigEndian.PutUint16(b[6:8], 0) // checksum
	return b
}

// buildTCPHeader builds a bare 20-byte TCP header (no options, no flags
// set) suitable for load generation; sequence/ack numbers and window are
// left zero.
func buildTCPHeader(srcPort, dstPort uint16) []byte {
	b := make([]byte, TCPHeaderLen)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	b[12] = (TCPHeaderLen / 4) << 4 // data offset, no options
	return b
}

// buildSCTPHeader builds a 12-byte SCTP common header. The checksum is
// left zero for the same reason as buildUDPHeader.
func buildSCTPHeader(srcPort, dstPort uint16, tag uint32) []byte {
	b := make([]byte, SCTPHeaderLen)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint32(b[4:8], tag)
	binary.BigEndian.PutUint32(b[8:12], 0) // checksum
	return b
}

func randomMAC(dst *[6]byte) {
	for i := range dst {
		dst[i] = byte(rand.IntN(256))
	}
}

func randomIPv4(dst *[4]byte) {
	for i := range dst {
		dst[i] = byte(rand.IntN(256))
	}
}

func randomIPv6(dst *[16]byte) {
	for i := range dst {
		dst[i] = byte(rand.IntN(256))
	}
}

// AssembleIntoMbuf copies hdr's Ethernet / L3 / L4 images and payload
// into one or more chained buffers drawn from pool, per spec §4.1:
// chained segments are used only when hdr.PktLen exceeds one segment's
// data room, and a pool exhaustion mid-chain frees any already-allocated
// follow-on segments before returning Memory.
func AssembleIntoMbuf(pool *mbufpool.Pool, hdr *PktHdr) (*mbuf.Mbuf, apphooks.Status) {
	room := pool.DataRoom()
	nbSegs := (hdr.PktLen + room - 1) / room
	if nbSegs < 1 {
		nbSegs = 1
	}

	var head, tail *mbuf.Mbuf
	for i := 0; i < nbSegs; i++ {
		seg, status := pool.Get()
		if !status.OK() {
			if head != nil {
				head.Free()
			}
			return nil, apphooks.StatusMemory
		}

		segLen := room
		if i == nbSegs-1 {
			segLen = hdr.PktLen - room*(nbSegs-1)
		}
		seg.Len = segLen

		if head == nil {
			head = seg
			tail = seg
		} else {
			tail.Next = seg
			tail = seg
		}
	}
	head.NbSegs = nbSegs

	offset := 0
	for _, chunk := range [][]byte{hdr.EthImage, hdr.L3Image, hdr.L4Image, hdr.Payload} {
		if len(chunk) == 0 {
			continue
		}
		if status := copyIntoChain(head, chunk, offset); !status.OK() {
			head.Free()
			return nil, status
		}
		offset += len(chunk)
	}

	return head, apphooks.StatusOK
}

// copyIntoChain copies data into the chain starting at head at byte
// offset, walking segment boundaries as needed -- the Go equivalent of
// sc_util_copy_buf_to_pkt / _sc_util_copy_buf_to_pkt_segs.
func copyIntoChain(head *mbuf.Mbuf, data []byte, offset int) apphooks.Status {
	seg := head
	for offset >= seg.Len {
		offset -= seg.Len
		seg = seg.Next
		if seg == nil {
			return apphooks.StatusInvalidValue
		}
	}

	for len(data) > 0 {
		avail := seg.Len - offset
		n := avail
		if n > len(data) {
			n = len(data)
		}
		copy(seg.Data[offset:offset+n], data[:n])
		data = data[n:]
		offset = 0
		if len(data) > 0 {
			seg = seg.Next
			if seg == nil {
				return apphooks.StatusInvalidValue
			}
		}
	}
	return apphooks.StatusOK
}

// GenerateBurstFastV4UDP emits n identical copies of hdr (expected to
// describe an IPv4/UDP packet) into freshly allocated buffer chains
// drawn from pool, amortizing header assembly cost for rate-shaped
// senders (spec §4.1).
func GenerateBurstFastV4UDP(pool *mbufpool.Pool, hdr *PktHdr, burstOut []*mbuf.Mbuf, n int) apphooks.Status {
	if hdr.L3 != L3IPv4 || hdr.L4 != L4UDP {
		return apphooks.StatusInvalidValue
	}
	if n > len(burstOut) {
		return apphooks.StatusInvalidValue
	}

	for i := 0; i < n; i++ {
		m, status := AssembleIntoMbuf(pool, hdr)
		if !status.OK() {
			for j := 0; j < i; j++ {
				burstOut[j].Free()
				burstOut[j] = nil
			}
			return status
		}
		burstOut[i] = m
	}
	return apphooks.StatusOK
}

// CopyPayloadIntoBurst re-stamps payload (e.g. a fresh send timestamp)
// into n already-assembled buffers at payloadOffset, without rebuilding
// their headers.
func CopyPayloadIntoBurst(payload []byte, payloadOffset int, burst []*mbuf.Mbuf, n int) apphooks.Status {
	if n > len(burst) {
		return apphooks.StatusInvalidValue
	}
	for i := 0; i < n; i++ {
		if burst[i] == nil {
			return apphooks.StatusInvalidValue
		}
		if status := copyIntoChain(burst[i], payload, payloadOffset); !status.OK() {
			return status
		}
	}
	return apphooks.StatusOK
}
