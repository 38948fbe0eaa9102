// Package rss implements the deterministic Toeplitz hash used both by
// the packet generator (internal/header) to steer synthetic traffic at
// a target queue, and by the port initializer / tests as an oracle for
// which RX queue a flow should land on (spec §4.2).
//
// Grounded on original_source/src/sc_utils/rss.c and
// include/sc_utils/rss.h (rte_softrss over a 4-tuple/3-tuple with a
// 40-byte key) -- reimplemented in pure Go since the NIC driver that
// would otherwise compute this hash in hardware is out of scope (§1).
package rss

// KeySize is the length in bytes of a Toeplitz RSS hash key.
const KeySize = 40

// Key is a 40-byte Toeplitz hash key.
type Key [KeySize]byte

// SymmetricKey is a Toeplitz key with the property hash(a,b) == hash(b,a)
// for swapped endpoints, so both directions of a connection land on the
// same queue. It is built from repeating byte pairs that are symmetric
// under endpoint swap in the tuple layout used by Tuple.bytes.
var SymmetricKey = Key{
	0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a,
	0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a,
	0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a,
	0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a,
	0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a, 0x6d, 0x5a,
}

// AsymmetricKey is the default (non-symmetric) Toeplitz key, matching
// the conventional Microsoft RSS default key used by most NIC drivers.
var AsymmetricKey = Key{
	0x6d, 0x5a, 0x56, 0xda, 0x25, 0x5b, 0x0e, 0xc2,
	0x41, 0x67, 0x25, 0x3d, 0x43, 0xa3, 0x8f, 0xb0,
	0xd0, 0xca, 0x2b, 0xcb, 0xae, 0x7b, 0x30, 0xb4,
	0x77, 0xcb, 0x2d, 0xa3, 0x80, 0x30, 0xf2, 0x0c,
	0x6a, 0x42, 0xb7, 0x3b, 0xbe, 0xac, 0x01, 0xfa,
}

// HashField identifies one protocol field class that may be included in
// the RSS hash field mask (spec §3 RSS configuration).
type HashField uint8

const (
	HashFieldIP HashField = 1 << iota
	HashFieldIPv4
	HashFieldIPv6
	HashFieldTCP
	HashFieldUDP
	HashFieldSCTP
)

// FieldMask is a set over {IP, IPv4, IPv6, TCP, UDP, SCTP}.
type FieldMask uint8

// Has reports whether f is included in the mask.
func (m FieldMask) Has(f HashField) bool {
	return FieldMask(f)&m != 0
}

// WithField returns a copy of m with f added.
func (m FieldMask) WithField(f HashField) FieldMask {
	return m | FieldMask(f)
}

// hasL4 reports whether the mask selects an L4 (4-tuple) hash rather
// than an L3-only (2-tuple) hash, per spec §4.2: "if it contains any of
// {TCP, UDP, SCTP}, the L4 form is used; otherwise L3 only."
func (m FieldMask) hasL4() bool {
	return m.Has(HashFieldTCP) || m.Has(HashFieldUDP) || m.Has(HashFieldSCTP)
}

// Tuple carries both the L3-only and L4 forms of a flow's addressing,
// so the same value can serve the generator and the hash oracle without
// callers needing to know in advance which form a given mask selects.
type Tuple struct {
	// SrcIP and DstIP are big-endian network byte order addresses, 4
	// bytes for IPv4 or 16 bytes for IPv6.
	SrcIP, DstIP []byte

	// SrcPort and DstPort are used for TCP/UDP; SctpTag is used instead
	// for SCTP (the tag occupies the same tuple position hardware RSS
	// implementations use for the verification tag).
	SrcPort, DstPort uint16
	SctpTag          uint32
}

// bytes serializes the tuple into the big-endian byte stream the
// Toeplitz hash is computed over, choosing the L3-only or L4 form
// according to mask.
func (t Tuple) bytes(mask FieldMask) []byte {
	buf := make([]byte, 0, len(t.SrcIP)+len(t.DstIP)+8)
	buf = append(buf, t.SrcIP...)
	buf = append(buf, t.DstIP...)

	if !mask.hasL4() {
		return buf
	}

	if mask.Has(HashFieldSCTP) {
		var tagBuf [4]byte
		tagBuf[0] = byte(t.SctpTag >> 24)
		tagBuf[1] = byte(t.SctpTag >> 16)
		tagBuf[2] = byte(t.SctpTag >> 8)
		tagBuf[3] = byte(t.SctpTag)
		return append(buf, tagBuf[:]...)
	}

	var portBuf [4]byte
	portBuf[0] = byte(t.SrcPort >> 8)
	portBuf[1] = byte(t.SrcPort)
	portBuf[2] = byte(t.DstPort >> 8)
	portBuf[3] = byte(t.DstPort)
	return append(buf, portBuf[:]...)
}

// Hash computes the raw 32-bit Toeplitz hash of the tuple under key,
// selecting the L3-only or L4 input form according to mask.
func Hash(t Tuple, key Key, mask FieldMask) uint32 {
	return toeplitz(t.bytes(mask), key)
}

// QueueID computes the RSS queue id: Hash(tuple) mod nbQueues. The
// calculator has no side effects and is used identically by the
// generator (internal/header) and by test oracles (spec §4.2).
func QueueID(t Tuple, key Key, nbQueues uint32, mask FieldMask) uint32 {
	if nbQueues == 0 {
		return 0
	}
	return Hash(t, key, mask) % nbQueues
}

// toeplitz computes the standard Toeplitz hash: a sliding 32-bit window
// of the key is XORed into the accumulator whenever the corresponding
// input bit is set, walking the input most-significant-bit first.
// This matches the bit-level definition RSS hardware implements
// (and that rte_softrss ports to software in the original C source).
func toeplitz(input []byte, key Key) uint32 {
	var result uint32

	for byteIdx, b := range input {
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) == 0 {
				continue
			}
			bitPos := byteIdx*8 + bit
			result ^= window32(key, bitPos)
		}
	}

	return result
}

// window32 extracts the 32-bit big-endian window of key starting at
// bitOffset bits from the start of the key, treating the key as an
// infinite bitstream padded with zero past its end (the Toeplitz
// matrix construction).
func window32(key Key, bitOffset int) uint32 {
	var result uint32

	for i := 0; i < 32; i++ {
		bitIdx := bitOffset + i
		byteIdx := bitIdx / 8
		if byteIdx >= KeySize {
			continue
		}
		bit := key[byteIdx] & (0x80 >> uint(bitIdx%8))
		if bit != 0 {
			result |= 1 << uint(31-i)
		}
	}

	return result
}
