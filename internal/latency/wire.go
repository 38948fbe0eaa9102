package latency

import "encoding/binary"

// Tag distinguishes how many of a wire TsTable's timestamp slots are
// meaningful (spec §3): Half carries (client-send, server-recv); Full
// carries all four.
type Tag uint8

const (
	TagHalf Tag = iota
	TagFull
)

// HeaderLen and SlotLen are the wire-format constants spec §6 names:
// "the UDP payload starts with a TsTable (17 bytes header + 8 bytes
// per timestamp)".
const (
	HeaderLen = 17
	SlotLen   = 8
)

// Slot offsets within a table's timestamp region, following §4.7's
// stamping order: client-send, server-recv, server-send, client-recv.
const (
	slotClientSend = 0
	slotServerRecv = 1
	slotServerSend = 2
	slotClientRecv = 3
)

// WireLen returns the total on-wire byte length of a table tagged tag.
func WireLen(tag Tag) int {
	if tag == TagFull {
		return HeaderLen + 4*SlotLen
	}
	return HeaderLen + 2*SlotLen
}

func slotOffset(slot int) int {
	return HeaderLen + slot*SlotLen
}

// EncodeClientSend writes a Full-shaped wire table into buf (which must
// be at least WireLen(TagFull) bytes) with only the client-send slot
// populated; the remaining slots are zeroed so the echo server has room
// to stamp them in place without reallocating. Returns WireLen(TagFull).
func EncodeClientSend(buf []byte, clientSendNS int64) int {
	n := WireLen(TagFull)
	for i := 0; i < n; i++ {
		buf[i] = 0
	}
	buf[0] = byte(TagFull)
	binary.BigEndian.PutUint64(buf[slotOffset(slotClientSend):], uint64(clientSendNS))
	return n
}

// DecodeClientSend reads the client-send timestamp from a wire table
// written by EncodeClientSend.
func DecodeClientSend(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf[slotOffset(slotClientSend):]))
}

// StampServerRecvAndSend fills the server-recv and server-send slots of
// a Full-shaped wire table in place, per spec §4.7: "the echo server
// appends server_recv_ns then server_send_ns".
func StampServerRecvAndSend(buf []byte, serverRecvNS, serverSendNS int64) {
	binary.BigEndian.PutUint64(buf[slotOffset(slotServerRecv):], uint64(serverRecvNS))
	binary.BigEndian.PutUint64(buf[slotOffset(slotServerSend):], uint64(serverSendNS))
}

// HalfFromWire extracts the server-side diagnostic Half view
// (client-send, server-recv) from a wire table already stamped by
// StampServerRecvAndSend.
func HalfFromWire(buf []byte) TsTable {
	return TsTable{
		ClientSendNS: int64(binary.BigEndian.Uint64(buf[slotOffset(slotClientSend):])),
		ServerRecvNS: int64(binary.BigEndian.Uint64(buf[slotOffset(slotServerRecv):])),
	}
}

// DecodeFull reads a completed Full wire table's client-send,
// server-recv, and server-send slots, combining them with the
// caller-supplied clientRecvNS (the timestamp the client stamps itself
// upon receipt, per §4.7: "the receiver appends client_recv_ns").
func DecodeFull(buf []byte, clientRecvNS int64) TsTable {
	return TsTable{
		ClientSendNS: int64(binary.BigEndian.Uint64(buf[slotOffset(slotClientSend):])),
		ServerRecvNS: int64(binary.BigEndian.Uint64(buf[slotOffset(slotServerRecv):])),
		ServerSendNS: int64(binary.BigEndian.Uint64(buf[slotOffset(slotServerSend):])),
		ClientRecvNS: clientRecvNS,
	}
}
