package pcap

import (
	"encoding/binary"
	"time"
)

const (
	// Magic + VersionMajor(2) + VersionMinor(2) + ThisZone(4) + SigFigs(4) + SnapLen(4) + LinkType(4)
	GlobalHeaderLen = 24
	// TsSec(4) + TsUsec(4) + CapLen(4) + OrigLen(4)
	RecordHeaderLen = 16

	// Magic values as read least-significant-byte-first from the first four bytes.
	MagicNative  = uint32(0xa1b2c3d4)
	MagicSwapped = uint32(0xd4c3b2a1)

	// DefaultMaxRecordLen mirrors libpcap's MAXIMUM_SNAPLEN.
	DefaultMaxRecordLen = uint32(262144)

	LinkTypeEthernet = uint32(1)
)

// GlobalHeader is the 24-byte header at the start of every capture file.
type GlobalHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	// ThisZone is always decoded little-endian, whatever order the magic selects.
	// Files written by existing tooling depend on it, so it is kept that way.
	ThisZone int32
	SigFigs  uint32
	SnapLen  uint32
	LinkType uint32
}

func decodeGlobalHeader(magic uint32, order binary.ByteOrder, b []byte) GlobalHeader {
	return GlobalHeader{
		Magic:        magic,
		VersionMajor: order.Uint16(b[0:2]),
		VersionMinor: order.Uint16(b[2:4]),
		ThisZone:     int32(binary.LittleEndian.Uint32(b[4:8])),
		SigFigs:      order.Uint32(b[8:12]),
		SnapLen:      order.Uint32(b[12:16]),
		LinkType:     order.Uint32(b[16:20]),
	}
}

// RecordHeader precedes every captured frame.
type RecordHeader struct {
	TsSec   uint32
	TsUsec  uint32
	CapLen  uint32
	OrigLen uint32
}

func decodeRecordHeader(order binary.ByteOrder, b []byte) RecordHeader {
	return RecordHeader{
		TsSec:   order.Uint32(b[0:4]),
		TsUsec:  order.Uint32(b[4:8]),
		CapLen:  order.Uint32(b[8:12]),
		OrigLen: order.Uint32(b[12:16]),
	}
}

// Encode writes the header into b using order. b must hold RecordHeaderLen bytes.
func (h RecordHeader) Encode(order binary.ByteOrder, b []byte) {
	order.PutUint32(b[0:4], h.TsSec)
	order.PutUint32(b[4:8], h.TsUsec)
	order.PutUint32(b[8:12], h.CapLen)
	order.PutUint32(b[12:16], h.OrigLen)
}

// Record is one captured frame. Data is owned by the record.
type Record struct {
	Header RecordHeader
	Data   []byte
}

func (r *Record) Timestamp() time.Time {
	return time.Unix(int64(r.Header.TsSec), int64(r.Header.TsUsec)*int64(time.Microsecond))
}

// Truncated reports whether the frame was cut short at capture time.
func (r *Record) Truncated() bool {
	return r.Header.CapLen < r.Header.OrigLen
}
