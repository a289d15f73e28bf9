package packet

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
)

const IPv4HeaderMinLen = 20

// IPv4 flag bits as they appear in the 3-bit flags field.
const (
	IPv4MoreFragments uint8 = 1 << 0
	IPv4DontFragment  uint8 = 1 << 1
	IPv4EvilBit       uint8 = 1 << 2
)

var (
	ErrDatagramTooShort = errors.New("packet: ipv4 datagram too short")
	ErrProtocolMismatch = errors.New("packet: not an ipv4 datagram")
	ErrLengthMismatch   = errors.New("packet: ipv4 total length exceeds available data")
)

type IPv4Datagram struct {
	Version        uint8
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	Flags          uint8
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcIP          netip.Addr
	DstIP          netip.Addr
	// Payload runs from IHL*4 to the end of the decoded input, so link-layer
	// padding past TotalLength is kept. See ProtocolPayload.
	Payload []byte

	header []byte
}

// DecodeIPv4 decodes an IPv4 header. IHL is taken as found, values below 5 included.
func DecodeIPv4(data []byte) (*IPv4Datagram, error) {
	if len(data) < IPv4HeaderMinLen {
		return nil, errors.Wrapf(ErrDatagramTooShort, "%d < %d", len(data), IPv4HeaderMinLen)
	}

	version := data[0] >> 4
	if version != 4 {
		return nil, errors.Wrapf(ErrProtocolMismatch, "version %d", version)
	}

	totalLen := binary.BigEndian.Uint16(data[2:4])
	if len(data) < int(totalLen) {
		return nil, errors.Wrapf(ErrLengthMismatch, "total length %d > %d", totalLen, len(data))
	}

	flagsFrag := binary.BigEndian.Uint16(data[6:8])
	ip := &IPv4Datagram{
		Version:        version,
		IHL:            data[0] & 0x0F,
		TOS:            data[1],
		TotalLength:    totalLen,
		ID:             binary.BigEndian.Uint16(data[4:6]),
		Flags:          uint8(flagsFrag >> 13),
		FragmentOffset: flagsFrag & 0x1FFF,
		TTL:            data[8],
		Protocol:       data[9],
		Checksum:       binary.BigEndian.Uint16(data[10:12]),
		SrcIP:          netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:          netip.AddrFrom4([4]byte(data[16:20])),
	}

	headerLen := ip.HeaderLen()
	if headerLen < len(data) {
		ip.Payload = make([]byte, len(data)-headerLen)
		copy(ip.Payload, data[headerLen:])
	} else {
		ip.Payload = []byte{}
	}

	// Options take part in the checksum only when they were captured.
	checksumLen := IPv4HeaderMinLen
	if headerLen > IPv4HeaderMinLen && headerLen <= len(data) {
		checksumLen = headerLen
	}
	ip.header = make([]byte, checksumLen)
	copy(ip.header, data[:checksumLen])

	return ip, nil
}

// HeaderLen is IHL in bytes.
func (ip *IPv4Datagram) HeaderLen() int {
	return int(ip.IHL) * 4
}

// ValidateChecksum recomputes the header checksum with the checksum field
// zeroed and compares it with the stored value. Option bytes are covered
// when IHL > 5 and they were present in the decoded input.
func (ip *IPv4Datagram) ValidateChecksum() bool {
	return ip.ComputeChecksum() == ip.Checksum
}

// ComputeChecksum returns the checksum the header should carry.
func (ip *IPv4Datagram) ComputeChecksum() uint16 {
	h := make([]byte, len(ip.header))
	copy(h, ip.header)
	h[10], h[11] = 0, 0
	return Checksum(h)
}

// ProtocolPayload trims Payload to the length announced by TotalLength.
func (ip *IPv4Datagram) ProtocolPayload() []byte {
	n := int(ip.TotalLength) - ip.HeaderLen()
	if n <= 0 {
		return []byte{}
	}
	if n > len(ip.Payload) {
		n = len(ip.Payload)
	}
	return ip.Payload[:n]
}

func (ip *IPv4Datagram) DontFragment() bool  { return ip.Flags&IPv4DontFragment != 0 }
func (ip *IPv4Datagram) MoreFragments() bool { return ip.Flags&IPv4MoreFragments != 0 }

// IsFragment reports whether the datagram is part of a fragmented packet.
func (ip *IPv4Datagram) IsFragment() bool {
	return ip.MoreFragments() || ip.FragmentOffset != 0
}
