package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DstMAC(6) + SrcMAC(6) + EtherType(2)
const EthernetHeaderLen = 14

var ErrFrameTooShort = errors.New("packet: ethernet frame too short")

type EthernetFrame struct {
	DstMAC  MACAddress
	SrcMAC  MACAddress
	Type    EtherType
	Payload []byte
}

// DecodeEthernet decodes the 14-byte Ethernet II header. The frame check
// sequence is not expected; captures normally strip it.
func DecodeEthernet(data []byte) (*EthernetFrame, error) {
	if len(data) < EthernetHeaderLen {
		return nil, errors.Wrapf(ErrFrameTooShort, "%d < %d", len(data), EthernetHeaderLen)
	}

	eth := &EthernetFrame{
		Type:    EtherTypeFromUint16(binary.BigEndian.Uint16(data[12:14])),
		Payload: make([]byte, len(data)-EthernetHeaderLen),
	}
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])
	copy(eth.Payload, data[EthernetHeaderLen:])
	return eth, nil
}

// Len is the frame length including the header.
func (e *EthernetFrame) Len() int {
	return EthernetHeaderLen + len(e.Payload)
}
