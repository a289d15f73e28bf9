package packet

import (
	"fmt"
	"net"
)

// MACAddress is a raw 48-bit hardware address.
type MACAddress [6]byte

// String formats the address as upper-case colon-separated hex, e.g. 01:23:45:67:89:AB.
func (m MACAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MACAddress) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

// EtherType identifies the protocol carried by an Ethernet frame.
// Values outside the named constants are kept as-is.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
)

func EtherTypeFromUint16(v uint16) EtherType { return EtherType(v) }

func (t EtherType) Uint16() uint16 { return uint16(t) }

// Known reports whether t is one of IPv4, ARP or IPv6.
func (t EtherType) Known() bool {
	switch t {
	case EtherTypeIPv4, EtherTypeARP, EtherTypeIPv6:
		return true
	}
	return false
}

func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}
