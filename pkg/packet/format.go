package packet

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket/layers"
)

type Formatter interface {
	Format(*Packet) ([]byte, error)
}

// LineFormatter is the Formatter behind Format.
type LineFormatter struct{}

func (LineFormatter) Format(p *Packet) ([]byte, error) { return Format(p) }

// Format renders p on one line, like tcpdump -e.
func Format(p *Packet) ([]byte, error) {
	f := formatter{}
	err := f.format(p)
	if err != nil {
		return nil, err
	}
	return f.Bytes(), nil
}

type formatter struct {
	bytes.Buffer
}

func (f *formatter) format(p *Packet) error {
	if p == nil || p.Ethernet == nil {
		return fmt.Errorf("1st layer is not ethernet")
	}
	f.formatEthernet(p.Ethernet)
	if p.IPv4 != nil {
		f.formatIPv4(p.IPv4)
	}
	return nil
}

func (f *formatter) formatEthernet(eth *EthernetFrame) {
	f.WriteString(fmt.Sprintf("%s > %s, ethertype %s (0x%04x), length %d",
		eth.SrcMAC, eth.DstMAC, etherTypeName(eth.Type), eth.Type.Uint16(), eth.Len()))
}

func (f *formatter) formatIPv4(ip *IPv4Datagram) {
	f.WriteString(fmt.Sprintf(": %s > %s: %s, ttl %d, id %d",
		ip.SrcIP, ip.DstIP, ipProtocolName(ip.Protocol), ip.TTL, ip.ID))
	if ip.IsFragment() {
		f.WriteString(fmt.Sprintf(", offset %d", int(ip.FragmentOffset)*8))
		if ip.MoreFragments() {
			f.WriteString(", flags [+]")
		}
	} else if ip.DontFragment() {
		f.WriteString(", flags [DF]")
	}
	f.WriteString(fmt.Sprintf(", length %d", ip.TotalLength))
	if !ip.ValidateChecksum() {
		f.WriteString(fmt.Sprintf(", bad cksum %04x (->%04x)!", ip.Checksum, ip.ComputeChecksum()))
	}
}

// etherTypeName falls back to gopacket's registry for types outside the known set.
func etherTypeName(t EtherType) string {
	if t.Known() {
		return t.String()
	}
	name := layers.EthernetType(t.Uint16()).String()
	if name == "" || name == "UnknownEthernetType" {
		return t.String()
	}
	return name
}

func ipProtocolName(proto uint8) string {
	name := layers.IPProtocol(proto).String()
	if name == "" || name == "UnknownIPProtocol" {
		return fmt.Sprintf("proto %d", proto)
	}
	return name
}
