package serve

import (
	"context"
	"net"
	"testing"

	"capsift/pkg/pcap"
	"capsift/pkg/tlv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipv4Frame(t *testing.T) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts,
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IP{10, 0, 0, 1},
			DstIP:    net.IP{10, 0, 0, 2},
		},
		gopacket.Payload{1, 2, 3, 4},
	))
	return buf.Bytes()
}

func newRecord(sec uint32, data []byte) *pcap.Record {
	return &pcap.Record{
		Header: pcap.RecordHeader{TsSec: sec, CapLen: uint32(len(data)), OrigLen: uint32(len(data))},
		Data:   data,
	}
}

func TestHandleConn(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client, server := net.Pipe()
	frame := ipv4Frame(t)

	go func() {
		defer client.Close()
		tlv.EncodeRecord(client, newRecord(1, frame))
		// Other TLV types are ignored.
		other := tlv.TLV{Type: 9, Length: 2}
		other.EncodeTo(client, []byte{0, 0})
		tlv.EncodeRecord(client, newRecord(2, []byte{1, 2, 3}))
	}()

	stats, err := handleConn(context.Background(), server, logrus.NewEntry(logger))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Decoded)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.IPv4)

	var recv []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Recv record" {
			recv = append(recv, e)
		}
	}
	require.Len(t, recv, 1)
	assert.Equal(t, "10.0.0.1 > 10.0.0.2", recv[0].Data["ipv4"])
	assert.Equal(t, uint8(17), recv[0].Data["proto"])
	assert.Equal(t, true, recv[0].Data["checksum_valid"])
	assert.Equal(t, "Conn closed", hook.LastEntry().Message)
}

func TestHandleConn_CorruptStream(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client, server := net.Pipe()

	go func() {
		defer client.Close()
		// Header promises 32 bytes, stream ends after 3.
		client.Write([]byte{0x00, 0x01, 0x00, 0x20, 1, 2, 3})
	}()

	_, err := handleConn(context.Background(), server, logrus.NewEntry(logger))
	assert.Error(t, err)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
