package tlv

import (
	"bytes"
	"io"
	"testing"

	"capsift/pkg/pcap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(data []byte) *pcap.Record {
	return &pcap.Record{
		Header: pcap.RecordHeader{TsSec: 1700000000, TsUsec: 42, CapLen: uint32(len(data)), OrigLen: 1514},
		Data:   data,
	}
}

func TestEncodeRecord(t *testing.T) {
	rec := testRecord([]byte{0xde, 0xad})

	var buf bytes.Buffer
	n, err := EncodeRecord(&buf, rec)
	require.NoError(t, err)
	assert.Equal(t, tlvHdrLen+pcap.RecordHeaderLen+2, n)

	expected := []byte{
		0x00, 0x01, 0x00, 0x12, // Type=1, Length=18
		0x65, 0x53, 0xf1, 0x00, // ts_sec
		0x00, 0x00, 0x00, 0x2a, // ts_usec
		0x00, 0x00, 0x00, 0x02, // caplen
		0x00, 0x00, 0x05, 0xea, // origlen
		0xde, 0xad,
	}
	assert.Equal(t, expected, buf.Bytes())
}

func TestEncodeRecord_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	_, err := EncodeRecord(&buf, testRecord(make([]byte, MaxRecordData+1)))
	assert.ErrorIs(t, err, ErrValueTooLarge)

	_, err = EncodeRecord(&buf, testRecord(make([]byte, MaxRecordData)))
	assert.NoError(t, err)
}

func TestDecodeRecord(t *testing.T) {
	_, err := DecodeRecord(make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortData)

	value := make([]byte, pcap.RecordHeaderLen+1)
	value[11] = 4 // caplen 4, one byte carried
	_, err = DecodeRecord(value)
	assert.Error(t, err)
}

func TestRecordReader(t *testing.T) {
	first := testRecord([]byte{1, 2, 3})
	second := testRecord(nil)

	var buf bytes.Buffer
	_, err := EncodeRecord(&buf, first)
	require.NoError(t, err)

	other := TLV{Type: 9, Length: 1}
	_, err = other.EncodeTo(&buf, []byte{0xff})
	require.NoError(t, err)

	_, err = EncodeRecord(&buf, second)
	require.NoError(t, err)

	rr := NewRecordReader(&buf)

	got, err := rr.NextRecord()
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = rr.NextRecord()
	require.NoError(t, err)
	assert.Equal(t, second.Header, got.Header)
	assert.Empty(t, got.Data)

	_, err = rr.NextRecord()
	assert.Equal(t, io.EOF, err)
}
