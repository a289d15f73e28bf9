package tlv

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLV_Len(t *testing.T) {
	tlv := TLV{Type: 1, Length: 3}
	expectedLen := tlvHdrLen + 3 // 4 + 3
	assert.Equal(t, expectedLen, tlv.Len(), "Expected length should match the calculated length")
}

func TestTLV_DecodeFrom(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x03, 0x01, 0x02, 0x03} // Type=1, Length=3, Value=[1,2,3]
	tlv := TLV{}
	buf := bytes.NewBuffer(data)

	value, err := tlv.DecodeFrom(buf)
	assert.NoError(t, err, "Decoding from buffer should not result in an error")

	expectedValue := []byte{0x01, 0x02, 0x03}
	assert.Equal(t, expectedValue, value, "Decoded value should match the expected value")
}

func TestTLV_Decode(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x03, 0x01, 0x02, 0x03} // Type=1, Length=3, Value=[1,2,3]
	tlv := TLV{}

	value, err := tlv.Decode(data)
	assert.NoError(t, err, "Decoding should not result in an error")

	expectedValue := []byte{0x01, 0x02, 0x03}
	assert.Equal(t, expectedValue, value, "Decoded value should match the expected value")
}

func TestTLV_EncodeTo(t *testing.T) {
	tlv := TLV{Type: 1, Length: 3}
	value := []byte{0x01, 0x02, 0x03}

	var buf bytes.Buffer
	n, err := tlv.EncodeTo(&buf, value)
	require.NoError(t, err, "Writing to buffer should not result in an error")
	require.Equal(t, n, len(value)+tlvHdrLen, "Number of bytes written should match the total length")

	expectedData := []byte{0x00, 0x01, 0x00, 0x03, 0x01, 0x02, 0x03}
	assert.Equal(t, expectedData, buf.Bytes(), "Written bytes should match the expected data")
}

func TestTLV_Encode(t *testing.T) {
	tlv := TLV{Type: 1, Length: 3}
	value := []byte{0x01, 0x02, 0x03}

	encodedData, err := tlv.Encode(value)
	require.NoError(t, err, "Encoding should not result in an error")

	expectedData := []byte{0x00, 0x01, 0x00, 0x03, 0x01, 0x02, 0x03}
	assert.Equal(t, expectedData, encodedData, "Encoded data should match the expected data")
}

func TestTLV_New(t *testing.T) {
	tlv, err := New(7, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, TLV{Type: 7, Length: 2}, tlv)

	_, err = New(7, make([]byte, 0x10000))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestTLV_EncodeToLengthMismatch(t *testing.T) {
	tlv := TLV{Type: 1, Length: 5}
	var buf bytes.Buffer
	_, err := tlv.EncodeTo(&buf, []byte{1})
	assert.Error(t, err)
	assert.Zero(t, buf.Len(), "nothing is written on mismatch")
}

func TestTLV_DecodeShort(t *testing.T) {
	tlv := TLV{}
	_, err := tlv.Decode([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrShortData)

	_, err = tlv.Decode([]byte{0x00, 0x01, 0x00, 0x03, 0x01})
	assert.ErrorIs(t, err, ErrShortData)
}

func TestTLV_DecodeFromTruncated(t *testing.T) {
	tlv := TLV{}
	_, err := tlv.DecodeFrom(bytes.NewReader([]byte{0x00, 0x01, 0x00, 0x03}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = tlv.DecodeFrom(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}
