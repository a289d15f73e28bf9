// Package tlv frames values as Type(2) + Length(2) + Value, big-endian.
package tlv

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrShortData     = errors.New("tlv: data less than TLV length")
	ErrValueTooLarge = errors.New("tlv: value exceeds 65535 bytes")
)

type TLV struct {
	Type   uint16
	Length uint16
}

// Type(2) + Length(2)
const tlvHdrLen = 4

// New returns the header for value, or ErrValueTooLarge.
func New(typ uint16, value []byte) (TLV, error) {
	if len(value) > math.MaxUint16 {
		return TLV{}, errors.Wrapf(ErrValueTooLarge, "%d bytes", len(value))
	}
	return TLV{Type: typ, Length: uint16(len(value))}, nil
}

func (t *TLV) Len() int {
	return tlvHdrLen + int(t.Length)
}

func (t *TLV) decodeHeader(h []byte) {
	t.Type = binary.BigEndian.Uint16(h[:2])
	t.Length = binary.BigEndian.Uint16(h[2:4])
}

// DecodeFrom reads one TLV from r. A clean end before the header is io.EOF.
func (t *TLV) DecodeFrom(r io.Reader) ([]byte, error) {
	var h [tlvHdrLen]byte
	_, err := io.ReadFull(r, h[:])
	if err != nil {
		return nil, err
	}
	t.decodeHeader(h[:])

	value := make([]byte, t.Length)
	_, err = io.ReadFull(r, value)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return value, err
}

func (t *TLV) Decode(data []byte) ([]byte, error) {
	if len(data) < tlvHdrLen {
		return nil, errors.Wrap(ErrShortData, "header")
	}
	t.decodeHeader(data)

	if len(data) < t.Len() {
		return nil, errors.Wrap(ErrShortData, "value")
	}
	return data[tlvHdrLen:t.Len()], nil
}

func (t *TLV) EncodeTo(w io.Writer, value []byte) (int, error) {
	if len(value) != int(t.Length) {
		return 0, errors.Errorf("tlv: value is %d bytes, header says %d", len(value), t.Length)
	}

	var h [tlvHdrLen]byte
	binary.BigEndian.PutUint16(h[:2], t.Type)
	binary.BigEndian.PutUint16(h[2:4], t.Length)

	nh, err := w.Write(h[:])
	if err != nil {
		return nh, err
	}

	nv, err := w.Write(value)
	return nh + nv, err
}

func (t *TLV) Encode(value []byte) ([]byte, error) {
	b := bytes.NewBuffer(make([]byte, 0, tlvHdrLen+len(value)))
	_, err := t.EncodeTo(b, value)
	return b.Bytes(), err
}
