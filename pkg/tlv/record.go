package tlv

import (
	"encoding/binary"
	"io"

	"capsift/pkg/pcap"

	"github.com/pkg/errors"
)

const (
	// TypeRecord carries a capture record: a big-endian record header followed by the frame.
	TypeRecord uint16 = 1
)

// MaxRecordData is the largest frame a single TLV can carry.
const MaxRecordData = 0xFFFF - pcap.RecordHeaderLen

// EncodeRecord writes rec as one TypeRecord TLV.
func EncodeRecord(w io.Writer, rec *pcap.Record) (int, error) {
	value := make([]byte, pcap.RecordHeaderLen+len(rec.Data))
	h := rec.Header
	h.CapLen = uint32(len(rec.Data))
	h.Encode(binary.BigEndian, value)
	copy(value[pcap.RecordHeaderLen:], rec.Data)

	t, err := New(TypeRecord, value)
	if err != nil {
		return 0, err
	}
	return t.EncodeTo(w, value)
}

// DecodeRecord rebuilds a record from a TypeRecord value.
func DecodeRecord(value []byte) (*pcap.Record, error) {
	if len(value) < pcap.RecordHeaderLen {
		return nil, errors.Wrap(ErrShortData, "record header")
	}
	b := binary.BigEndian
	rec := &pcap.Record{
		Header: pcap.RecordHeader{
			TsSec:   b.Uint32(value[0:4]),
			TsUsec:  b.Uint32(value[4:8]),
			CapLen:  b.Uint32(value[8:12]),
			OrigLen: b.Uint32(value[12:16]),
		},
	}
	data := value[pcap.RecordHeaderLen:]
	if int(rec.Header.CapLen) != len(data) {
		return nil, errors.Errorf("tlv: record says %d bytes, carries %d", rec.Header.CapLen, len(data))
	}
	rec.Data = make([]byte, len(data))
	copy(rec.Data, data)
	return rec, nil
}

// RecordReader reads TypeRecord TLVs from a stream and skips other types.
// It implements the pipeline source contract: io.EOF on a clean end.
type RecordReader struct {
	r io.Reader
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: r}
}

func (rr *RecordReader) NextRecord() (*pcap.Record, error) {
	for {
		var t TLV
		value, err := t.DecodeFrom(rr.r)
		if err != nil {
			return nil, err
		}
		if t.Type != TypeRecord {
			continue
		}
		return DecodeRecord(value)
	}
}
