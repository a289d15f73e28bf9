// Package pcap reads classic libpcap capture files as a forward-only stream of records.
package pcap

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

var (
	ErrInvalidMagic   = errors.New("pcap: invalid magic number")
	ErrTruncated      = errors.New("pcap: truncated data")
	ErrRecordTooLarge = errors.New("pcap: record exceeds maximum length")
)

type readerOpts struct {
	maxRecordLen uint32
	bufferSize   int
}

type ReaderOpt func(*readerOpts)

// WithMaxRecordLen bounds the captured length accepted from a record header.
// Larger records fail with ErrRecordTooLarge before anything is allocated.
func WithMaxRecordLen(n uint32) ReaderOpt {
	return func(o *readerOpts) { o.maxRecordLen = n }
}

func WithBufferSize(n int) ReaderOpt {
	return func(o *readerOpts) { o.bufferSize = n }
}

type readerState int

const (
	stateHeaderParsed readerState = iota
	stateStreaming
	stateExhausted
	stateFailed
)

// Reader is a single-pass cursor over a capture. It is not safe for concurrent use.
type Reader struct {
	r      io.Reader
	closer io.Closer
	header GlobalHeader
	order  binary.ByteOrder
	opts   readerOpts
	state  readerState
	err    error
	hdrBuf [RecordHeaderLen]byte
}

// Open opens the capture file at path and parses its global header.
func Open(path string, opts ...ReaderOpt) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.Open")
	}

	r, err := NewReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader parses the global header from r. The caller keeps ownership of r.
func NewReader(r io.Reader, opts ...ReaderOpt) (*Reader, error) {
	o := readerOpts{maxRecordLen: DefaultMaxRecordLen, bufferSize: 1024 * 64}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReaderSize(r, o.bufferSize)

	var buf [GlobalHeaderLen]byte
	_, err := io.ReadFull(br, buf[:4])
	if err != nil {
		return nil, readErr(err, "magic number")
	}

	var order binary.ByteOrder
	magic := binary.LittleEndian.Uint32(buf[:4])
	switch magic {
	case MagicNative:
		order = binary.LittleEndian
	case MagicSwapped:
		order = binary.BigEndian
	default:
		return nil, errors.Wrapf(ErrInvalidMagic, "0x%08x", magic)
	}

	_, err = io.ReadFull(br, buf[4:])
	if err != nil {
		return nil, readErr(err, "global header")
	}

	return &Reader{
		r:      br,
		header: decodeGlobalHeader(magic, order, buf[4:]),
		order:  order,
		opts:   o,
		state:  stateHeaderParsed,
	}, nil
}

func (r *Reader) Header() GlobalHeader { return r.header }

// ByteOrder is the order selected by the magic number.
func (r *Reader) ByteOrder() binary.ByteOrder { return r.order }

// NextRecord returns the next record, or io.EOF once the capture ends cleanly.
// A stream ending inside a record header or body yields ErrTruncated.
// After any failure the reader stays failed and returns the same error.
func (r *Reader) NextRecord() (*Record, error) {
	switch r.state {
	case stateExhausted:
		return nil, io.EOF
	case stateFailed:
		return nil, r.err
	}

	_, err := io.ReadFull(r.r, r.hdrBuf[:])
	if err == io.EOF {
		r.state = stateExhausted
		return nil, io.EOF
	}
	if err != nil {
		return nil, r.fail(readErr(err, "record header"))
	}

	h := decodeRecordHeader(r.order, r.hdrBuf[:])
	if h.CapLen > r.opts.maxRecordLen {
		return nil, r.fail(errors.Wrapf(ErrRecordTooLarge, "captured length %d > %d", h.CapLen, r.opts.maxRecordLen))
	}

	data := make([]byte, h.CapLen)
	_, err = io.ReadFull(r.r, data)
	if err != nil {
		return nil, r.fail(readErr(err, "record body"))
	}

	r.state = stateStreaming
	return &Record{Header: h, Data: data}, nil
}

// Close releases the file opened by Open. Readers built with NewReader have nothing to close.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (r *Reader) fail(err error) error {
	r.state = stateFailed
	r.err = err
	return err
}

func readErr(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrTruncated, what)
	}
	return errors.Wrap(err, "read "+what)
}
