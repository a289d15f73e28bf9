// Package pipeline drains a record source through the packet decoders and
// turns each record into a display row.
package pipeline

import (
	"context"
	"io"

	"capsift/pkg/packet"
	"capsift/pkg/pcap"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Source yields records until io.EOF. *pcap.Reader and *capture.Capture implement it.
type Source interface {
	NextRecord() (*pcap.Record, error)
}

type IPv4Summary struct {
	Source        string `json:"source" yaml:"source"`
	Target        string `json:"target" yaml:"target"`
	Protocol      uint8  `json:"protocol" yaml:"protocol"`
	TTL           uint8  `json:"ttl" yaml:"ttl"`
	TotalLength   uint16 `json:"totalLength" yaml:"totalLength"`
	ChecksumValid bool   `json:"checksumValid" yaml:"checksumValid"`
}

// Row is the per-record result handed to callers.
type Row struct {
	Index   int          `json:"index" yaml:"index"`
	EthType string       `json:"ethType" yaml:"ethType"`
	Source  string       `json:"source" yaml:"source"`
	Target  string       `json:"target" yaml:"target"`
	TsSec   uint32       `json:"tsSec" yaml:"tsSec"`
	TsUsec  uint32       `json:"tsUsec" yaml:"tsUsec"`
	Length  uint32       `json:"length" yaml:"length"`
	IPv4    *IPv4Summary `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
}

type Stats struct {
	Records     int `json:"records" yaml:"records"`
	Decoded     int `json:"decoded" yaml:"decoded"`
	Dropped     int `json:"dropped" yaml:"dropped"`
	IPv4        int `json:"ipv4" yaml:"ipv4"`
	IPv4Failed  int `json:"ipv4Failed" yaml:"ipv4Failed"`
	BadChecksum int `json:"badChecksum" yaml:"badChecksum"`
}

type Result struct {
	Rows  []Row `json:"rows" yaml:"rows"`
	Stats Stats `json:"stats" yaml:"stats"`
}

type scanOpts struct {
	ipv4         bool
	strict       bool
	maxRecordLen uint32
	bufferSize   int
	logger       *logrus.Entry
}

type ScanOpt func(*scanOpts)

// WithIPv4 toggles decoding of IPv4 datagrams. Enabled by default.
func WithIPv4(enable bool) ScanOpt {
	return func(o *scanOpts) { o.ipv4 = enable }
}

// WithStrict makes the first record that is not an Ethernet frame abort the scan instead of being skipped.
func WithStrict(enable bool) ScanOpt {
	return func(o *scanOpts) { o.strict = enable }
}

// WithMaxRecordLen is passed to the reader opened by AnalyzeFile.
func WithMaxRecordLen(n uint32) ScanOpt {
	return func(o *scanOpts) { o.maxRecordLen = n }
}

// WithBufferSize is passed to the reader opened by AnalyzeFile.
func WithBufferSize(n int) ScanOpt {
	return func(o *scanOpts) { o.bufferSize = n }
}

func WithLogger(l *logrus.Entry) ScanOpt {
	return func(o *scanOpts) { o.logger = l }
}

func newScanOpts(opts []ScanOpt) scanOpts {
	o := scanOpts{ipv4: true, maxRecordLen: pcap.DefaultMaxRecordLen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}

// Scan reads src until it is exhausted and calls fn for every decodable record.
// Records that are not Ethernet frames are counted in Stats.Dropped and skipped
// unless strict mode is on. A frame whose IPv4 layer fails, e.g. cut short by the
// snapshot length, still yields a row without IPv4 and is counted in
// Stats.IPv4Failed. Source errors end the scan and are returned with the stats so far.
func Scan(ctx context.Context, src Source, fn func(Row) error, opts ...ScanOpt) (Stats, error) {
	o := newScanOpts(opts)

	var decodeOpts []packet.DecodeOpt
	if !o.ipv4 {
		decodeOpts = append(decodeOpts, packet.WithoutIPv4())
	}
	decoder := packet.NewLayersDecoder(decodeOpts...)

	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		rec, err := src.NextRecord()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, errors.Wrap(err, "NextRecord")
		}
		index := stats.Records
		stats.Records++

		p, err := decoder.Decode(rec.Data)
		if err != nil && p != nil && p.Ethernet != nil {
			stats.IPv4Failed++
			o.logger.WithField("record", index).WithField("caplen", rec.Header.CapLen).WithError(err).Debug("Keep record without IPv4 layer")
		} else if err != nil {
			if o.strict {
				return stats, errors.Wrapf(err, "record %d", index)
			}
			stats.Dropped++
			o.logger.WithField("record", index).WithField("caplen", rec.Header.CapLen).WithError(err).Debug("Skip undecodable record")
			continue
		}
		stats.Decoded++

		row := newRow(index, rec, p)
		if row.IPv4 != nil {
			stats.IPv4++
			if !row.IPv4.ChecksumValid {
				stats.BadChecksum++
			}
		}

		err = fn(row)
		if err != nil {
			return stats, err
		}
	}
}

// Analyze collects every row produced by Scan.
func Analyze(ctx context.Context, src Source, opts ...ScanOpt) (*Result, error) {
	res := &Result{Rows: []Row{}}
	stats, err := Scan(ctx, src, func(r Row) error {
		res.Rows = append(res.Rows, r)
		return nil
	}, opts...)
	res.Stats = stats
	return res, err
}

// AnalyzeFile opens the capture at path and analyzes it. The file is closed on return.
func AnalyzeFile(ctx context.Context, path string, opts ...ScanOpt) (*Result, error) {
	o := newScanOpts(opts)

	readerOpts := []pcap.ReaderOpt{pcap.WithMaxRecordLen(o.maxRecordLen)}
	if o.bufferSize > 0 {
		readerOpts = append(readerOpts, pcap.WithBufferSize(o.bufferSize))
	}
	r, err := pcap.Open(path, readerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "pcap.Open")
	}
	defer r.Close()

	h := r.Header()
	o.logger.WithField("path", path).
		WithField("version", h.VersionMajor).
		WithField("snaplen", h.SnapLen).
		WithField("linktype", h.LinkType).
		Debug("Opened capture")
	if h.LinkType != pcap.LinkTypeEthernet {
		o.logger.WithField("linktype", h.LinkType).Warn("Capture is not Ethernet, records will likely be dropped")
	}

	res, err := Analyze(ctx, r, opts...)
	if err != nil {
		return res, err
	}
	o.logger.WithField("records", res.Stats.Records).WithField("dropped", res.Stats.Dropped).Debug("Capture analyzed")
	return res, nil
}

func newRow(index int, rec *pcap.Record, p *packet.Packet) Row {
	row := Row{
		Index:   index,
		EthType: p.Ethernet.Type.String(),
		Source:  p.Ethernet.SrcMAC.String(),
		Target:  p.Ethernet.DstMAC.String(),
		TsSec:   rec.Header.TsSec,
		TsUsec:  rec.Header.TsUsec,
		Length:  rec.Header.OrigLen,
	}
	if ip := p.IPv4; ip != nil {
		row.IPv4 = &IPv4Summary{
			Source:        ip.SrcIP.String(),
			Target:        ip.DstIP.String(),
			Protocol:      ip.Protocol,
			TTL:           ip.TTL,
			TotalLength:   ip.TotalLength,
			ChecksumValid: ip.ValidateChecksum(),
		}
	}
	return row
}
