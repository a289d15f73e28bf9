package dump

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"capsift/pkg/packet"
	"capsift/pkg/pcap"
	"capsift/pkg/pipeline"
	"capsift/pkg/tlv"
	"capsift/pkg/utils"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/songgao/water"
)

type DumpWriter interface {
	Type() string
	Write(*pcap.Record) error
	io.Closer
}

// FileWriter appends records to a pcap file, writing the file header when the file is new.
type FileWriter struct {
	file   *os.File
	buffer *bytes.Buffer
	pcapw  *pcapgo.Writer
}

func NewFileWriter(filename string, snapLen uint32) (*FileWriter, error) {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_WRONLY, 0644)
	if os.IsNotExist(err) {
		f, err = os.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	}
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile")
	}

	b := bytes.NewBuffer(make([]byte, 0, 1024*64))

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "file.Stat")
	}
	if info.Size() == 0 {
		w := pcapgo.NewWriter(b)
		err = w.WriteFileHeader(snapLen, layers.LinkTypeEthernet)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "pcapgo.WriteFileHeader")
		}
		_, err = f.Write(b.Bytes())
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "file.Write")
		}
		b.Reset()
	}

	return &FileWriter{
		file:   f,
		buffer: b,
		pcapw:  pcapgo.NewWriter(b),
	}, nil
}

func (d *FileWriter) Type() string { return "file" }

func (d *FileWriter) Write(rec *pcap.Record) error {
	d.buffer.Reset()

	err := d.pcapw.WritePacket(gopacket.CaptureInfo{
		Timestamp:     rec.Timestamp(),
		CaptureLength: len(rec.Data),
		Length:        max(int(rec.Header.OrigLen), len(rec.Data)),
	}, rec.Data)
	if err != nil {
		return errors.Wrap(err, "pcapgo.WritePacket")
	}

	_, err = d.file.Write(d.buffer.Bytes())
	return err
}

func (d *FileWriter) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// TCPWriter forwards records as TLVs to a capsift serve instance.
type TCPWriter struct {
	tx     *utils.TxLoop
	buffer *bytes.Buffer
	done   chan error
}

func NewTCPWriter(addr string, opts ...utils.TxLoopOpt) (*TCPWriter, error) {
	opts = append([]utils.TxLoopOpt{utils.WithTxLoopOutput(func(d *utils.TxLoopOutputData) {
		l := logrus.WithField("addr", addr)
		if d.Err != nil {
			l.WithError(d.Err).Warn(d.Message)
			return
		}

		if logrus.GetLevel() >= logrus.TraceLevel {
			if d.RawData != nil {
				l = l.WithField("datalen", len(d.RawData))
			}
			l.Trace(d.Message)
		}
	})}, opts...)

	txLoop, err := utils.NewTxLoop("tcp", addr, opts...)
	if err != nil {
		return nil, err
	}

	w := &TCPWriter{
		tx:     txLoop,
		buffer: bytes.NewBuffer(make([]byte, 0, 1024*64)),
		done:   make(chan error, 1),
	}
	go func() { w.done <- txLoop.Serve(context.Background()) }()
	return w, nil
}

func (d *TCPWriter) Type() string { return "tcp" }

func (d *TCPWriter) Write(rec *pcap.Record) error {
	if len(rec.Data) > tlv.MaxRecordData {
		return errors.Wrapf(tlv.ErrValueTooLarge, "frame of %d bytes", len(rec.Data))
	}

	d.buffer.Reset()
	_, err := tlv.EncodeRecord(d.buffer, rec)
	if err != nil {
		return errors.Wrap(err, "tlv.EncodeRecord")
	}
	_, err = d.tx.Write(d.buffer.Bytes())
	return err
}

// Close flushes queued records and waits for the connection to close.
func (d *TCPWriter) Close() error {
	d.tx.Close()
	err := <-d.done
	stats := d.tx.Stats()
	logrus.WithField("sent", stats.Sent).
		WithField("failed", stats.Failed).
		WithField("dropped", stats.Dropped).
		Debug("TCP forwarding stopped")
	return err
}

// StdoutWriter prints one tcpdump-style line per record.
type StdoutWriter struct {
	w         io.Writer
	decoder   packet.Decoder
	formatter packet.Formatter
}

func NewStdoutWriter(w io.Writer, opts ...packet.DecodeOpt) *StdoutWriter {
	return &StdoutWriter{w: w, decoder: packet.NewLayersDecoder(opts...), formatter: packet.LineFormatter{}}
}

func (StdoutWriter) Type() string { return "stdout" }

func (s StdoutWriter) Write(rec *pcap.Record) error {
	p, decodeErr := s.decoder.Decode(rec.Data)
	if p == nil {
		return errors.Wrap(decodeErr, "packet.Decode")
	}

	line, err := s.formatter.Format(p)
	if err != nil {
		return errors.Wrap(err, "formatter.Format")
	}

	if decodeErr != nil {
		_, err = fmt.Fprintf(s.w, "%s %s, %v\n", FormatDumpTime(rec.Timestamp()), line, decodeErr)
	} else {
		_, err = fmt.Fprintf(s.w, "%s %s\n", FormatDumpTime(rec.Timestamp()), line)
	}
	return err
}

func (StdoutWriter) Close() error { return nil }

// TunWriter injects the IPv4 datagrams carried by records into a TUN device.
type TunWriter struct {
	tun *water.Interface
}

func NewTunWriter(tunName string) (*TunWriter, error) {
	ifaceTun, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name:    tunName,
			Persist: true,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "water.New")
	}
	return &TunWriter{tun: ifaceTun}, nil
}

func (t *TunWriter) Type() string { return "tun" }

// Write skips frames that do not carry IPv4.
func (t *TunWriter) Write(rec *pcap.Record) error {
	datagram, err := ipv4Datagram(rec.Data)
	if err != nil || datagram == nil {
		return err
	}
	_, err = t.tun.Write(datagram)
	return err
}

func (t *TunWriter) Close() error {
	if t.tun != nil {
		return t.tun.Close()
	}
	return nil
}

// ipv4Datagram returns the datagram inside frame trimmed to its total length,
// or nil when frame is not IPv4.
func ipv4Datagram(frame []byte) ([]byte, error) {
	eth, err := packet.DecodeEthernet(frame)
	if err != nil {
		return nil, err
	}
	if eth.Type != packet.EtherTypeIPv4 {
		return nil, nil
	}

	ip, err := packet.DecodeIPv4(eth.Payload)
	if err != nil {
		return nil, err
	}
	if int(ip.TotalLength) < ip.HeaderLen() {
		return nil, errors.Wrapf(packet.ErrLengthMismatch, "total length %d below header length %d", ip.TotalLength, ip.HeaderLen())
	}
	return eth.Payload[:ip.TotalLength], nil
}

func FormatDumpTime(t time.Time) string {
	return t.Local().Format("15:04:05.000000")
}

// dumpRecords hands every record from src to each writer until src ends or ctx is done.
// Writer failures are logged and do not stop the dump.
func dumpRecords(ctx context.Context, src pipeline.Source, writers []DumpWriter) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		rec, err := src.NextRecord()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "record %d", n)
		}

		for _, w := range writers {
			err := w.Write(rec)
			if err != nil {
				logrus.WithField("type", w.Type()).WithField("record", n).WithError(err).Warn("Fail to write")
				continue
			}
		}
		n++
	}
}
