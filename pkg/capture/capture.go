// Package capture reads frames from a network interface through an AF_PACKET socket.
package capture

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"capsift/pkg/pcap"
	"capsift/pkg/poll"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type captureOpts struct {
	timeout          time.Duration
	snapLen          int
	queueLen         int
	promisc          bool
	readErrorHandler func(error)
}

type CaptureOpt func(*captureOpts)

func WithCaptureTimeout(d time.Duration) CaptureOpt {
	return func(o *captureOpts) { o.timeout = d }
}

// WithCaptureSnapLen limits how many bytes of each frame are kept.
func WithCaptureSnapLen(n int) CaptureOpt {
	return func(o *captureOpts) { o.snapLen = n }
}

// WithCaptureQueueLen sets how many records may wait for NextRecord before new ones are dropped.
func WithCaptureQueueLen(n int) CaptureOpt {
	return func(o *captureOpts) { o.queueLen = n }
}

func WithCapturePromisc(enable bool) CaptureOpt {
	return func(o *captureOpts) { o.promisc = enable }
}

func WithCaptureReadErrorHandle(eh func(error)) CaptureOpt {
	return func(o *captureOpts) { o.readErrorHandler = eh }
}

// Capture turns received frames into records, so live traffic can go through
// the same pipeline as a capture file.
type Capture struct {
	rawFd    int
	poller   *poll.ReadPoller
	buffer   []byte
	recordCh chan *pcap.Record
	opts     captureOpts
	dropped  atomic.Uint64
	served   atomic.Bool
	closeOne sync.Once
}

func NewCaptureByIfaceIndex(ifIndex int, opts ...CaptureOpt) (*Capture, error) {
	o := captureOpts{snapLen: 1024 * 64, queueLen: 128}
	for _, opt := range opts {
		opt(&o)
	}

	rawFd, err := OpenRawSocket(ifIndex)
	if err != nil {
		return nil, err
	}

	if o.promisc {
		err = SetPacketMembership(rawFd, int32(ifIndex))
		if err != nil {
			syscall.Close(rawFd)
			return nil, errors.Wrap(err, "SetPacketMembership")
		}
	}

	poller, err := poll.New()
	if err != nil {
		syscall.Close(rawFd)
		return nil, err
	}

	c := &Capture{
		rawFd:    rawFd,
		poller:   poller,
		buffer:   make([]byte, o.snapLen+1),
		recordCh: make(chan *pcap.Record, o.queueLen),
		opts:     o,
	}

	err = poller.Add(rawFd, c.onReadable)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func NewCaptureByIfaceName(name string, opts ...CaptureOpt) (*Capture, error) {
	link, err := net.InterfaceByName(name)
	if err != nil {
		return nil, errors.Wrap(err, "net.InterfaceByName")
	}
	return NewCaptureByIfaceIndex(link.Index, opts...)
}

// Serve polls the socket until ctx is done. NextRecord reports io.EOF once Serve has returned.
func (c *Capture) Serve(ctx context.Context) error {
	if !c.served.CompareAndSwap(false, true) {
		return errors.New("capture already served")
	}
	defer close(c.recordCh)

	var opts []poll.PollOpt
	if c.opts.timeout != 0 {
		opts = append(opts, poll.WithTimeout(c.opts.timeout))
	}
	return c.poller.PollWithContext(ctx, opts...)
}

// NextRecord blocks until a frame arrives.
func (c *Capture) NextRecord() (*pcap.Record, error) {
	rec, ok := <-c.recordCh
	if !ok {
		return nil, io.EOF
	}
	return rec, nil
}

// Dropped counts records discarded because the queue was full.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// SnapLen is the per-frame capture limit, suitable for a capture file header.
func (c *Capture) SnapLen() int {
	return c.opts.snapLen
}

// Close releases the socket and poller. Call it after Serve has returned.
func (c *Capture) Close() {
	c.closeOne.Do(func() {
		if c.poller != nil {
			c.poller.Close()
		}
		syscall.Close(c.rawFd)
	})
}

func (c *Capture) onReadable(fd int) {
	now := time.Now()
	data, origLen, err := c.recvmsg(fd)
	if err != nil {
		if c.opts.readErrorHandler != nil {
			c.opts.readErrorHandler(err)
		}
		return
	}

	c.enqueue(now, data, origLen)
}

// enqueue copies data into a record, dropping it when the queue is full.
func (c *Capture) enqueue(ts time.Time, data []byte, origLen int) {
	rec := &pcap.Record{
		Header: pcap.RecordHeader{
			TsSec:   uint32(ts.Unix()),
			TsUsec:  uint32(ts.Nanosecond() / 1000),
			CapLen:  uint32(len(data)),
			OrigLen: uint32(origLen),
		},
		Data: make([]byte, len(data)),
	}
	copy(rec.Data, data)

	select {
	case c.recordCh <- rec:
	default:
		c.dropped.Add(1)
	}
}

func (c *Capture) recvmsg(fd int) ([]byte, int, error) {
	// ref: https://github.com/google/gopacket/blob/master/pcapgo/capture.go#L45
	// we could use unix.Recvmsg, but that does a memory allocation (for the returned sockaddr) :(
	var msg unix.Msghdr
	var sa unix.RawSockaddrLinklayer

	msg.Name = (*byte)(unsafe.Pointer(&sa))
	msg.Namelen = uint32(unsafe.Sizeof(sa))

	var iov unix.Iovec
	iov.Base = &c.buffer[0]
	iov.SetLen(len(c.buffer))
	msg.Iov = &iov
	msg.Iovlen = 1

	// MSG_TRUNC makes the kernel report the original frame length
	n, _, e := syscall.Syscall(unix.SYS_RECVMSG, uintptr(fd), uintptr(unsafe.Pointer(&msg)), uintptr(unix.MSG_TRUNC))
	if e != 0 {
		return nil, 0, errors.Wrap(e, "unix.SYS_RECVMSG")
	}

	captureLen := min(int(n), c.opts.snapLen)
	return c.buffer[:captureLen], int(n), nil
}
