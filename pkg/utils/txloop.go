package utils

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var ErrTxLoopFull = errors.New("txloop: queue full")

type TxLoopOutputData struct {
	RawData []byte
	Message string
	Err     error
}

type txLoopOpts struct {
	dial     func(string, string) (net.Conn, error)
	output   func(*TxLoopOutputData)
	duration time.Duration
	queueLen int
}

type TxLoopOpt func(*txLoopOpts)

func WithTxLoopDial(dial func(string, string) (net.Conn, error)) TxLoopOpt {
	return func(o *txLoopOpts) { o.dial = dial }
}

func WithTxLoopOutput(output func(*TxLoopOutputData)) TxLoopOpt {
	return func(o *txLoopOpts) { o.output = output }
}

// WithTxLoopHealthCheckDur sets how often a lost connection is redialed.
func WithTxLoopHealthCheckDur(d time.Duration) TxLoopOpt {
	return func(o *txLoopOpts) { o.duration = d }
}

func WithTxLoopQueueLen(n int) TxLoopOpt {
	return func(o *txLoopOpts) { o.queueLen = n }
}

func txLoopEmptyOutput(*TxLoopOutputData) {}

type TxLoopStats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// TxLoop sends queued buffers over one connection and redials it when a write fails.
type TxLoop struct {
	network   string
	addr      string
	opts      txLoopOpts
	conn      net.Conn
	dataCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	sent, failed, dropped atomic.Uint64
}

func NewTxLoop(network, addr string, opts ...TxLoopOpt) (*TxLoop, error) {
	o := txLoopOpts{dial: net.Dial, output: txLoopEmptyOutput, duration: time.Second * 10, queueLen: 128}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := o.dial(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "Dial")
	}

	return &TxLoop{
		network: network,
		addr:    addr,
		opts:    o,
		conn:    conn,
		dataCh:  make(chan []byte, o.queueLen),
		closeCh: make(chan struct{}),
	}, nil
}

// Write queues a copy of data. It never blocks: a full queue drops data and returns ErrTxLoopFull.
func (tx *TxLoop) Write(data []byte) (int, error) {
	ownData := make([]byte, len(data))
	copy(ownData, data)
	select {
	case tx.dataCh <- ownData:
		return len(data), nil
	default:
		tx.dropped.Add(1)
		return 0, ErrTxLoopFull
	}
}

func (tx *TxLoop) Close() error {
	tx.closeOnce.Do(func() { close(tx.closeCh) })
	return nil
}

func (tx *TxLoop) Stats() TxLoopStats {
	return TxLoopStats{Sent: tx.sent.Load(), Failed: tx.failed.Load(), Dropped: tx.dropped.Load()}
}

func (tx *TxLoop) Serve(ctx context.Context) error {
	healthTick := time.NewTicker(tx.opts.duration)
	defer healthTick.Stop()
	defer func() {
		if tx.conn != nil {
			tx.conn.Close()
			tx.conn = nil
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tx.closeCh:
			tx.drain()
			return nil
		case data := <-tx.dataCh:
			tx.send(data)
		case <-healthTick.C:
			if tx.conn != nil {
				continue
			}

			conn, err := tx.opts.dial(tx.network, tx.addr)
			if err != nil {
				tx.opts.output(&TxLoopOutputData{Message: "Fail to connect", Err: err})
				continue
			}
			tx.conn = conn
			tx.opts.output(&TxLoopOutputData{Message: fmt.Sprintf("Connected %s", tx.addr)})
		}
	}
}

// drain flushes what was queued before Close.
func (tx *TxLoop) drain() {
	for {
		select {
		case data := <-tx.dataCh:
			tx.send(data)
		default:
			return
		}
	}
}

func (tx *TxLoop) send(data []byte) {
	if tx.conn == nil {
		tx.failed.Add(1)
		tx.opts.output(&TxLoopOutputData{RawData: data, Message: "Fail to write", Err: errors.New("closed conn")})
		return
	}
	_, err := tx.conn.Write(data)
	if err != nil {
		tx.failed.Add(1)
		tx.opts.output(&TxLoopOutputData{RawData: data, Message: "Fail to write", Err: err})
		tx.conn.Close()
		tx.conn = nil
		return
	}
	tx.sent.Add(1)
	tx.opts.output(&TxLoopOutputData{RawData: data, Message: "Write"})
}
