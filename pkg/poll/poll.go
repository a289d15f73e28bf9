// Package poll dispatches epoll read readiness to per-fd handlers.
package poll

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Shortest wait between context checks.
const minWait = 50 * time.Millisecond

type pollOpts struct {
	timeout   time.Duration
	maxEvents int
}

type PollOpt func(*pollOpts)

// WithTimeout sets how long one epoll_wait may block. Values under 50ms are raised to 50ms.
func WithTimeout(d time.Duration) PollOpt {
	return func(o *pollOpts) { o.timeout = d }
}

// WithMaxEvents bounds the events handled per epoll_wait.
func WithMaxEvents(n int) PollOpt {
	return func(o *pollOpts) { o.maxEvents = n }
}

type ReadHandler func(fd int)

type ReadPoller struct {
	handlers map[int]ReadHandler
	mu       sync.RWMutex
	efd      int
	closed   bool
}

func New() (*ReadPoller, error) {
	efd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "syscall.EpollCreate1")
	}
	return &ReadPoller{
		handlers: make(map[int]ReadHandler),
		efd:      efd,
	}, nil
}

func (p *ReadPoller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		syscall.Close(p.efd)
		p.closed = true
	}
}

func (p *ReadPoller) Add(fd int, handler ReadHandler) error {
	err := syscall.EpollCtl(p.efd, syscall.EPOLL_CTL_ADD, fd, &syscall.EpollEvent{Fd: int32(fd), Events: syscall.EPOLLIN})
	if err != nil {
		return errors.Wrap(err, "syscall.EpollCtl")
	}

	p.mu.Lock()
	p.handlers[fd] = handler
	p.mu.Unlock()
	return nil
}

func (p *ReadPoller) Del(fd int) error {
	err := syscall.EpollCtl(p.efd, syscall.EPOLL_CTL_DEL, fd, &syscall.EpollEvent{Fd: int32(fd), Events: syscall.EPOLLIN})
	if err != nil {
		return errors.Wrap(err, "syscall.EpollCtl")
	}

	p.mu.Lock()
	delete(p.handlers, fd)
	p.mu.Unlock()
	return nil
}

func (p *ReadPoller) Len() int {
	p.mu.RLock()
	l := len(p.handlers)
	p.mu.RUnlock()
	return l
}

func (p *ReadPoller) Poll(opts ...PollOpt) error {
	return p.PollWithContext(context.Background(), opts...)
}

// PollWithContext runs handlers for readable fds until ctx is done or epoll fails.
func (p *ReadPoller) PollWithContext(ctx context.Context, opts ...PollOpt) error {
	o := pollOpts{timeout: minWait, maxEvents: 64}
	for _, opt := range opts {
		opt(&o)
	}
	msec := int(max(o.timeout, minWait) / time.Millisecond)
	events := make([]syscall.EpollEvent, o.maxEvents)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := syscall.EpollWait(p.efd, events, msec)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "syscall.EpollWait")
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			p.mu.RLock()
			cb, ok := p.handlers[fd]
			p.mu.RUnlock()
			if ok {
				cb(fd)
			}
		}
	}
}
