package poll

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPoller_Dispatch(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []byte
	err = p.Add(fds[0], func(fd int) {
		buf := make([]byte, 16)
		n, _ := syscall.Read(fd, buf)
		got = append(got, buf[:n]...)
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	_, err = syscall.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	err = p.PollWithContext(ctx, WithTimeout(10*time.Millisecond))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, p.Del(fds[0]))
	assert.Equal(t, 0, p.Len())
}

func TestReadPoller_CanceledContext(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PollWithContext(ctx), context.Canceled)
}

func TestReadPoller_CloseTwice(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	p.Close()
	p.Close()
}
