package utils

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeDial(conn net.Conn) func(string, string) (net.Conn, error) {
	return func(string, string) (net.Conn, error) { return conn, nil }
}

func TestTxLoop_SendAndClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tx, err := NewTxLoop("tcp", "pipe", WithTxLoopDial(pipeDial(client)))
	require.NoError(t, err)

	_, err = tx.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = tx.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	done := make(chan error, 1)
	go func() { done <- tx.Serve(context.Background()) }()

	got := make([]byte, 10)
	_, err = io.ReadFull(server, got)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(got))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
	assert.Equal(t, TxLoopStats{Sent: 2}, tx.Stats())
}

func TestTxLoop_QueueFull(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tx, err := NewTxLoop("tcp", "pipe", WithTxLoopDial(pipeDial(client)), WithTxLoopQueueLen(1))
	require.NoError(t, err)

	_, err = tx.Write([]byte{1})
	require.NoError(t, err)
	n, err := tx.Write([]byte{2})
	assert.ErrorIs(t, err, ErrTxLoopFull)
	assert.Zero(t, n)
	assert.Equal(t, uint64(1), tx.Stats().Dropped)
}

func TestTxLoop_WriteFailureReported(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	var outputs []*TxLoopOutputData
	tx, err := NewTxLoop("tcp", "pipe",
		WithTxLoopDial(pipeDial(client)),
		WithTxLoopOutput(func(d *TxLoopOutputData) { outputs = append(outputs, d) }),
	)
	require.NoError(t, err)

	_, err = tx.Write([]byte("lost"))
	require.NoError(t, err)
	require.NoError(t, tx.Close())
	require.NoError(t, tx.Serve(context.Background()))

	require.Len(t, outputs, 1)
	assert.Equal(t, "Fail to write", outputs[0].Message)
	assert.Error(t, outputs[0].Err)
	assert.Equal(t, uint64(1), tx.Stats().Failed)
}

func TestNewTxLoop_DialError(t *testing.T) {
	_, err := NewTxLoop("tcp", "nowhere", WithTxLoopDial(func(string, string) (net.Conn, error) {
		return nil, assert.AnError
	}))
	assert.ErrorIs(t, err, assert.AnError)
}
