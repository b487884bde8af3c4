package control

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "repeat.socket")
	srv, err := NewServer(socketPath, nil)
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv, socketPath
}

func TestShowCommandIsAckedOnEnqueue(t *testing.T) {
	srv, socketPath := newTestServer(t)

	client, err := Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(Show))

	select {
	case cmd := <-srv.Commands():
		assert.Equal(t, Show, cmd.Verb)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanned-in command")
	}
}

func TestUnknownVerbIsRejectedWithoutFanIn(t *testing.T) {
	_, socketPath := newTestServer(t)

	client, err := Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	err = client.Send(Verb("bogus"))
	require.Error(t, err)
}

func TestFullQueueRejectsFurtherCommandsAsBusy(t *testing.T) {
	srv, socketPath := newTestServer(t)

	// Saturate the bounded queue without anyone draining it.
	for i := 0; i < queueCapacity; i++ {
		client, err := Dial(socketPath)
		require.NoError(t, err)
		require.NoError(t, client.Send(Pause))
		client.Close()
	}

	client, err := Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()

	err = client.Send(Pause)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")

	for i := 0; i < queueCapacity; i++ {
		<-srv.Commands()
	}
}

func TestStaleSocketIsRemovedBeforeBind(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "repeat.socket")

	first, err := NewServer(socketPath, nil)
	require.NoError(t, err)
	go first.Serve()
	// Leave the socket file behind on close, as a crashed daemon would.
	first.listener.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, first.Close())

	second, err := NewServer(socketPath, nil)
	require.NoError(t, err)
	defer second.Close()

	client, err := Dial(socketPath)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Send(Start))
	<-second.Commands()
}
