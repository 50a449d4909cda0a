package send

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/sweetsrepo/send/internal/wire"
)

// loopbackPair returns the two ends of a loopback TCP connection. Unlike
// net.Pipe it buffers writes, which the receiver needs: it sends a full
// credit window of FETCH requests before it reads the first reply.
func loopbackPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	return <-accepted, dialed
}

// runTransfer wires a Transmitter serving srcPath to a Receiver storing
// into a fresh temp directory over a loopback TCP connection, and blocks
// until both sides finish. It returns the receiver's destination directory.
func runTransfer(t *testing.T, srcPath string, updates UpdatesAvailable) string {
	t.Helper()
	defer leaktest.Check(t)()

	a, b := loopbackPair(t)
	txConn := wire.NewConn(a, Pipeline)
	rxConn := wire.NewConn(b, Pipeline)

	dest := t.TempDir()
	txReg := NewRegistry()
	rxReg := NewRegistry()

	tx, err := NewTransmitter(txConn, NewPeerId(), txReg, srcPath, updates, testTopic(t))
	require.NoError(t, err)
	rx, err := NewReceiver(rxConn, NewPeerId(), rxReg, dest, testTopic(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txErr := make(chan error, 1)
	rxErr := make(chan error, 1)
	go func() { txErr <- tx.Run(ctx) }()
	go func() { rxErr <- rx.Run(ctx) }()

	require.NoError(t, <-rxErr)
	require.NoError(t, <-txErr)

	txConn.Close()
	rxConn.Close()
	return dest
}

func TestTransferSmallSingleFile(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0o644))

	dest := runTransfer(t, filepath.Join(srcDir, "a.txt"), AlwaysUpdated)

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestTransferFileExactlyOneChunk(t *testing.T) {
	srcDir := t.TempDir()
	content := make([]byte, ChunkSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "exact.bin"), content, 0o644))

	dest := runTransfer(t, filepath.Join(srcDir, "exact.bin"), AlwaysUpdated)

	got, err := os.ReadFile(filepath.Join(dest, "exact.bin"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestTransferNestedDirectoryMultiChunkFile(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "d", "sub"), 0o755))
	content := make([]byte, 600000)
	for i := range content {
		content[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "d", "sub", "x.bin"), content, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "top.txt"), []byte("top level"), 0o644))

	dest := runTransfer(t, srcDir, AlwaysUpdated)

	got, err := os.ReadFile(filepath.Join(dest, "d", "sub", "x.bin"))
	require.NoError(t, err)
	require.Equal(t, content, got)

	got, err = os.ReadFile(filepath.Join(dest, "top.txt"))
	require.NoError(t, err)
	require.Equal(t, "top level", string(got))
}

func TestTransferEmptyDirectoryCompletesWithNoFiles(t *testing.T) {
	srcDir := t.TempDir() // empty

	dest := runTransfer(t, srcDir, AlwaysUpdated)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTransferWaitsOnUpdatesAvailablePredicate(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hi"), 0o644))

	calls := 0
	predicate := func() bool {
		calls++
		return calls > 2
	}

	dest := runTransfer(t, filepath.Join(srcDir, "a.txt"), predicate)
	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
	require.Greater(t, calls, 2)
}

// TestTransferStopsCleanlyWhenTransportDestroyed models spec scenario 6: the
// connection is torn down mid-transfer, and both sides must exit promptly
// rather than hanging, leaving whatever partial file was already written.
func TestTransferStopsCleanlyWhenTransportDestroyed(t *testing.T) {
	srcDir := t.TempDir()
	content := make([]byte, 900000)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "big.bin"), content, 0o644))

	a, b := net.Pipe()
	txConn := wire.NewConn(a, Pipeline)
	rxConn := wire.NewConn(b, Pipeline)

	dest := t.TempDir()
	tx, err := NewTransmitter(txConn, NewPeerId(), NewRegistry(), filepath.Join(srcDir, "big.bin"), AlwaysUpdated, testTopic(t))
	require.NoError(t, err)
	rx, err := NewReceiver(rxConn, NewPeerId(), NewRegistry(), dest, testTopic(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	txErr := make(chan error, 1)
	rxErr := make(chan error, 1)
	go func() { txErr <- tx.Run(ctx) }()
	go func() { rxErr <- rx.Run(ctx) }()

	// Let the handshake and a few chunks exchange, then sever the transport.
	time.Sleep(50 * time.Millisecond)
	cancel()
	txConn.Close()
	rxConn.Close()

	select {
	case err := <-txErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transmitter did not exit after transport was destroyed")
	}
	select {
	case err := <-rxErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not exit after transport was destroyed")
	}
}
