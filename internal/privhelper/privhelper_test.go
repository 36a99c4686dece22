package privhelper

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeHelper accepts one connection and answers every request with the
// configured error string.
type fakeHelper struct {
	listener net.Listener
	errText  string

	requests chan request
}

func startFakeHelper(t *testing.T, errText string) (*fakeHelper, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "helper.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	h := &fakeHelper{
		listener: listener,
		errText:  errText,
		requests: make(chan request, 16),
	}

	go h.serve()
	t.Cleanup(func() { _ = listener.Close() })

	return h, socketPath
}

func (h *fakeHelper) serve() {
	conn, err := h.listener.Accept()
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var req request
		if err := readMessage(conn, &req); err != nil {
			return
		}
		h.requests <- req

		resp := response{Seq: req.Seq, Error: h.errText}
		if err := writeMessage(conn, resp); err != nil {
			return
		}
	}
}

func TestMountRoundtrip(t *testing.T) {
	helper, socketPath := startFakeHelper(t, "")

	client, err := Connect(context.Background(), Config{SocketPath: socketPath})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Mount(context.Background(), "/mnt/data"))

	req := <-helper.requests
	require.Equal(t, "mount", req.Op)
	require.Equal(t, "/mnt/data", req.Path)
}

func TestHelperError(t *testing.T) {
	_, socketPath := startFakeHelper(t, "permission denied")

	client, err := Connect(context.Background(), Config{SocketPath: socketPath})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	err = client.Unmount(context.Background(), "/mnt/data")
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")
}

func TestSequenceNumbersIncrease(t *testing.T) {
	helper, socketPath := startFakeHelper(t, "")

	client, err := Connect(context.Background(), Config{SocketPath: socketPath})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Mount(context.Background(), "/mnt/a"))
	require.NoError(t, client.SetLogFile(context.Background(), "/var/log/driftfs.log"))

	first := <-helper.requests
	second := <-helper.requests
	require.Equal(t, first.Seq+1, second.Seq)
	require.Equal(t, "set_log_file", second.Op)
}

func TestConnectMissingSocket(t *testing.T) {
	_, err := Connect(context.Background(), Config{
		SocketPath:     filepath.Join(t.TempDir(), "nope.sock"),
		ConnectTimeout: time.Second,
	})
	require.Error(t, err)
}

func TestCallAfterClose(t *testing.T) {
	_, socketPath := startFakeHelper(t, "")

	client, err := Connect(context.Background(), Config{SocketPath: socketPath})
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err = client.Mount(context.Background(), "/mnt/data")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection closed")
}

func TestContextDeadlineApplied(t *testing.T) {
	// A helper that never responds: the call must fail once the context
	// deadline passes instead of blocking forever.
	socketPath := filepath.Join(t.TempDir(), "helper.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		var req request
		_ = readMessage(conn, &req) // read and never answer
		_ = readMessage(conn, &req) // blocks until the client hangs up
	}()

	client, err := Connect(context.Background(), Config{SocketPath: socketPath})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = client.Mount(ctx, "/mnt/data")
	require.Error(t, err)
}
