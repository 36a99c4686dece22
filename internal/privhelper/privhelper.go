// Package privhelper implements the client side of the privileged helper
// protocol. The daemon runs unprivileged; a small root helper process
// listens on a unix socket and performs mount and unmount syscalls on the
// daemon's behalf.
//
// Wire format: each message is a 4-byte big-endian length prefix followed
// by a JSON body. Requests carry a sequence number which the helper
// echoes in its response; the client issues one request at a time per
// connection, so responses always match the request in flight.
package privhelper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// maxMessageSize bounds a single protocol message. Helper responses are
// small; anything larger indicates a corrupt stream.
const maxMessageSize = 1 << 20

// Config holds privileged helper connection settings.
type Config struct {
	// SocketPath is the unix socket the helper listens on.
	SocketPath string

	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration
}

type request struct {
	Seq  uint64 `json:"seq"`
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
}

type response struct {
	Seq   uint64 `json:"seq"`
	Error string `json:"error,omitempty"`
}

// Client talks to the privileged helper over a unix socket.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	seq  uint64
}

// Connect dials the helper socket.
func Connect(ctx context.Context, config Config) (*Client, error) {
	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to privileged helper at %s: %w", config.SocketPath, err)
	}

	return &Client{conn: conn}, nil
}

// Mount asks the helper to attach the filesystem at the given path.
func (c *Client) Mount(ctx context.Context, path string) error {
	return c.call(ctx, "mount", path)
}

// Unmount asks the helper to detach the filesystem at the given path.
func (c *Client) Unmount(ctx context.Context, path string) error {
	return c.call(ctx, "unmount", path)
}

// SetLogFile redirects the helper's log output to the given file. Used
// after daemonizing so helper diagnostics follow the daemon's log.
func (c *Client) SetLogFile(ctx context.Context, path string) error {
	return c.call(ctx, "set_log_file", path)
}

// Close closes the connection to the helper.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs one request/response exchange. The connection lock
// serializes concurrent callers so frames never interleave.
func (c *Client) call(ctx context.Context, op, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("privhelper %s %s: connection closed", op, path)
	}

	c.seq++
	req := request{Seq: c.seq, Op: op, Path: path}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("privhelper %s %s: %w", op, path, err)
		}
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	if err := writeMessage(c.conn, req); err != nil {
		return fmt.Errorf("privhelper %s %s: %w", op, path, err)
	}

	var resp response
	if err := readMessage(c.conn, &resp); err != nil {
		return fmt.Errorf("privhelper %s %s: %w", op, path, err)
	}

	if resp.Seq != req.Seq {
		return fmt.Errorf("privhelper %s %s: response seq %d does not match request seq %d",
			op, path, resp.Seq, req.Seq)
	}
	if resp.Error != "" {
		return fmt.Errorf("privhelper %s %s: %s", op, path, resp.Error)
	}

	return nil
}

func writeMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxMessageSize {
		return fmt.Errorf("message size %d exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
