package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/aeolun/tower/pkg/protocol"
	"github.com/gorilla/websocket"
)

// maxReplyLen bounds auth/register replies, which are a single status byte
const maxReplyLen = 1024

// transport performs RAC requests over one scheme. Callers serialize access.
type transport interface {
	// size returns the current log size in bytes
	size(ctx context.Context) (int, error)

	// fetch returns the log size and everything after offset when the log
	// has grown past it
	fetch(ctx context.Context, offset int) (int, []byte, error)

	// roundTrip writes one request. With wantReply the server's reply is
	// returned (empty means success).
	roundTrip(ctx context.Context, payload []byte, wantReply bool) ([]byte, error)

	close() error
}

// traffic counts bytes on the wire for one session
type traffic struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// countingConn wraps a net.Conn to count bytes on the wire
type countingConn struct {
	net.Conn
	traffic *traffic
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.traffic.received.Add(uint64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.traffic.sent.Add(uint64(n))
	return n, err
}

// CloseWrite half-closes the connection so the server sees the end of the request
func (c *countingConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(timeout)
}

// racTransport opens a fresh TCP (or TLS) connection for every request,
// which is how RAC servers expect to be spoken to
type racTransport struct {
	addr      Address
	tlsConfig *tls.Config // nil for plain TCP
	timeout   time.Duration
	traffic   *traffic
}

func (t *racTransport) dial(ctx context.Context) (*countingConn, error) {
	netDialer := &net.Dialer{Timeout: t.timeout}

	var conn net.Conn
	var err error
	if t.tlsConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: t.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", t.addr.HostPort())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", t.addr.HostPort())
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.addr, err)
	}

	if err := conn.SetDeadline(deadlineFor(ctx, t.timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	return &countingConn{Conn: conn, traffic: t.traffic}, nil
}

func (t *racTransport) readSize(conn net.Conn) (int, error) {
	if _, err := conn.Write(protocol.EncodeSizeRequest()); err != nil {
		return 0, fmt.Errorf("write size request: %w", err)
	}

	// The size reply is a single short write; the server then waits for the
	// follow-up on the same connection, so there is no EOF to read up to.
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("read size reply: %w", err)
	}
	return protocol.DecodeSize(buf[:n])
}

func (t *racTransport) size(ctx context.Context) (int, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return t.readSize(conn)
}

func (t *racTransport) fetch(ctx context.Context, offset int) (int, []byte, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer conn.Close()

	size, err := t.readSize(conn)
	if err != nil {
		return 0, nil, err
	}

	n, err := protocol.ChunkSize(size, offset)
	if err != nil || n == 0 {
		return size, nil, err
	}

	if _, err := conn.Write(protocol.EncodeChunkRequest(offset)); err != nil {
		return 0, nil, fmt.Errorf("write chunk request: %w", err)
	}

	chunk := make([]byte, n)
	if _, err := io.ReadFull(conn, chunk); err != nil {
		return 0, nil, fmt.Errorf("read chunk (%d bytes): %w", n, err)
	}
	return size, chunk, nil
}

func (t *racTransport) roundTrip(ctx context.Context, payload []byte, wantReply bool) ([]byte, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := conn.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	// The server closes once the request is handled, so reading to EOF also
	// orders this request before the next one.
	reply, err := io.ReadAll(io.LimitReader(conn, maxReplyLen))
	if err != nil && wantReply {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

func (t *racTransport) close() error { return nil }

// wracTransport keeps one WebSocket open for the session and exchanges one
// binary message per request. A broken socket is dropped and redialed on
// the next request.
type wracTransport struct {
	addr      Address
	tlsConfig *tls.Config // nil for ws://
	timeout   time.Duration
	traffic   *traffic
	conn      *websocket.Conn
}

func (t *wracTransport) url() string {
	if t.tlsConfig != nil {
		return "wss://" + t.addr.HostPort() + "/"
	}
	return "ws://" + t.addr.HostPort() + "/"
}

func (t *wracTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.timeout,
		TLSClientConfig:  t.tlsConfig,
	}
	conn, _, err := dialer.DialContext(ctx, t.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url(), err)
	}
	conn.SetReadLimit(protocol.MaxChunkSize + maxReplyLen)
	t.conn = conn
	return conn, nil
}

// drop discards a socket after an error. Gorilla connections cannot be
// reused once a read or write has failed.
func (t *wracTransport) drop() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *wracTransport) exchange(ctx context.Context, payload []byte, wantReply bool) ([]byte, error) {
	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline := deadlineFor(ctx, t.timeout)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.drop()
		return nil, fmt.Errorf("write request: %w", err)
	}
	t.traffic.sent.Add(uint64(len(payload)))

	if !wantReply {
		return nil, nil
	}

	conn.SetReadDeadline(deadline)
	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.drop()
		return nil, fmt.Errorf("read reply: %w", err)
	}
	t.traffic.received.Add(uint64(len(reply)))
	return reply, nil
}

func (t *wracTransport) size(ctx context.Context) (int, error) {
	reply, err := t.exchange(ctx, protocol.EncodeSizeRequest(), true)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeSize(reply)
}

func (t *wracTransport) fetch(ctx context.Context, offset int) (int, []byte, error) {
	size, err := t.size(ctx)
	if err != nil {
		return 0, nil, err
	}

	n, err := protocol.ChunkSize(size, offset)
	if err != nil || n == 0 {
		return size, nil, err
	}

	chunk, err := t.exchange(ctx, protocol.EncodeWRACChunkRequest(offset), true)
	if err != nil {
		return 0, nil, err
	}
	// The log may have grown between the two requests; only what the size
	// reply covered is consumed so the next fetch starts at a line boundary
	// the server reported.
	if len(chunk) > n {
		chunk = chunk[:n]
	}
	return offset + len(chunk), chunk, nil
}

func (t *wracTransport) roundTrip(ctx context.Context, payload []byte, wantReply bool) ([]byte, error) {
	return t.exchange(ctx, payload, wantReply)
}

func (t *wracTransport) close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
