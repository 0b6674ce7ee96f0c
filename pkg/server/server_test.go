package server

import (
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aeolun/tower/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, msgLog *MessageLog) (*Server, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.RACAddr = "127.0.0.1:0"
	cfg.WRACAddr = "127.0.0.1:0"
	cfg.MaxMessageLength = 64

	srv := NewServer(cfg, msgLog, metrics, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv, metrics
}

func dialRAC(t *testing.T, srv *Server) *net.TCPConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.RACAddr(), time.Second)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn.(*net.TCPConn)
}

// racRequest writes payload, half-closes and reads the reply until EOF
func racRequest(t *testing.T, srv *Server, payload []byte) []byte {
	t.Helper()
	conn := dialRAC(t, srv)
	_, err := conn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, conn.CloseWrite())
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	return reply
}

func racFetch(t *testing.T, srv *Server, offset int) (int, []byte) {
	t.Helper()
	conn := dialRAC(t, srv)
	_, err := conn.Write(protocol.EncodeSizeRequest())
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	size, err := protocol.DecodeSize(buf[:n])
	require.NoError(t, err)

	_, err = conn.Write(protocol.EncodeChunkRequest(offset))
	require.NoError(t, err)
	want, err := protocol.ChunkSize(size, offset)
	require.NoError(t, err)
	chunk := make([]byte, want)
	_, err = io.ReadFull(conn, chunk)
	require.NoError(t, err)
	return size, chunk
}

func TestRACSendAndFetch(t *testing.T) {
	srv, metrics := startServer(t, NewMessageLog("<bob> earlier"))

	assert.Empty(t, racRequest(t, srv, protocol.EncodeSend("▲<alice> hi")))

	size, chunk := racFetch(t, srv, 0)
	assert.Equal(t, srv.Log().Size(), size)
	assert.Equal(t, []string{"<bob> earlier", "▲<alice> hi"}, protocol.SplitLines(chunk))

	_, tail := racFetch(t, srv, len("<bob> earlier\n"))
	assert.Equal(t, "▲<alice> hi\n", string(tail))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("send")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues("chunk")))
}

func TestRACSizeOnly(t *testing.T) {
	srv, _ := startServer(t, NewMessageLog("x"))

	reply := racRequest(t, srv, protocol.EncodeSizeRequest())
	size, err := protocol.DecodeSize(reply)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestRACRegisterAndAuthSend(t *testing.T) {
	srv, _ := startServer(t, nil)

	assert.Empty(t, racRequest(t, srv, protocol.EncodeRegister("alice", "pw")))
	assert.ErrorIs(t, protocol.DecodeRegisterReply(racRequest(t, srv, protocol.EncodeRegister("alice", "x"))), protocol.ErrUserExists)

	assert.NoError(t, protocol.DecodeAuthReply(racRequest(t, srv, protocol.EncodeAuthSend("alice", "pw", "▲<alice> signed"))))
	assert.ErrorIs(t, protocol.DecodeAuthReply(racRequest(t, srv, protocol.EncodeAuthSend("alice", "bad", "nope"))), protocol.ErrBadPassword)
	assert.ErrorIs(t, protocol.DecodeAuthReply(racRequest(t, srv, protocol.EncodeAuthSend("mallory", "pw", "nope"))), protocol.ErrUnknownUser)

	assert.Equal(t, []string{"▲<alice> signed"}, srv.Log().Lines())
}

func TestRACRejectsLongMessages(t *testing.T) {
	srv, _ := startServer(t, nil)

	racRequest(t, srv, protocol.EncodeSend(strings.Repeat("x", 65)))
	assert.Equal(t, 0, srv.Log().Size())
}

func dialWRAC(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wracRoundTrip(t *testing.T, conn *websocket.Conn, payload []byte) []byte {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	return reply
}

func TestWRACSession(t *testing.T) {
	srv, _ := startServer(t, NewMessageLog("<bob> first"))
	conn := dialWRAC(t, "ws://"+srv.WRACAddr()+"/")

	size, err := protocol.DecodeSize(wracRoundTrip(t, conn, protocol.EncodeSizeRequest()))
	require.NoError(t, err)
	assert.Equal(t, len("<bob> first\n"), size)

	// A plain send gets no reply; the next reply belongs to the size request
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeSend("<carol> second")))
	size, err = protocol.DecodeSize(wracRoundTrip(t, conn, protocol.EncodeSizeRequest()))
	require.NoError(t, err)
	assert.Equal(t, srv.Log().Size(), size)

	chunk := wracRoundTrip(t, conn, protocol.EncodeWRACChunkRequest(len("<bob> first\n")))
	assert.Equal(t, "<carol> second\n", string(chunk))

	assert.Empty(t, wracRoundTrip(t, conn, protocol.EncodeRegister("carol", "pw")))
	assert.ErrorIs(t, protocol.DecodeAuthReply(wracRoundTrip(t, conn, protocol.EncodeAuthSend("carol", "nope", "x"))), protocol.ErrBadPassword)
}

func TestWRACHandlerOverHTTPTest(t *testing.T) {
	srv := NewServer(DefaultConfig(), NewMessageLog("<a> hello"), nil, zerolog.Nop())
	ts := httptest.NewServer(srv.WRACHandler())
	defer ts.Close()

	conn := dialWRAC(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/")
	chunk := wracRoundTrip(t, conn, protocol.EncodeWRACChunkRequest(0))
	assert.Equal(t, "<a> hello\n", string(chunk))
}

func TestStopClosesConnections(t *testing.T) {
	metrics := NewMetrics(nil)
	cfg := DefaultConfig()
	cfg.RACAddr = "127.0.0.1:0"
	cfg.WRACAddr = "127.0.0.1:0"
	srv := NewServer(cfg, nil, metrics, zerolog.Nop())
	require.NoError(t, srv.Start())

	conn := dialWRAC(t, "ws://"+srv.WRACAddr()+"/")
	wracRoundTrip(t, conn, protocol.EncodeSizeRequest())
	assert.Eventually(t, func() bool { return srv.sessions.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.sessions.Count())

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.NoError(t, srv.Stop(), "Stop is idempotent")
}
