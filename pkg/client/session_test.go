package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aeolun/tower/pkg/protocol"
	"github.com/aeolun/tower/pkg/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDevServer(t *testing.T, seed ...string) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.RACAddr = "127.0.0.1:0"
	cfg.WRACAddr = "127.0.0.1:0"

	srv := server.NewServer(cfg, server.NewMessageLog(seed...), nil, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func addressOf(t *testing.T, scheme Scheme, hostport string) Address {
	t.Helper()
	addr, err := ParseAddress(string(scheme) + "://" + hostport)
	require.NoError(t, err)
	return addr
}

func schemes(srv *server.Server) map[Scheme]string {
	return map[Scheme]string{
		SchemeRAC:  srv.RACAddr(),
		SchemeWRAC: srv.WRACAddr(),
	}
}

func rawLines(envs []protocol.Envelope) []string {
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Raw()
	}
	return out
}

func TestSessionSendAndFetch(t *testing.T) {
	for scheme, hostport := range schemes(startDevServer(t, "<bob> before")) {
		t.Run(string(scheme), func(t *testing.T) {
			ctx := t.Context()
			dialer := &Dialer{Timeout: 2 * time.Second, Logger: zerolog.Nop()}

			sess, err := dialer.Open(ctx, addressOf(t, scheme, hostport), &Credentials{Username: "alice"}, false)
			require.NoError(t, err)
			defer sess.Close()

			batch, err := sess.FetchMessages(ctx)
			require.NoError(t, err)
			assert.Empty(t, batch, "history is skipped by default")

			require.NoError(t, sess.Send(ctx, "hello over "+string(scheme)))

			require.Eventually(t, func() bool {
				batch, err = sess.FetchMessages(ctx)
				return err == nil && len(batch) > 0
			}, 2*time.Second, 10*time.Millisecond)

			require.Len(t, batch, 1)
			parsed, ok := batch[0].(protocol.Parsed)
			require.True(t, ok)
			assert.Equal(t, protocol.ClientTower, parsed.Message.Client)
			assert.Equal(t, "alice", parsed.Message.Username)
			assert.Equal(t, "hello over "+string(scheme), parsed.Message.Content)

			batch, err = sess.FetchMessages(ctx)
			require.NoError(t, err)
			assert.Empty(t, batch, "nothing is delivered twice")

			counter, ok := sess.(TrafficCounter)
			require.True(t, ok)
			assert.Positive(t, counter.BytesSent())
			assert.Positive(t, counter.BytesReceived())
		})
	}
}

func TestSessionLoadHistory(t *testing.T) {
	srv := startDevServer(t, "<bob> one", "garbage line", "▲<carol> three")
	for scheme, hostport := range schemes(srv) {
		t.Run(string(scheme), func(t *testing.T) {
			dialer := &Dialer{LoadHistory: true, Logger: zerolog.Nop()}
			sess, err := dialer.Open(t.Context(), addressOf(t, scheme, hostport), nil, false)
			require.NoError(t, err)
			defer sess.Close()

			batch, err := sess.FetchMessages(t.Context())
			require.NoError(t, err)
			assert.Equal(t, []string{"<bob> one", "garbage line", "▲<carol> three"}, rawLines(batch))
			assert.IsType(t, protocol.Malformed{}, batch[1])
		})
	}
}

func TestSessionAnonymousUsername(t *testing.T) {
	srv := startDevServer(t)
	dialer := &Dialer{Logger: zerolog.Nop()}
	sess, err := dialer.Open(t.Context(), addressOf(t, SchemeRAC, srv.RACAddr()), &Credentials{Username: "  "}, false)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Send(t.Context(), "hi"))
	require.Eventually(t, func() bool { return len(srv.Log().Lines()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "▲<anonymous> hi", srv.Log().Lines()[0])
}

func TestSessionAuthenticated(t *testing.T) {
	srv := startDevServer(t)
	for scheme, hostport := range schemes(srv) {
		t.Run(string(scheme), func(t *testing.T) {
			dialer := &Dialer{Logger: zerolog.Nop()}
			creds := &Credentials{Username: "dave", Password: "secret"}

			// The first open registers, the second finds the user already there
			for i := 0; i < 2; i++ {
				sess, err := dialer.Open(t.Context(), addressOf(t, scheme, hostport), creds, false)
				require.NoError(t, err)
				require.NoError(t, sess.Send(t.Context(), "signed "+string(scheme)))
				require.NoError(t, sess.Close())
			}

			require.NoError(t, srv.Log().Authenticate("dave", "secret"))
			assert.Contains(t, srv.Log().Lines(), "▲<dave> signed "+string(scheme))
		})
	}
}

func TestSessionAuthenticatedBadPassword(t *testing.T) {
	srv := startDevServer(t)
	require.NoError(t, srv.Log().Register("erin", "right"))

	dialer := &Dialer{Logger: zerolog.Nop()}
	sess, err := dialer.Open(t.Context(), addressOf(t, SchemeWRAC, srv.WRACAddr()), &Credentials{Username: "erin", Password: "wrong"}, false)
	require.NoError(t, err, "register reports the user exists, which is accepted")
	defer sess.Close()

	err = sess.Send(t.Context(), "let me in")
	assert.ErrorIs(t, err, protocol.ErrBadPassword)
	assert.Empty(t, srv.Log().Lines())
}

func TestSessionClosed(t *testing.T) {
	srv := startDevServer(t)
	dialer := &Dialer{Logger: zerolog.Nop()}
	sess, err := dialer.Open(t.Context(), addressOf(t, SchemeWRAC, srv.WRACAddr()), nil, false)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, err = sess.FetchMessages(t.Context())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.Send(t.Context(), "x"), ErrSessionClosed)
}

func TestOpenFailsWhenServerIsDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hostport := listener.Addr().String()
	listener.Close()

	dialer := &Dialer{Timeout: time.Second, Logger: zerolog.Nop()}
	for _, scheme := range []Scheme{SchemeRAC, SchemeWRAC} {
		_, err := dialer.Open(t.Context(), addressOf(t, scheme, hostport), nil, false)
		assert.Error(t, err, string(scheme))
	}
}

func TestSessionOverSecureWebSocket(t *testing.T) {
	srv := server.NewServer(server.DefaultConfig(), server.NewMessageLog("<bob> secure"), nil, zerolog.Nop())
	ts := httptest.NewTLSServer(srv.WRACHandler())
	defer ts.Close()

	pool := x509.NewCertPool()
	pool.AddCert(ts.Certificate())
	dialer := &Dialer{
		LoadHistory: true,
		TLSConfig:   &tls.Config{RootCAs: pool},
		Logger:      zerolog.Nop(),
	}

	hostport := strings.TrimPrefix(ts.URL, "https://")
	sess, err := dialer.Open(t.Context(), addressOf(t, SchemeWRAC, hostport), nil, true)
	require.NoError(t, err)
	defer sess.Close()

	batch, err := sess.FetchMessages(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"<bob> secure"}, rawLines(batch))

	// Without the test CA the handshake fails
	plain := &Dialer{Logger: zerolog.Nop()}
	_, err = plain.Open(t.Context(), addressOf(t, SchemeWRAC, hostport), nil, true)
	assert.Error(t, err)
}

// fakeTransport serves a scripted log
type fakeTransport struct {
	log []byte
}

func (f *fakeTransport) size(ctx context.Context) (int, error) { return len(f.log), nil }

func (f *fakeTransport) fetch(ctx context.Context, offset int) (int, []byte, error) {
	if offset >= len(f.log) {
		return len(f.log), nil, nil
	}
	return len(f.log), append([]byte(nil), f.log[offset:]...), nil
}

func (f *fakeTransport) roundTrip(ctx context.Context, payload []byte, wantReply bool) ([]byte, error) {
	return nil, nil
}

func (f *fakeTransport) close() error { return nil }

func TestFetchResyncsWhenLogShrinks(t *testing.T) {
	ft := &fakeTransport{log: []byte("<a> 1\n<a> 2\n")}
	sess := &remoteSession{transport: ft, traffic: &traffic{}, logger: zerolog.Nop(), offset: len(ft.log)}

	// Server restarted with a shorter log
	ft.log = []byte("<b> x\n")
	batch, err := sess.FetchMessages(t.Context())
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, len(ft.log), sess.offset)

	ft.log = append(ft.log, "<b> y\n"...)
	batch, err = sess.FetchMessages(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"<b> y"}, rawLines(batch))
}

func TestFetchDeliversEachByteOnce(t *testing.T) {
	ft := &fakeTransport{}
	sess := &remoteSession{transport: ft, traffic: &traffic{}, logger: zerolog.Nop()}

	var got []string
	for i := 0; i < 5; i++ {
		ft.log = append(ft.log, "<u> line\n"...)
		batch, err := sess.FetchMessages(t.Context())
		require.NoError(t, err)
		got = append(got, rawLines(batch)...)
	}
	assert.Len(t, got, 5)
	assert.Equal(t, len(ft.log), sess.offset)
}
