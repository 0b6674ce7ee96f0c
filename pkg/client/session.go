package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aeolun/tower/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout applies to a request whose context has no deadline
const DefaultRequestTimeout = 10 * time.Second

// ErrSessionClosed is returned by a session after Close
var ErrSessionClosed = errors.New("session closed")

// Dialer opens RAC and WRAC sessions. The zero value is usable.
type Dialer struct {
	// Timeout bounds each request when the context carries no deadline
	Timeout time.Duration

	// TLSConfig is used when a session is opened with useTLS. Nil means a
	// default config with ServerName set from the address.
	TLSConfig *tls.Config

	// LoadHistory makes the first fetch return the whole server log instead
	// of only messages that arrive after Open
	LoadHistory bool

	Logger zerolog.Logger
}

// Open connects to addr, reads the current log size and registers the user
// when a password is given
func (d *Dialer) Open(ctx context.Context, addr Address, creds *Credentials, useTLS bool) (Session, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	var tlsConfig *tls.Config
	if useTLS {
		if d.TLSConfig != nil {
			tlsConfig = d.TLSConfig.Clone()
		} else {
			tlsConfig = &tls.Config{}
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = addr.Host
		}
	}

	s := &remoteSession{
		id:      uuid.New(),
		addr:    addr,
		creds:   Credentials{Username: AnonymousUsername},
		traffic: &traffic{},
	}
	if creds != nil {
		s.creds = *creds
		if strings.TrimSpace(s.creds.Username) == "" {
			s.creds.Username = AnonymousUsername
		}
	}
	s.logger = d.Logger.With().
		Str("session", s.id.String()).
		Str("addr", addr.String()).
		Bool("tls", useTLS).
		Logger()

	switch addr.Scheme {
	case SchemeRAC:
		s.transport = &racTransport{addr: addr, tlsConfig: tlsConfig, timeout: timeout, traffic: s.traffic}
	case SchemeWRAC:
		s.transport = &wracTransport{addr: addr, tlsConfig: tlsConfig, timeout: timeout, traffic: s.traffic}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, addr.Scheme)
	}

	size, err := s.transport.size(ctx)
	if err != nil {
		s.transport.close()
		return nil, fmt.Errorf("failed to read log size: %w", err)
	}
	if !d.LoadHistory {
		s.offset = size
	}

	if s.creds.Password != "" {
		reply, err := s.transport.roundTrip(ctx, protocol.EncodeRegister(s.creds.Username, s.creds.Password), true)
		if err == nil {
			err = protocol.DecodeRegisterReply(reply)
		}
		switch {
		case errors.Is(err, protocol.ErrUserExists):
			s.logger.Debug().Str("user", s.creds.Username).Msg("user already registered")
		case err != nil:
			s.transport.close()
			return nil, fmt.Errorf("failed to register %q: %w", s.creds.Username, err)
		}
	}

	s.logger.Info().
		Int("offset", s.offset).
		Bool("authenticated", s.creds.Password != "").
		Msg("session opened")
	return s, nil
}

// remoteSession is a Session backed by a RAC or WRAC transport. A mutex
// serializes every request so a fetch and a send never share the wire.
type remoteSession struct {
	id        uuid.UUID
	addr      Address
	creds     Credentials
	logger    zerolog.Logger
	traffic   *traffic
	mu        sync.Mutex
	transport transport
	offset    int // Bytes of the server log already consumed
	closed    bool
}

func (s *remoteSession) FetchMessages(ctx context.Context) ([]protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	size, chunk, err := s.transport.fetch(ctx, s.offset)
	if err != nil {
		return nil, err
	}

	if size < s.offset {
		// The server log was truncated (usually a restart). Resume from
		// its new end rather than waiting for it to grow past our offset.
		s.logger.Warn().Int("size", size).Int("offset", s.offset).Msg("server log shrank, resyncing")
		s.offset = size
		return nil, nil
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	s.offset += len(chunk)
	lines := protocol.SplitLines(chunk)
	s.logger.Debug().Int("bytes", len(chunk)).Int("lines", len(lines)).Int("offset", s.offset).Msg("fetched")
	return protocol.ParseBatch(lines), nil
}

func (s *remoteSession) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	line := protocol.FormatOutgoing(s.creds.Username, text)
	if s.creds.Password == "" {
		_, err := s.transport.roundTrip(ctx, protocol.EncodeSend(line), false)
		return err
	}

	reply, err := s.transport.roundTrip(ctx, protocol.EncodeAuthSend(s.creds.Username, s.creds.Password, line), true)
	if err != nil {
		return err
	}
	return protocol.DecodeAuthReply(reply)
}

func (s *remoteSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info().
		Uint64("bytes_sent", s.traffic.sent.Load()).
		Uint64("bytes_received", s.traffic.received.Load()).
		Msg("session closed")
	return s.transport.close()
}

// BytesSent returns the number of bytes written on the wire
func (s *remoteSession) BytesSent() uint64 { return s.traffic.sent.Load() }

// BytesReceived returns the number of bytes read from the wire
func (s *remoteSession) BytesReceived() uint64 { return s.traffic.received.Load() }

// TrafficCounter is implemented by sessions that count bytes on the wire
type TrafficCounter interface {
	BytesSent() uint64
	BytesReceived() uint64
}

var (
	_ Opener         = (*Dialer)(nil)
	_ Session        = (*remoteSession)(nil)
	_ TrafficCounter = (*remoteSession)(nil)
)
