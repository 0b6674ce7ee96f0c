package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aeolun/tower/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config holds dev server configuration
type Config struct {
	RACAddr          string        // TCP listen address, "" disables RAC
	WRACAddr         string        // HTTP listen address for the WebSocket, "" disables WRAC
	TLSConfig        *tls.Config   // Optional; enables TLS on both listeners
	MaxMessageLength int           // Bytes, 0 = unlimited
	RequestTimeout   time.Duration // Per RAC connection
	IdleTimeout      time.Duration // WRAC connections idle longer than this are closed
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		RACAddr:          ":42666",
		WRACAddr:         ":52666",
		MaxMessageLength: 4096,
		RequestTimeout:   10 * time.Second,
		IdleTimeout:      5 * time.Minute,
	}
}

// Server is an in-memory RAC/WRAC server for local development and tests
type Server struct {
	config   Config
	log      *MessageLog
	sessions *SessionManager
	metrics  *Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu           sync.Mutex
	racListener  net.Listener
	wracListener net.Listener
	httpServer   *http.Server

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a new server instance. A nil msgLog starts empty.
func NewServer(config Config, msgLog *MessageLog, metrics *Metrics, logger zerolog.Logger) *Server {
	if msgLog == nil {
		msgLog = NewMessageLog()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Server{
		config:   config,
		log:      msgLog,
		sessions: NewSessionManager(metrics),
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		shutdown: make(chan struct{}),
	}
}

// Log returns the server's message log
func (s *Server) Log() *MessageLog {
	return s.log
}

// Start opens the configured listeners and serves in the background
func (s *Server) Start() error {
	if s.config.RACAddr != "" {
		listener, err := net.Listen("tcp", s.config.RACAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.RACAddr, err)
		}
		if s.config.TLSConfig != nil {
			listener = tls.NewListener(listener, s.config.TLSConfig)
		}
		s.mu.Lock()
		s.racListener = listener
		s.mu.Unlock()

		s.logger.Info().Str("addr", listener.Addr().String()).Bool("tls", s.config.TLSConfig != nil).Msg("RAC listening")
		s.wg.Add(1)
		go s.acceptLoop(listener)
	}

	if s.config.WRACAddr != "" {
		listener, err := net.Listen("tcp", s.config.WRACAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("failed to listen on %s: %w", s.config.WRACAddr, err)
		}
		if s.config.TLSConfig != nil {
			listener = tls.NewListener(listener, s.config.TLSConfig)
		}
		httpServer := &http.Server{
			Handler:           s.WRACHandler(),
			ReadHeaderTimeout: s.config.RequestTimeout,
		}
		s.mu.Lock()
		s.wracListener = listener
		s.httpServer = httpServer
		s.mu.Unlock()

		s.logger.Info().Str("addr", listener.Addr().String()).Bool("tls", s.config.TLSConfig != nil).Msg("WRAC listening")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("WRAC server error")
			}
		}()
	}

	return nil
}

// RACAddr returns the RAC listener address, or "" when not listening
func (s *Server) RACAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.racListener == nil {
		return ""
	}
	return s.racListener.Addr().String()
}

// WRACAddr returns the WRAC listener address, or "" when not listening
func (s *Server) WRACAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wracListener == nil {
		return ""
	}
	return s.wracListener.Addr().String()
}

// Stop closes the listeners and every open connection
func (s *Server) Stop() error {
	select {
	case <-s.shutdown:
		return nil
	default:
	}
	close(s.shutdown)

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		shutdownErr = httpServer.Shutdown(ctx)
		cancel()
	}
	s.closeListeners()
	s.sessions.CloseAll()
	s.wg.Wait()

	s.logger.Info().Int("log_bytes", s.log.Size()).Msg("server stopped")
	return shutdownErr
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.racListener != nil {
		s.racListener.Close()
	}
	if s.wracListener != nil {
		s.wracListener.Close()
	}
}

// acceptLoop accepts incoming RAC connections
func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) requestLimit() int64 {
	if s.config.MaxMessageLength <= 0 {
		return protocol.MaxChunkSize
	}
	// Room for the command byte and credentials
	return int64(s.config.MaxMessageLength) + 1024
}

// handleConnection serves one RAC request. A size request may be followed
// by a chunk request on the same connection; every other request ends when
// the client half-closes.
func (s *Server) handleConnection(conn net.Conn) {
	info := s.sessions.Add("rac", conn.RemoteAddr().String(), conn, s.logger)
	defer s.sessions.Remove(info.ID)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(s.config.RequestTimeout))

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			info.logger.Debug().Err(err).Msg("read error")
		}
		return
	}

	if buf[0] == protocol.CmdSize && n == 1 {
		s.serveFetch(conn, info, buf)
		return
	}

	rest, err := io.ReadAll(io.LimitReader(conn, s.requestLimit()))
	if err != nil {
		info.logger.Debug().Err(err).Msg("read request")
		return
	}
	req, err := protocol.DecodeRequest(append(buf[:n:n], rest...))
	if err != nil {
		info.logger.Debug().Err(err).Msg("bad request")
		return
	}

	if reply := s.handleRequest(info, req); len(reply) > 0 {
		if _, err := conn.Write(reply); err != nil {
			info.logger.Debug().Err(err).Msg("write reply")
		}
	}
}

func (s *Server) serveFetch(conn net.Conn, info *connInfo, buf []byte) {
	size := s.log.Size()
	s.metrics.RecordRequest(protocol.RequestSize)
	if _, err := conn.Write(protocol.EncodeSize(size)); err != nil {
		info.logger.Debug().Err(err).Msg("write size")
		return
	}

	n, _ := conn.Read(buf)
	if n == 0 {
		return // Size only
	}
	offset, err := protocol.DecodeFollowUp(buf[:n])
	if err != nil {
		info.logger.Debug().Err(err).Msg("bad follow-up")
		return
	}

	s.metrics.RecordRequest(protocol.RequestChunk)
	if _, err := conn.Write(s.log.Range(offset, size)); err != nil {
		info.logger.Debug().Err(err).Msg("write chunk")
	}
}

// WRACHandler returns the WebSocket endpoint. Every binary message is one
// request; size, chunk, auth send and register get exactly one reply.
func (s *Server) WRACHandler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	info := s.sessions.Add("wrac", r.RemoteAddr, conn, s.logger)
	defer s.sessions.Remove(info.ID)
	defer conn.Close()

	conn.SetReadLimit(s.requestLimit())
	info.logger.Debug().Msg("connected")

	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				info.logger.Debug().Err(err).Msg("read error")
			}
			return
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			info.logger.Debug().Err(err).Msg("bad request")
			continue
		}

		reply := s.handleRequest(info, req)
		if req.Kind == protocol.RequestSend {
			continue
		}
		if reply == nil {
			reply = []byte{}
		}
		conn.SetWriteDeadline(time.Now().Add(s.config.RequestTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
			info.logger.Debug().Err(err).Msg("write reply")
			return
		}
	}
}
