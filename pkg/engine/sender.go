package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// SendCoordinator runs one send at a time and brackets it with the sync
// loop so a send and a tick never use the session together
type SendCoordinator struct {
	ctrl     *Controller
	notifier Notifier
	metrics  *Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	busy  bool
	draft string
}

func newSendCoordinator(ctrl *Controller, notifier Notifier, metrics *Metrics, logger zerolog.Logger) *SendCoordinator {
	return &SendCoordinator{
		ctrl:     ctrl,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Send trims text and sends it. Whitespace-only input is a no-op that
// returns nil. A second call while one is in flight gets ErrSendInFlight.
//
// The sequence is: follow the bottom, suspend the loop, send, then on
// success clear the draft and fetch once so the sender sees their message.
// On failure the draft keeps the input and a *SendError is returned. The
// loop is resumed in every case while the connection is still up.
func (s *SendCoordinator) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	// busy is set before the state check below; Disconnect checks busy
	// before it leaves Connected, so one of the two always sees the other
	s.busy = true
	s.draft = text
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	conn, ok := s.ctrl.current()
	if !ok {
		return ErrNotConnected
	}

	if anchor := s.ctrl.opts.Anchor; anchor != nil {
		anchor.ForceFollow()
	}

	conn.loop.Suspend()
	defer func() {
		if s.ctrl.isCurrent(conn.generation) {
			conn.loop.Resume()
		}
	}()

	err := conn.session.Send(ctx, trimmed)
	s.metrics.recordSend(err)
	if err != nil {
		sendErr := &SendError{Text: text, Err: err}
		s.logger.Warn().Err(err).Int("len", len(trimmed)).Msg("send failed")
		s.notifier.Notify(Notification{
			Title:       "Failed to send message",
			Description: err.Error(),
			Err:         sendErr,
		})
		return sendErr
	}

	s.mu.Lock()
	s.draft = ""
	s.mu.Unlock()

	s.logger.Debug().Int("len", len(trimmed)).Msg("sent")
	conn.loop.FetchNow()
	return nil
}

// Busy reports whether a send is in flight
func (s *SendCoordinator) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Draft returns the pending input: the text of an in-flight or failed
// send, or "" after a successful one
func (s *SendCoordinator) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}
