package client

import (
	"context"
	"sync"

	"github.com/aeolun/tower/pkg/protocol"
)

// OpenCall records the arguments of one MockOpener.Open call
type OpenCall struct {
	Addr   Address
	Creds  *Credentials
	UseTLS bool
}

// MockOpener is a test implementation of Opener
type MockOpener struct {
	mu sync.Mutex

	openErr  error
	sessions []*MockSession
	next     int

	// OpenHook, when set, runs before Open returns (e.g. to block)
	OpenHook func(ctx context.Context) error

	Calls []OpenCall
}

// NewMockOpener creates an opener that hands out the given sessions in
// order; once exhausted it creates fresh ones
func NewMockOpener(sessions ...*MockSession) *MockOpener {
	return &MockOpener{sessions: sessions}
}

// Open records the call and returns the next session
func (o *MockOpener) Open(ctx context.Context, addr Address, creds *Credentials, useTLS bool) (Session, error) {
	o.mu.Lock()
	o.Calls = append(o.Calls, OpenCall{Addr: addr, Creds: creds, UseTLS: useTLS})
	hook := o.OpenHook
	err := o.openErr
	o.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.next < len(o.sessions) {
		s := o.sessions[o.next]
		o.next++
		return s, nil
	}
	s := NewMockSession()
	o.sessions = append(o.sessions, s)
	o.next++
	return s, nil
}

// SetOpenError sets an error to return from Open()
func (o *MockOpener) SetOpenError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// OpenCount returns how many times Open was called
func (o *MockOpener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Calls)
}

// Session returns the i-th session handed out
func (o *MockOpener) Session(i int) *MockSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= o.next {
		return nil
	}
	return o.sessions[i]
}

type fetchResult struct {
	batch []protocol.Envelope
	err   error
}

// MockSession is a test implementation of Session
type MockSession struct {
	mu sync.Mutex

	results  []fetchResult
	sendErr  error
	closeErr error
	closed   bool

	// FetchHook and SendHook, when set, run before the call returns
	// (e.g. to block on a channel and simulate a slow server)
	FetchHook func(ctx context.Context)
	SendHook  func(ctx context.Context, text string)

	fetchCalls int
	closeCalls int
	sent       []string
}

// NewMockSession creates a session whose fetches return nothing until
// batches are queued
func NewMockSession() *MockSession {
	return &MockSession{}
}

// QueueBatch queues a successful fetch result
func (m *MockSession) QueueBatch(batch ...protocol.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, fetchResult{batch: batch})
}

// QueueFetchError queues a failed fetch
func (m *MockSession) QueueFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, fetchResult{err: err})
}

// FetchMessages pops the next queued result
func (m *MockSession) FetchMessages(ctx context.Context) ([]protocol.Envelope, error) {
	m.mu.Lock()
	m.fetchCalls++
	hook := m.FetchHook
	m.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return nil, nil
	}
	next := m.results[0]
	m.results = m.results[1:]
	return next.batch, next.err
}

// Send records the text
func (m *MockSession) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, text)
	hook := m.SendHook
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, text)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendErr
}

// Close marks the session closed and returns the injected error, if any
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalls++
	return m.closeErr
}

// Test helpers

// SetSendError sets an error to return from Send()
func (m *MockSession) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetCloseError sets an error to return from Close()
func (m *MockSession) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// SetFetchHook sets FetchHook under the lock
func (m *MockSession) SetFetchHook(hook func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchHook = hook
}

// SetSendHook sets SendHook under the lock
func (m *MockSession) SetSendHook(hook func(ctx context.Context, text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendHook = hook
}

func (m *MockSession) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

func (m *MockSession) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

func (m *MockSession) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Sent returns every text passed to Send
func (m *MockSession) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

var (
	_ Opener  = (*MockOpener)(nil)
	_ Session = (*MockSession)(nil)
)
