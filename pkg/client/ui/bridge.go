package ui

import (
	"sync"
	"time"

	"github.com/aeolun/tower/pkg/engine"
	tea "github.com/charmbracelet/bubbletea"
)

// EngineEventMsg carries an engine event into the update loop
type EngineEventMsg struct {
	Event engine.Event
}

// NotificationMsg carries an engine notification into the update loop
type NotificationMsg struct {
	Notification engine.Notification
}

// ScrollToBottomMsg asks the chat viewport to show its last line
type ScrollToBottomMsg struct{}

// TickMsg is sent every second to refresh the header and expire toasts
type TickMsg time.Time

type connectResultMsg struct {
	params engine.ConnectParams
	err    error
}

type sendResultMsg struct {
	err error
}

type disconnectResultMsg struct {
	err error
}

type retryResultMsg struct {
	err error
}

// Bridge forwards engine callbacks, which arrive on timer and command
// goroutines, into the bubbletea program as messages. It implements
// engine.Viewport and engine.Notifier, and OnEvent fits Options.OnEvent.
// Messages sent before Attach or after Detach are dropped.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

func (b *Bridge) Detach() {
	b.Attach(nil)
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (b *Bridge) ScrollToBottom() {
	b.send(ScrollToBottomMsg{})
}

func (b *Bridge) Notify(n engine.Notification) {
	b.send(NotificationMsg{Notification: n})
}

func (b *Bridge) OnEvent(ev engine.Event) {
	b.send(EngineEventMsg{Event: ev})
}

var (
	_ engine.Viewport = (*Bridge)(nil)
	_ engine.Notifier = (*Bridge)(nil)
)
