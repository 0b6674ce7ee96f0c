package ui

import (
	"errors"
	"strings"
	"time"

	"github.com/aeolun/tower/pkg/client/ui/modal"
	"github.com/aeolun/tower/pkg/engine"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles incoming messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.toast != nil && time.Since(m.toastAt) > toastTTL {
			m.toast = nil
		}
		return m, tickCmd()

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		if m.view == ViewChat {
			var cmd tea.Cmd
			m.chatViewport, cmd = m.chatViewport.Update(msg)
			m.reportScroll()
			return m, cmd
		}
		return m, nil

	case EngineEventMsg:
		return m.handleEngineEvent(msg.Event)

	case NotificationMsg:
		return m.handleNotification(msg.Notification)

	case ScrollToBottomMsg:
		m.chatViewport.GotoBottom()
		return m, nil

	case connectResultMsg:
		if msg.err == nil {
			m.rememberConnection(msg.params)
			return m, nil
		}
		if errors.Is(msg.err, engine.ErrInvalidAddress) {
			m.modalStack.Push(modal.NewErrorModal(
				"Invalid address",
				"Use rac://host[:port] or wrac://host[:port]",
			))
		}
		// Other failures arrive as a notification
		return m, nil

	case sendResultMsg:
		m.sending = false
		cmd := m.chatTextarea.Focus()
		if msg.err == nil {
			m.chatTextarea.Reset()
		}
		// On failure the input keeps the draft; the notification explains why
		return m, cmd

	case disconnectResultMsg:
		if msg.err != nil {
			m.status = ""
			m.showToast(engine.Notification{Title: "Cannot disconnect", Description: msg.err.Error(), Err: msg.err})
		}
		return m, nil

	case retryResultMsg:
		return m, nil

	case modal.ConfirmDisconnectMsg:
		m.status = "Disconnecting..."
		return m, m.disconnectCmd()

	case modal.ConnectionFailedRetryMsg:
		return m, m.connectCmd(m.lastParams)

	case modal.ConnectionFailedEditMsg:
		m.view = ViewConnect
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if handled, cmd := m.modalStack.HandleKey(msg); handled {
		return m, cmd
	}

	if msg.String() == "ctrl+r" {
		return m.retryLast()
	}

	switch m.view {
	case ViewConnect:
		return m.handleConnectKeys(msg)
	case ViewChat:
		return m.handleChatKeys(msg)
	}
	return m, nil
}

func (m Model) handleConnectKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.connState == engine.Connecting {
		return m, nil
	}
	if msg.String() == "enter" {
		params := m.form.Params()
		m.lastParams = params
		return m, m.connectCmd(params)
	}
	return m, m.form.Update(msg)
}

func (m Model) handleChatKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+d":
		if m.ctrl.Sender().Busy() {
			return m, nil
		}
		addr, _ := m.ctrl.Address()
		m.modalStack.Push(modal.NewConfirmDisconnectModal(addr.String()))
		return m, nil

	case "enter":
		if m.sending {
			return m, nil
		}
		text := m.chatTextarea.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.sending = true
		m.chatTextarea.Blur()
		return m, m.sendCmd(text)

	case "up", "down":
		// With a draft in the input the arrows move between its lines
		if m.chatTextarea.Focused() && m.chatTextarea.Value() != "" {
			break
		}
		var cmd tea.Cmd
		m.chatViewport, cmd = m.chatViewport.Update(msg)
		m.reportScroll()
		return m, cmd

	case "pgup", "pgdown", "ctrl+u", "ctrl+f", "home", "end":
		var cmd tea.Cmd
		switch msg.String() {
		case "home":
			m.chatViewport.GotoTop()
		case "end":
			m.chatViewport.GotoBottom()
		default:
			m.chatViewport, cmd = m.chatViewport.Update(msg)
		}
		m.reportScroll()
		return m, cmd
	}

	if m.sending {
		return m, nil
	}
	var cmd tea.Cmd
	m.chatTextarea, cmd = m.chatTextarea.Update(msg)
	return m, cmd
}

// retryLast runs the Retry action of the current toast, if any
func (m Model) retryLast() (tea.Model, tea.Cmd) {
	if m.toast == nil || m.toast.Retry == nil {
		return m, nil
	}
	retry := m.toast.Retry
	m.toast = nil
	m.modalStack.Dismiss(modal.KindConnectionFailed)
	return m, retryCmd(retry)
}

func (m Model) handleEngineEvent(ev engine.Event) (tea.Model, tea.Cmd) {
	switch ev := ev.(type) {
	case engine.StateChanged:
		m.connState = ev.To
		switch ev.To {
		case engine.Connected:
			m.view = ViewChat
			m.status = ""
			m.rendered = 0
			m.chatLines = nil
			m.chatViewport.SetContent("")
			m.modalStack.Dismiss(modal.KindConnectionFailed)
			return m, m.chatTextarea.Focus()
		case engine.Disconnected:
			m.status = ""
			m.sending = false
			m.view = ViewConnect
			m.modalStack.Dismiss(modal.KindConfirmDisconnect)
		}
		return m, nil

	case engine.MessagesAppended:
		m.appendMessages()
		return m, nil
	}
	return m, nil
}

func (m Model) handleNotification(n engine.Notification) (tea.Model, tea.Cmd) {
	m.showToast(n)

	var connErr *engine.ConnectionError
	if errors.As(n.Err, &connErr) {
		m.lastParams = connErr.Params
		reason := "unknown error"
		if connErr.Err != nil {
			reason = connErr.Err.Error()
		}
		m.modalStack.Push(modal.NewConnectionFailedModal(connErr.Params.Address, reason))
	}
	return m, nil
}

func (m *Model) showToast(n engine.Notification) {
	m.toast = &n
	m.toastAt = time.Now()
}

// appendMessages renders store entries that arrived since the last call
func (m *Model) appendMessages() {
	fresh := m.ctrl.Store().Since(m.rendered)
	if len(fresh) == 0 {
		return
	}
	for _, env := range fresh {
		m.chatLines = append(m.chatLines, m.formatEnvelope(env))
	}
	m.rendered += len(fresh)
	m.chatViewport.SetContent(strings.Join(m.chatLines, "\n"))
}

// rerender rebuilds every chat line, e.g. after the width changed
func (m *Model) rerender() {
	all := m.ctrl.Store().Since(0)
	m.chatLines = m.chatLines[:0]
	for _, env := range all {
		m.chatLines = append(m.chatLines, m.formatEnvelope(env))
	}
	m.rendered = len(all)
	m.chatViewport.SetContent(strings.Join(m.chatLines, "\n"))
}

func (m *Model) reportScroll() {
	if m.anchor != nil {
		m.anchor.OnScroll(m.geometry())
	}
}

func (m *Model) resize() {
	width, height := chatViewportSize(m.width, m.height)
	m.chatViewport.Width = width
	m.chatViewport.Height = height
	m.chatTextarea.SetWidth(max(m.width-4, 10))
	m.rerender()
	if m.anchor == nil || m.anchor.AtBottom() {
		m.chatViewport.GotoBottom()
	}
}

// chatViewportSize is the message area inside the pane border, above the
// header, footer and the input box
func chatViewportSize(width, height int) (int, int) {
	return max(width-4, 10), max(height-2-inputHeight-2, 3)
}
