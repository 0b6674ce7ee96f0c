package ui

import (
	"context"
	"time"

	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/client/ui/modal"
	"github.com/aeolun/tower/pkg/engine"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// ViewState represents the current screen
type ViewState int

const (
	ViewConnect ViewState = iota
	ViewChat
)

// toastTTL is how long a notification stays in the footer
const toastTTL = 8 * time.Second

// Model represents the application state
type Model struct {
	ctrl    *engine.Controller
	state   client.StateInterface
	anchor  *engine.ScrollAnchor
	logger  zerolog.Logger
	version string

	view       ViewState
	connState  engine.ConnState
	modalStack modal.Stack

	form         connectForm
	spinner      spinner.Model
	chatViewport viewport.Model
	chatTextarea textarea.Model

	// Envelopes of the current store already rendered into chatLines
	rendered  int
	chatLines []string

	sending    bool
	lastParams engine.ConnectParams
	toast      *engine.Notification
	toastAt    time.Time
	status     string

	width, height int
}

// NewModel creates the UI model. anchor may be nil, in which case new
// messages never move the view.
func NewModel(ctrl *engine.Controller, state client.StateInterface, anchor *engine.ScrollAnchor, version string, logger zerolog.Logger) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false) // Enter sends
	ta.FocusedStyle.Base = InputFocusStyle
	ta.BlurredStyle.Base = InputBlurredStyle

	return Model{
		ctrl:         ctrl,
		state:        state,
		anchor:       anchor,
		logger:       logger,
		version:      version,
		view:         ViewConnect,
		connState:    ctrl.State(),
		form:         newConnectForm(state),
		spinner:      s,
		chatViewport: viewport.New(80, 20),
		chatTextarea: ta,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) connectCmd(params engine.ConnectParams) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return connectResultMsg{params: params, err: ctrl.Connect(context.Background(), params)}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return sendResultMsg{err: ctrl.Send(context.Background(), text)}
	}
}

func (m Model) disconnectCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return disconnectResultMsg{err: ctrl.Disconnect(true)}
	}
}

func retryCmd(retry func() error) tea.Cmd {
	return func() tea.Msg {
		return retryResultMsg{err: retry()}
	}
}

// geometry reports the chat viewport's scroll state to the anchor
func (m Model) geometry() engine.Geometry {
	return engine.Geometry{
		Offset:         m.chatViewport.YOffset,
		ViewportHeight: m.chatViewport.Height,
		ContentHeight:  m.chatViewport.TotalLineCount(),
	}
}

// rememberConnection stores a successful connect for the next start
func (m *Model) rememberConnection(params engine.ConnectParams) {
	if m.state == nil {
		return
	}
	addr, ok := m.ctrl.Address()
	if !ok {
		return
	}

	username := ""
	if params.Credentials != nil {
		username = params.Credentials.Username
	}
	if err := m.state.SetLastAddress(params.Address); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save last address")
	}
	if err := m.state.SetLastUsername(username); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save last username")
	}
	if err := m.state.SetUseTLS(params.UseTLS); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save TLS preference")
	}
	if err := m.state.SaveSuccessfulConnection(addr.HostPort(), string(addr.Scheme)); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save connection history")
	}
	m.form.loadRecent()
}
