package modal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ConnectionFailedRetryMsg is sent when the user wants to retry the connection
type ConnectionFailedRetryMsg struct{}

// ConnectionFailedEditMsg is sent when the user wants to change the
// connection details
type ConnectionFailedEditMsg struct{}

var connectionFailedOptions = [][2]string{
	{"Retry connection", "R"},
	{"Edit connection", "E"},
	{"Quit", "Q"},
}

// ConnectionFailedModal displays a connection failure with recovery options
type ConnectionFailedModal struct {
	serverAddr   string
	errorMessage string
	cursor       int
}

func NewConnectionFailedModal(serverAddr string, errorMessage string) *ConnectionFailedModal {
	return &ConnectionFailedModal{
		serverAddr:   serverAddr,
		errorMessage: errorMessage,
	}
}

func (m *ConnectionFailedModal) Kind() Kind { return KindConnectionFailed }

func (m *ConnectionFailedModal) HandleKey(msg tea.KeyMsg) (Modal, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(connectionFailedOptions)-1 {
			m.cursor++
		}
		return m, nil

	case "r":
		return nil, emit(ConnectionFailedRetryMsg{})

	case "e", "esc":
		return nil, emit(ConnectionFailedEditMsg{})

	case "q":
		return nil, tea.Quit

	case "enter":
		switch m.cursor {
		case 0:
			return nil, emit(ConnectionFailedRetryMsg{})
		case 1:
			return nil, emit(ConnectionFailedEditMsg{})
		default:
			return nil, tea.Quit
		}
	}
	return m, nil
}

func (m *ConnectionFailedModal) Render(width, height int) string {
	body := []string{
		mutedStyle.Italic(true).Render("Server: " + m.serverAddr),
		bodyStyle.Foreground(errorColor).Render("Error: " + m.errorMessage),
		"",
		"What would you like to do?",
		"",
	}
	body = append(body, renderOptions(errorColor, connectionFailedOptions, m.cursor)...)

	return renderBox(errorColor, 60, "⚠ Connection Failed", body,
		"[↑/↓] Navigate  [Enter] Select  [Esc] Edit", width, height)
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
