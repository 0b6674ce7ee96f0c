package modal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ErrorModal shows a problem the user has to acknowledge, such as an
// address that is neither rac:// nor wrac://
type ErrorModal struct {
	title   string
	message string
}

func NewErrorModal(title, message string) *ErrorModal {
	return &ErrorModal{title: title, message: message}
}

func (m *ErrorModal) Kind() Kind { return KindError }

func (m *ErrorModal) HandleKey(msg tea.KeyMsg) (Modal, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		return nil, nil
	}
	return m, nil
}

func (m *ErrorModal) Render(width, height int) string {
	return renderBox(errorColor, 50, m.title,
		[]string{bodyStyle.Render(m.message)},
		"[Enter/Esc] Dismiss",
		width, height)
}
