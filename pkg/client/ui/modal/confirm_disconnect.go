package modal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ConfirmDisconnectMsg is sent when the user confirms the disconnect
type ConfirmDisconnectMsg struct{}

// ConfirmDisconnectModal asks before leaving a server
type ConfirmDisconnectModal struct {
	serverAddr string
}

func NewConfirmDisconnectModal(serverAddr string) *ConfirmDisconnectModal {
	return &ConfirmDisconnectModal{serverAddr: serverAddr}
}

func (m *ConfirmDisconnectModal) Kind() Kind { return KindConfirmDisconnect }

func (m *ConfirmDisconnectModal) HandleKey(msg tea.KeyMsg) (Modal, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		return nil, emit(ConfirmDisconnectMsg{})
	case "n", "N", "esc":
		return nil, nil
	}
	return m, nil
}

func (m *ConfirmDisconnectModal) Render(width, height int) string {
	return renderBox(warningColor, 50, "Disconnect?",
		[]string{bodyStyle.Render("Leave " + m.serverAddr + "?")},
		"[Y/Enter] Disconnect  [N/Esc] Stay",
		width, height)
}
