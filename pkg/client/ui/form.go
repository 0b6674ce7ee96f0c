package ui

import (
	"net"
	"strings"

	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/engine"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldAddress = iota
	fieldUsername
	fieldPassword
	fieldCount
)

var fieldLabels = [fieldCount]string{"Address", "Username", "Password"}

// recentLimit is how many servers from the connection history the form lists
const recentLimit = 5

// connectForm collects the connect parameters
type connectForm struct {
	inputs [fieldCount]textinput.Model
	focus  int
	useTLS bool

	state     client.StateInterface
	recent    []client.HistoryEntry
	recentIdx int // -1 while the address was typed by hand
}

// newConnectForm pre-fills the form from the last successful connection
func newConnectForm(state client.StateInterface) connectForm {
	f := connectForm{state: state, recentIdx: -1}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 256
		f.inputs[i] = in
	}
	f.inputs[fieldAddress].Placeholder = "rac://host:42666 or wrac://host:52666"
	f.inputs[fieldUsername].Placeholder = client.AnonymousUsername
	f.inputs[fieldPassword].Placeholder = "optional"
	f.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	f.inputs[fieldPassword].EchoCharacter = '•'

	if state != nil {
		f.inputs[fieldAddress].SetValue(state.GetLastAddress())
		f.inputs[fieldUsername].SetValue(state.GetLastUsername())
		f.useTLS = state.GetUseTLS()
	}
	f.loadRecent()
	f.inputs[fieldAddress].Focus()
	return f
}

// loadRecent refreshes the recent server list. An unreadable history just
// leaves the list empty.
func (f *connectForm) loadRecent() {
	f.recent = nil
	f.recentIdx = -1
	if f.state == nil {
		return
	}
	entries, err := f.state.ConnectionHistory(recentLimit)
	if err != nil {
		return
	}
	f.recent = entries
}

// pickRecent fills the address with the next (step 1) or previous (step -1)
// recent server
func (f *connectForm) pickRecent(step int) {
	if len(f.recent) == 0 {
		return
	}
	n := len(f.recent)
	if f.recentIdx < 0 && step < 0 {
		f.recentIdx = n - 1
	} else {
		f.recentIdx = ((f.recentIdx+step)%n + n) % n
	}
	entry := f.recent[f.recentIdx]
	f.inputs[fieldAddress].SetValue(entry.Scheme + "://" + entry.ServerAddress)
	f.inputs[fieldAddress].CursorEnd()
	f.setFocus(fieldAddress)
}

// completeAddress prefixes a bare host or host:port with the scheme that
// last worked for it. Anything else is returned unchanged and left for
// ParseAddress to judge.
func (f connectForm) completeAddress(address string) string {
	if f.state == nil || address == "" || strings.Contains(address, "://") {
		return address
	}
	if scheme, err := f.state.GetLastSuccessfulScheme(address); err == nil && scheme != "" {
		return scheme + "://" + address
	}
	// A host without a port matches the most recent history entry for it
	entries, err := f.state.ConnectionHistory(recentLimit)
	if err != nil {
		return address
	}
	for _, entry := range entries {
		host, _, err := net.SplitHostPort(entry.ServerAddress)
		if err == nil && host == address {
			return entry.Scheme + "://" + entry.ServerAddress
		}
	}
	return address
}

// Params returns the form as connect parameters. Credentials are omitted
// when both username and password are empty.
func (f connectForm) Params() engine.ConnectParams {
	params := engine.ConnectParams{
		Address: f.completeAddress(strings.TrimSpace(f.inputs[fieldAddress].Value())),
		UseTLS:  f.useTLS,
	}
	username := strings.TrimSpace(f.inputs[fieldUsername].Value())
	password := f.inputs[fieldPassword].Value()
	if username != "" || password != "" {
		params.Credentials = &client.Credentials{Username: username, Password: password}
	}
	return params
}

func (f *connectForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + fieldCount) % fieldCount
	f.inputs[f.focus].Focus()
}

// Update handles navigation keys and forwards the rest to the focused input
func (f *connectForm) Update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return nil
	case "ctrl+t":
		f.useTLS = !f.useTLS
		return nil
	case "ctrl+n":
		f.pickRecent(1)
		return nil
	case "ctrl+p":
		f.pickRecent(-1)
		return nil
	}

	if f.focus == fieldAddress {
		f.recentIdx = -1
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f connectForm) View(width int) string {
	inputWidth := max(20, min(60, width-24))

	rows := []string{FormTitleStyle.Render("Connect to a RAC server"), ""}
	for i, in := range f.inputs {
		label := FormLabelStyle.Render(fieldLabels[i])
		if i == f.focus {
			label = FormFocusStyle.Render(fieldLabels[i])
		}
		in.Width = inputWidth
		rows = append(rows, label+" "+in.View())
	}

	tls := "[ ] TLS"
	if f.useTLS {
		tls = "[x] TLS"
	}
	rows = append(rows, "", FormLabelStyle.Render("")+" "+tls)

	if len(f.recent) > 0 {
		rows = append(rows, "", FormLabelStyle.Render("Recent")+" "+MutedTextStyle.Render("ctrl+n/ctrl+p to pick"))
		for i, entry := range f.recent {
			line := entry.Scheme + "://" + entry.ServerAddress
			if i == f.recentIdx {
				line = FormFocusStyle.UnsetWidth().Render("> " + line)
			} else {
				line = "  " + line
			}
			rows = append(rows, FormLabelStyle.Render("")+" "+line)
		}
	}
	return FormBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
