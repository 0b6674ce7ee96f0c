package ui

import (
	"fmt"
	"strings"

	"github.com/76creates/stickers/flexbox"
	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/engine"
	"github.com/aeolun/tower/pkg/protocol"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// inputHeight is the textarea plus its border
const inputHeight = 5

// View renders the current view
func (m Model) View() string {
	// Don't render until we have dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if top := m.modalStack.Top(); top != nil {
		return top.Render(m.width, m.height)
	}

	var content, shortcuts string
	switch m.view {
	case ViewChat:
		content = m.renderChat()
		shortcuts = "[Enter] Send  [PgUp/PgDn] Scroll  [Ctrl+D] Disconnect  [Ctrl+C] Quit"
	default:
		content = m.renderConnect()
		shortcuts = "[Enter] Connect  [Tab] Next field  [Ctrl+T] TLS  [Ctrl+C] Quit"
	}

	layout := flexbox.New(m.width, m.height)

	headerRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, 1).SetContent(m.renderHeader()),
	)

	contentHeight := m.height - 2 // Subtract header(1) + footer(1)
	contentRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, contentHeight).SetContent(content),
	)

	footerRow := layout.NewRow().AddCells(
		flexbox.NewCell(1, 1).SetContent(m.renderFooter(shortcuts)),
	)

	layout.AddRows([]*flexbox.Row{headerRow, contentRow, footerRow})
	return layout.Render()
}

func (m Model) renderConnect() string {
	form := m.form.View(m.width)
	if m.connState == engine.Connecting {
		form = lipgloss.JoinVertical(lipgloss.Left,
			form,
			"",
			m.spinner.View()+" Connecting to "+m.lastParams.Address+"...",
		)
	}
	return lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, form)
}

func (m Model) renderChat() string {
	pane := ChatPaneStyle.Width(m.chatViewport.Width + 2).Render(m.chatViewport.View())
	if m.ctrl.Store().Len() == 0 {
		empty := MutedTextStyle.Render("No messages yet. Say something!")
		pane = ChatPaneStyle.Width(m.chatViewport.Width + 2).Height(m.chatViewport.Height).
			Render(lipgloss.Place(m.chatViewport.Width, m.chatViewport.Height, lipgloss.Center, lipgloss.Center, empty))
	}
	return lipgloss.JoinVertical(lipgloss.Left, pane, m.chatTextarea.View())
}

// renderHeader renders the header
func (m Model) renderHeader() string {
	left := HeaderStyle.Render(fmt.Sprintf("Tower %s", m.version))

	status := m.connState.String()
	if addr, ok := m.ctrl.Address(); ok {
		status += " · " + m.ownUsername() + "@" + addr.String()
	}
	if sent, received, ok := m.ctrl.Traffic(); ok {
		status += fmt.Sprintf(" · ↑%s ↓%s", humanize.Bytes(sent), humanize.Bytes(received))
	}
	if m.view == ViewChat {
		status += fmt.Sprintf(" · %d messages", m.ctrl.Store().Len())
	}
	right := StatusStyle.Render(status)

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + strings.Repeat(" ", gap) + right
}

// renderFooter renders the footer
func (m Model) renderFooter(shortcuts string) string {
	footer := shortcuts

	if m.sending {
		footer += "  " + m.spinner.View() + " Sending..."
	}
	if m.status != "" {
		footer += "  " + SuccessStyle.Render(m.status)
	}
	if m.toast != nil {
		text := m.toast.Title
		if m.toast.Description != "" {
			text += ": " + m.toast.Description
		}
		if m.toast.Retry != nil {
			text += " [Ctrl+R] Retry"
		}
		if m.toast.Err != nil {
			footer += "  " + RenderError(text)
		} else {
			footer += "  " + SuccessStyle.Render(text)
		}
	}

	maxWidth := m.width - 2
	if lipgloss.Width(footer) > maxWidth {
		footer = truncateString(footer, maxWidth-1) + "…"
	}
	return FooterStyle.Render(footer)
}

// ownUsername is the name this session posts under
func (m Model) ownUsername() string {
	if m.lastParams.Credentials != nil && m.lastParams.Credentials.Username != "" {
		return m.lastParams.Credentials.Username
	}
	return client.AnonymousUsername
}

// formatEnvelope renders one stored line. Lines that did not parse are
// shown raw, sanitized, under a marker.
func (m Model) formatEnvelope(env protocol.Envelope) string {
	width := max(m.chatViewport.Width, 10)

	switch env := env.(type) {
	case protocol.Parsed:
		msg := env.Message
		var b strings.Builder
		if msg.Timestamp != nil {
			b.WriteString(MutedTextStyle.Render(msg.Timestamp.Local().Format("[15:04]")))
			b.WriteString(" ")
		}
		if msg.Username == m.ownUsername() && msg.Client == protocol.ClientTower {
			b.WriteString(MessageOwnAuthorStyle.Render(msg.Username))
		} else {
			b.WriteString(MessageAuthorStyle.Render(msg.Username))
		}
		if msg.Client != protocol.ClientTower {
			b.WriteString(" ")
			b.WriteString(ClientTagStyle.Render("via " + msg.Client))
		}
		b.WriteString(": ")

		indent := lipgloss.Width(b.String())
		lines := wrapText(msg.Content, max(width-indent, 10))
		b.WriteString(MessageContentStyle.Render(lines[0]))
		for _, line := range lines[1:] {
			b.WriteString("\n")
			b.WriteString(strings.Repeat(" ", indent))
			b.WriteString(MessageContentStyle.Render(line))
		}
		return b.String()

	case protocol.Malformed:
		body := []string{ErrorStyle.Render("failed to parse")}
		body = append(body, wrapText(protocol.Sanitize(env.Text), max(width-2, 10))...)
		return MalformedStyle.Render(strings.Join(body, "\n"))
	}
	return ""
}

// wrapText wraps text at word boundaries. Words longer than width are
// broken up. Existing newlines are kept.
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		currentLine := ""
		for _, word := range words {
			for lipgloss.Width(word) > width {
				if currentLine != "" {
					lines = append(lines, currentLine)
					currentLine = ""
				}
				head, rest := splitAtWidth(word, width)
				lines = append(lines, head)
				word = rest
			}
			if word == "" {
				continue
			}

			testLine := currentLine
			if testLine != "" {
				testLine += " "
			}
			testLine += word

			if lipgloss.Width(testLine) > width {
				lines = append(lines, currentLine)
				currentLine = word
			} else {
				currentLine = testLine
			}
		}
		if currentLine != "" {
			lines = append(lines, currentLine)
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// splitAtWidth cuts s after width display columns
func splitAtWidth(s string, width int) (string, string) {
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i], s[i:]
		}
		w += rw
	}
	return s, ""
}

// truncateString cuts s to at most width display columns, keeping ANSI
// sequences intact
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	w := 0
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		}
		if inEscape {
			b.WriteRune(r)
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			break
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String()
}
