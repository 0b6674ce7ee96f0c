package modal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorColor   = lipgloss.Color("#FF5555")
	warningColor = lipgloss.Color("#FFB86C")

	bodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hintStyle     = mutedStyle.Italic(true)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

// renderBox centers a bordered dialog with a title, body lines and a hint
// line in a width x height area
func renderBox(accent lipgloss.Color, boxWidth int, title string, body []string, hint string, width, height int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	for _, line := range body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if hint != "" {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(hint))
	}

	if width < boxWidth+4 {
		boxWidth = width - 4
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Width(max(boxWidth-4, 10)).
		Render(b.String())

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// renderOptions renders a cursor menu with a key hint per option
func renderOptions(accent lipgloss.Color, options [][2]string, cursor int) []string {
	lines := make([]string, len(options))
	for i, opt := range options {
		label, key := opt[0], mutedStyle.Render("["+opt[1]+"]")
		if i == cursor {
			lines[i] = selectedStyle.Foreground(accent).Render("→ "+label) + " " + key
		} else {
			lines[i] = optionStyle.Render("  "+label) + " " + key
		}
	}
	return lines
}
