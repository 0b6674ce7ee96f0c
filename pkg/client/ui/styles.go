package ui

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor   = lipgloss.Color("205")
	SecondaryColor = lipgloss.Color("39")
	SuccessColor   = lipgloss.Color("42")
	ErrorColor     = lipgloss.Color("#FF5555")
	MutedColor     = lipgloss.Color("240")
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).Padding(0, 1)
	StatusStyle = lipgloss.NewStyle().Foreground(SecondaryColor).Padding(0, 1)
	FooterStyle = lipgloss.NewStyle().Foreground(MutedColor).Padding(0, 1)

	ChatPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor)

	MutedTextStyle = lipgloss.NewStyle().Foreground(MutedColor)
	SuccessStyle   = lipgloss.NewStyle().Foreground(SuccessColor)
	ErrorStyle     = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)

	MessageAuthorStyle    = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	MessageOwnAuthorStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	MessageContentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ClientTagStyle        = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)

	// MalformedStyle frames lines that did not parse
	MalformedStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ErrorColor).
			Foreground(MutedColor).
			PaddingLeft(1)

	FormLabelStyle    = lipgloss.NewStyle().Width(10).Foreground(MutedColor)
	FormFocusStyle    = lipgloss.NewStyle().Width(10).Foreground(PrimaryColor).Bold(true)
	FormBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(PrimaryColor).Padding(1, 2)
	FormTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	SpinnerStyle      = lipgloss.NewStyle().Foreground(PrimaryColor)
	InputFocusStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(PrimaryColor).Padding(0, 1)
	InputBlurredStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(MutedColor).Padding(0, 1)
)

// RenderError renders an error message for the footer
func RenderError(msg string) string {
	return ErrorStyle.Render("✗ " + msg)
}
