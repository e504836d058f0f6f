package styles

import "github.com/charmbracelet/lipgloss"

// Styles contains lipgloss styles derived from theme tokens.
type Styles struct {
	Theme    Theme
	Title    lipgloss.Style
	Heading  lipgloss.Style
	Text     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Box      lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Info     lipgloss.Style
	Required lipgloss.Style
	Optional lipgloss.Style
}

// DefaultStyles builds styles from the default theme.
func DefaultStyles() Styles {
	return BuildStyles(DefaultTheme)
}

// BuildStyles converts theme tokens into lipgloss styles.
func BuildStyles(theme Theme) Styles {
	tokens := theme.Tokens

	return Styles{
		Theme:    theme,
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)).Bold(true),
		Heading:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Accent)).Bold(true).MarginTop(1),
		Text:     lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Accent)),
		Box:      lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(tokens.Border)).Padding(0, 1),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Success)).Bold(true),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Warning)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Error)).Bold(true),
		Info:     lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Info)),
		Required: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Warning)).Bold(true),
		Optional: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)),
	}
}

// PlainStyles renders without color or decoration, for pipes and files.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Theme:    DefaultTheme,
		Title:    plain,
		Heading:  plain.MarginTop(1),
		Text:     plain,
		Muted:    plain,
		Accent:   plain,
		Box:      plain,
		Success:  plain,
		Warning:  plain,
		Error:    plain,
		Info:     plain,
		Required: plain,
		Optional: plain,
	}
}
