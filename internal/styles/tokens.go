// Package styles holds the terminal palettes used to render run reports.
package styles

import "strings"

// ThemeTokens defines the semantic color roles.
type ThemeTokens struct {
	Text      string
	TextMuted string
	Border    string
	Accent    string
	Success   string
	Warning   string
	Error     string
	Info      string
}

// Theme bundles a palette with a name.
type Theme struct {
	Name   string
	Tokens ThemeTokens
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// Lookup returns the named theme, falling back to DefaultTheme.
func Lookup(name string) (Theme, bool) {
	theme, ok := Themes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DefaultTheme, false
	}
	return theme, true
}
