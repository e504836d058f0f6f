package styles

import "testing"

func TestLookup(t *testing.T) {
	theme, ok := Lookup(" High-Contrast ")
	if !ok || theme.Name != "high-contrast" {
		t.Fatalf("expected high-contrast theme, got %q (%v)", theme.Name, ok)
	}

	theme, ok = Lookup("solarized")
	if ok || theme.Name != DefaultTheme.Name {
		t.Fatalf("expected default fallback, got %q (%v)", theme.Name, ok)
	}
}

func TestThemesDefineEveryToken(t *testing.T) {
	for name, theme := range Themes {
		tokens := theme.Tokens
		for role, value := range map[string]string{
			"text": tokens.Text, "muted": tokens.TextMuted, "border": tokens.Border,
			"accent": tokens.Accent, "success": tokens.Success, "warning": tokens.Warning,
			"error": tokens.Error, "info": tokens.Info,
		} {
			if value == "" {
				t.Fatalf("theme %s: %s token is empty", name, role)
			}
		}
	}
}

func TestPlainStylesRenderVerbatim(t *testing.T) {
	s := PlainStyles()
	if got := s.Error.Render("failed"); got != "failed" {
		t.Fatalf("expected plain text, got %q", got)
	}
}
