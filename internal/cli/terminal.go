package cli

import (
	"os"

	"github.com/opencode-ai/uiwalk/internal/styles"
	"golang.org/x/term"
)

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// outputStyles returns themed styles for terminals and plain styles otherwise.
func outputStyles(color bool) styles.Styles {
	if !color {
		return styles.PlainStyles()
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return styles.PlainStyles()
	}
	theme, _ := styles.Lookup(themeName)
	return styles.BuildStyles(theme)
}
