package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/styles"
)

func formatRunStatus(s styles.Styles, status models.RunStatus) string {
	label, style := statusLabelForRun(s, status)
	return style.Render(formatStatusLabel(label, string(status)))
}

func statusLabelForRun(s styles.Styles, status models.RunStatus) (string, lipgloss.Style) {
	switch status {
	case models.RunStatusSuccess:
		return "OK", s.Success
	case models.RunStatusFailure:
		return "ERR", s.Error
	case models.RunStatusCancelled:
		return "STOP", s.Warning
	case models.RunStatusRunning:
		return "BUSY", s.Info
	default:
		return "WARN", s.Warning
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}
