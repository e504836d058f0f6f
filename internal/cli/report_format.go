package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/opencode-ai/uiwalk/internal/report"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/opencode-ai/uiwalk/internal/styles"
)

// renderOutcome formats a run envelope for people.
func renderOutcome(s styles.Styles, out *runner.Outcome) string {
	var b strings.Builder

	elapsed := time.Duration(out.ExecutionTime * float64(time.Second))
	fmt.Fprintf(&b, "%s  %s  %s\n",
		formatRunStatus(s, out.Status),
		s.Title.Render(out.RecipeName),
		s.Muted.Render(fmt.Sprintf("%s  run %s", formatDuration(elapsed), shortID(out.RunID))),
	)

	switch data := out.Data.(type) {
	case report.Report:
		renderReport(&b, s, data)
	case report.Failure:
		fmt.Fprintf(&b, "%s %s\n", s.Error.Render("failed at"), s.Title.Render(data.StepLabel))
		fmt.Fprintf(&b, "  %s\n", data.Reason)
	}
	return b.String()
}

func renderReport(b *strings.Builder, s styles.Styles, r report.Report) {
	if r.Message != "" {
		fmt.Fprintln(b, s.Text.Render(r.Message))
	}
	fmt.Fprintf(b, "%s %s\n", s.Muted.Render("url"), s.Accent.Render(r.URL))

	renderFields(b, s, fmt.Sprintf("Required fields (%d)", r.RequiredFieldsCount), r.Fields.Required, s.Required)
	renderFields(b, s, fmt.Sprintf("Optional fields (%d)", r.OptionalFieldsCount), r.Fields.Optional, s.Optional)

	if len(r.NextSteps) > 0 {
		fmt.Fprintln(b, s.Heading.Render("Next steps"))
		for _, step := range r.NextSteps {
			fmt.Fprintf(b, "  %s\n", step)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(b, s.Heading.Render("Warnings"))
		for _, warning := range r.Warnings {
			fmt.Fprintf(b, "  %s %s\n", s.Warning.Render("!"), warning)
		}
	}
}

func renderFields(b *strings.Builder, s styles.Styles, heading string, fields report.FieldSet, nameStyle lipgloss.Style) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintln(b, s.Heading.Render(heading))

	width := 0
	for _, f := range fields {
		width = max(width, len(f.Name))
	}
	for _, f := range fields {
		line := fmt.Sprintf("  %s  %-10s %s", nameStyle.Render(fmt.Sprintf("%-*s", width, f.Name)), f.Kind, f.Description)
		if f.DefaultValue != "" {
			line += s.Muted.Render(fmt.Sprintf(" (default %s)", f.DefaultValue))
		}
		if len(f.Options) > 0 {
			line += s.Muted.Render(" [" + strings.Join(f.Options, ", ") + "]")
		}
		fmt.Fprintln(b, line)
		if f.Note != "" {
			fmt.Fprintf(b, "  %s  %s\n", strings.Repeat(" ", width), s.Muted.Render(f.Note))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
