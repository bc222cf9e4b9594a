package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // light or dark from the terminal background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// Status colours the outcome status for terminal output.
func Status(s domain.Status) string {
	p := termenv.ColorProfile()
	color := "#22c55e"
	switch s {
	case domain.StatusFailed:
		color = "#ef4444"
	case domain.StatusCancelled:
		color = "#f59e0b"
	}
	return termenv.String(string(s)).Foreground(p.Color(color)).Bold().String()
}

// OutcomeMarkdown summarises an outcome as markdown: the output, the failure if any and
// the tool activity of the run.
func OutcomeMarkdown(out domain.Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Run `%s`: %s\n\n", out.RunID, out.Status)

	if out.Err != nil {
		fmt.Fprintf(&sb, "> **Error:** %s\n\n", out.FailureMessage())
	}
	if out.Output != nil {
		fmt.Fprintf(&sb, "%v\n\n", out.Output)
	}

	if out.State == nil {
		return sb.String()
	}
	var tools []string
	for _, m := range out.State.Messages {
		if m.Role == domain.RoleTool {
			tools = append(tools, fmt.Sprintf("- `%s`: %s", m.Name, truncate(m.Content, 80)))
		}
	}
	if len(tools) > 0 {
		sb.WriteString("### Tool calls\n\n")
		sb.WriteString(strings.Join(tools, "\n"))
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "_%d steps, %d messages, node `%s`_\n", out.State.Step, len(out.State.Messages), out.State.CurrentNodeID)
	return sb.String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
