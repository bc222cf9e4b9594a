package tui_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/lattice/internal/presentation/tui"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeMarkdown(t *testing.T) {
	state := domain.NewRunState("r1", "agent", "done")
	state.Step = 4
	state.Append(
		domain.UserMessage("q"),
		domain.ToolMessage(domain.ToolResult{ID: "c1", Name: "lookup", Output: strings.Repeat("x", 100)}),
		domain.AssistantMessage("The answer."),
	)

	md := tui.OutcomeMarkdown(domain.Outcome{RunID: "r1", Status: domain.StatusSucceeded, Output: "The answer.", State: state})
	assert.Contains(t, md, "## Run `r1`: succeeded")
	assert.Contains(t, md, "The answer.")
	assert.Contains(t, md, "- `lookup`: "+strings.Repeat("x", 80)+"…")
	assert.Contains(t, md, "_4 steps, 3 messages, node `done`_")
	assert.NotContains(t, md, "Error")
}

func TestOutcomeMarkdown_Failure(t *testing.T) {
	md := tui.OutcomeMarkdown(domain.Outcome{RunID: "r2", Status: domain.StatusFailed, Err: errors.New("boom")})
	assert.Contains(t, md, "**Error:** boom")
	assert.NotContains(t, md, "steps")
}

func TestRenderer(t *testing.T) {
	render := tui.NewRenderer()
	out, err := render("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|")
}

func TestStatus(t *testing.T) {
	assert.Contains(t, tui.Status(domain.StatusCancelled), "cancelled")
}
