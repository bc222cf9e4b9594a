package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/lattice/internal/presentation/tui"
	"github.com/aretw0/lattice/pkg/domain"
)

// Output formats of PrintOutcome.
const (
	FormatPlain = "plain"
	FormatJSON  = "json"
	FormatRich  = "rich"
)

type outcomeJSON struct {
	RunID  string           `json:"run_id"`
	Status domain.Status    `json:"status"`
	Output any              `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
	State  *domain.RunState `json:"state,omitempty"`
}

// PrintOutcome writes out to w in the given format.
func PrintOutcome(w io.Writer, out domain.Outcome, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomeJSON{
			RunID:  out.RunID,
			Status: out.Status,
			Output: out.Output,
			Error:  out.FailureMessage(),
			State:  out.State,
		})
	case FormatRich:
		rendered, err := tui.NewRenderer()(tui.OutcomeMarkdown(out))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, rendered)
		return err
	default:
		fmt.Fprintf(w, "run %s: %s\n", out.RunID, out.Status)
		if msg := out.FailureMessage(); msg != "" {
			fmt.Fprintf(w, "error: %s\n", msg)
		}
		if out.Output != nil {
			fmt.Fprintf(w, "%v\n", out.Output)
		}
		return nil
	}
}

// ParseInput turns a command line argument into run input: a JSON object or array is
// decoded, anything else is passed through as text. An empty argument means no input.
func ParseInput(arg string) (any, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON input: %w", err)
		}
		return v, nil
	}
	return arg, nil
}
