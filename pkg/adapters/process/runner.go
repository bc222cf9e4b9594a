// Package process exposes allow-listed local commands as tools.
//
// Tool arguments are never passed on the command line: each argument is exported as an
// environment variable LATTICE_ARG_<NAME> (strings verbatim, other values as JSON) and
// the whole argument object as LATTICE_ARGS. The trimmed stdout is the tool output,
// decoded as JSON when it is valid JSON.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/registry"
)

// EnvPrefix prefixes the argument variables.
const EnvPrefix = "LATTICE_ARG_"

// waitDelay bounds how long a killed process may keep its output pipes open.
const waitDelay = 2 * time.Second

// Tool runs a local process.
type Tool struct {
	cfg     ProcessConfig
	baseDir string
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithBaseDir sets the working directory of executed processes.
func WithBaseDir(dir string) ToolOption {
	return func(t *Tool) {
		t.baseDir = dir
	}
}

// NewTool creates a tool from its declaration.
func NewTool(cfg ProcessConfig, opts ...ToolOption) *Tool {
	t := &Tool{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds every declared process to reg.
func Register(reg *registry.Registry, configs []ProcessConfig, opts ...ToolOption) error {
	for _, cfg := range configs {
		if err := reg.Register(NewTool(cfg, opts...)); err != nil {
			return err
		}
	}
	return nil
}

// Spec implements registry.Tool.
func (t *Tool) Spec() domain.ToolSpec {
	desc := t.cfg.Description
	if desc == "" {
		desc = "Runs " + t.cfg.Command
	}
	return domain.ToolSpec{
		Name:        t.cfg.Name,
		Description: desc,
		InputSchema: t.cfg.Input,
	}
}

// Invoke implements registry.Tool.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	env, err := argEnv(args)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.baseDir
	cmd.WaitDelay = waitDelay
	cmd.Env = cmd.Environ()
	for k, v := range t.cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("process %s: %w", t.cfg.Name, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("process %s: %w", t.cfg.Name, err)
		}
		return nil, fmt.Errorf("process %s: %w: %s", t.cfg.Name, err, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) > 0 && json.Valid(out) {
		var v any
		if err := json.Unmarshal(out, &v); err == nil {
			return v, nil
		}
	}
	return string(out), nil
}

// argEnv renders the arguments as environment variables, in sorted key order.
func argEnv(args map[string]any) ([]string, error) {
	all, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	env := []string{"LATTICE_ARGS=" + string(all)}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var val string
		switch v := args[k].(type) {
		case nil:
		case string:
			val = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode argument %q: %w", k, err)
			}
			val = string(data)
		}
		env = append(env, EnvPrefix+envName(k)+"="+val)
	}
	return env, nil
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, key)
}
