package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shTool(t *testing.T, name, script string) ProcessConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use sh")
	}
	return ProcessConfig{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func TestTool_PassesArgumentsThroughEnv(t *testing.T) {
	tool := NewTool(shTool(t, "echo_env", `printf '%s|%s|%s' "$LATTICE_ARG_MSG" "$LATTICE_ARG_COUNT" "$LATTICE_ARG_USER_NAME"`))

	out, err := tool.Invoke(context.Background(), map[string]any{
		"msg":       "hello; rm -rf /",
		"count":     3,
		"user-name": "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello; rm -rf /|3|ada", out)
}

func TestTool_DecodesJSONOutput(t *testing.T) {
	tool := NewTool(shTool(t, "json", `echo "$LATTICE_ARGS"`))

	out, err := tool.Invoke(context.Background(), map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "x"}, out)
}

func TestTool_Failure(t *testing.T) {
	tool := NewTool(shTool(t, "fail", `echo "bad input" >&2; exit 3`))

	_, err := tool.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestTool_Timeout(t *testing.T) {
	cfg := shTool(t, "slow", `sleep 5`)
	cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewTool(cfg).Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestTool_EnvironmentAndBaseDir(t *testing.T) {
	dir := t.TempDir()
	cfg := shTool(t, "pwd", `printf '%s:%s' "$GREETING" "$(basename "$PWD")"`)
	cfg.Environment = map[string]string{"GREETING": "hi"}

	out, err := NewTool(cfg, WithBaseDir(dir)).Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi:"+filepath.Base(dir), out)
}

func TestRegister_ValidatesThroughRegistry(t *testing.T) {
	cfg := shTool(t, "greet", `printf 'hello %s' "$LATTICE_ARG_NAME"`)
	cfg.Input = map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []any{"name"},
	}

	reg := registry.NewRegistry()
	require.NoError(t, Register(reg, []ProcessConfig{cfg}))

	ok := reg.Execute(context.Background(), domain.ToolCall{ID: "1", Name: "greet", Args: map[string]any{"name": "ada"}})
	require.False(t, ok.Failed(), ok.Text())
	assert.Equal(t, "hello ada", ok.Output)

	bad := reg.Execute(context.Background(), domain.ToolCall{ID: "2", Name: "greet", Args: map[string]any{}})
	require.True(t, bad.Failed())
	assert.Equal(t, domain.ToolFailureInvalidArguments, bad.Failure.Kind)

	assert.Equal(t, "Runs sh", reg.Specs("greet")[0].Description)
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: weather
    description: Forecast for a city
    command: ./weather.sh
    args: [--json]
    env: {UNITS: metric}
    timeout: 10s
    input:
      type: object
      properties:
        city: {type: string}
      required: [city]
`), 0o644))

	tools, err := LoadTools(path)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	w := tools[0]
	assert.Equal(t, "weather", w.Name)
	assert.Equal(t, []string{"--json"}, w.Args)
	assert.Equal(t, "metric", w.Environment["UNITS"])
	assert.Equal(t, 10*time.Second, w.Timeout)
	assert.Equal(t, "object", w.Input["type"])

	missing, err := LoadTools(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("tools:\n  - {name: a, command: x}\n  - {name: a, command: y}\n"), 0o644))
	_, err = LoadTools(dup)
	assert.ErrorContains(t, err, "duplicate")

	jsonPath := filepath.Join(dir, "tools.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"tools":[{"name":"j","command":"true"}]}`), 0o644))
	tools, err = LoadTools(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", tools[0].Name)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "USER_NAME", envName("user-name"))
	assert.Equal(t, "A_B_C", envName("a.b c"))
}
