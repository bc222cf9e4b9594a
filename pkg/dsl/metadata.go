package dsl

import (
	"time"

	"github.com/aretw0/lattice/pkg/domain"
)

// GraphDefinition is the file representation of a strategy graph.
// It uses "mapstructure" tags to match the YAML keys.
type GraphDefinition struct {
	Name        string           `json:"name" mapstructure:"name" validate:"required"`
	Description string           `json:"description" mapstructure:"description"`
	Nodes       []NodeDefinition `json:"nodes" mapstructure:"nodes" validate:"required,min=1,dive"`
	Edges       []EdgeDefinition `json:"edges" mapstructure:"edges" validate:"dive"`
}

// NodeDefinition describes one node. Only the block matching Kind is read.
type NodeDefinition struct {
	ID          string `json:"id" mapstructure:"id" validate:"required"`
	Kind        string `json:"kind" mapstructure:"kind" validate:"required,oneof=start llm_call tool_call transform subgraph terminal"`
	Description string `json:"description" mapstructure:"description"`

	LLM *LLMDefinition `json:"llm" mapstructure:"llm"`

	Tool *ToolDefinition `json:"tool" mapstructure:"tool"`

	// Transform names a factory of the Library; Args are passed to it.
	Transform string         `json:"transform" mapstructure:"transform"`
	Args      map[string]any `json:"args" mapstructure:"args"`

	SubGraph *SubGraphDefinition `json:"subgraph" mapstructure:"subgraph"`

	// Output selects the terminal payload: "last_message" (default), "messages",
	// "scratch" or "scratch:<key>".
	Output string `json:"output" mapstructure:"output"`
}

// LLMDefinition mirrors domain.LLMConfig.
type LLMDefinition struct {
	Model        string        `json:"model" mapstructure:"model"`
	SystemPrompt string        `json:"system_prompt" mapstructure:"system_prompt"`
	Params       domain.Params `json:"params" mapstructure:"params"`
	Tools        []string      `json:"tools" mapstructure:"tools"`
	AllTools     bool          `json:"all_tools" mapstructure:"all_tools"`
	Stream       bool          `json:"stream" mapstructure:"stream"`
	// Timeout is a duration string such as "30s".
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// ToolDefinition mirrors domain.ToolConfig.
type ToolDefinition struct {
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxConcurrency int           `json:"max_concurrency" mapstructure:"max_concurrency" validate:"gte=0"`
}

// SubGraphDefinition references another graph by name.
type SubGraphDefinition struct {
	Graph      string   `json:"graph" mapstructure:"graph" validate:"required"`
	Isolation  string   `json:"isolation" mapstructure:"isolation" validate:"omitempty,oneof=shared fork_and_merge"`
	OutputKeys []string `json:"output_keys" mapstructure:"output_keys"`
	ResultKey  string   `json:"result_key" mapstructure:"result_key"`
}

// EdgeDefinition is a guarded transition. When holds a guard expression (see ParseCondition).
type EdgeDefinition struct {
	From     string `json:"from" mapstructure:"from" validate:"required"`
	To       string `json:"to" mapstructure:"to" validate:"required"`
	When     string `json:"when" mapstructure:"when"`
	Priority int    `json:"priority" mapstructure:"priority"`
	Label    string `json:"label" mapstructure:"label"`
}
