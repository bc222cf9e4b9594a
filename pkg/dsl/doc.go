/*
Package dsl builds strategy graphs, either programmatically with a fluent builder or
from YAML files.

Example usage:

	b := dsl.New("agent")

	b.Add("start").Go("ask")

	b.Add("ask").
		LLM(domain.LLMConfig{SystemPrompt: "You are terse.", AllTools: true}).
		Branch(dsl.HasToolCalls(), "lookup").
		Branch(dsl.NoToolCalls(), "done")

	b.Add("lookup").CallTools().Go("ask")

	b.Add("done").Terminal()

	graph, err := b.Build()

The same graph in YAML, loaded with LoadFile:

	name: agent
	nodes:
	  - id: start
	    kind: start
	  - id: ask
	    kind: llm_call
	    llm:
	      system_prompt: You are terse.
	      all_tools: true
	  - id: lookup
	    kind: tool_call
	  - id: done
	    kind: terminal
	edges:
	  - {from: start, to: ask}
	  - {from: ask, to: lookup, when: has_tool_calls}
	  - {from: ask, to: done, when: no_tool_calls}
	  - {from: lookup, to: ask}

Guards are referenced by name in YAML (see ParseCondition) and transforms through a
Library of named factories.
*/
package dsl
