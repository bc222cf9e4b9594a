/*
Package lattice runs AI agents expressed as strategy graphs.

An agent is a directed graph of nodes (model calls, tool calls, pure transforms,
nested sub-graphs and terminal nodes) joined by guarded, prioritised edges. The Engine
walks the graph, alternates model and tool turns, retries transient model failures,
caches model responses per request fingerprint, and reports every step to an ordered
pipeline of observers (logging, metrics, tracing, checkpoints).

# Usage

Build a graph, register tools, pick a model executor and run:

	reg := registry.NewRegistry()
	reg.MustRegister(registry.NewFuncTool("lookup", "Looks things up", nil, lookup))

	b := dsl.New("agent")
	b.Add("start").Go("ask")
	b.Add("ask").
		LLM(domain.LLMConfig{AllTools: true}).
		Branch(dsl.HasToolCalls(), "lookup").
		Branch(dsl.NoToolCalls(), "done")
	b.Add("lookup").CallTools().Go("ask")
	b.Add("done").Terminal()

	graph, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := lattice.New(
		lattice.WithRegistry(reg),
		lattice.WithExecutor(openai.New(openai.WithAPIKey(key))),
		lattice.WithDefaultModel("gpt-4o-mini"),
	)
	if err != nil {
		log.Fatal(err)
	}

	out := eng.Run(ctx, graph, "What is the answer?")
	if !out.Succeeded() {
		log.Fatal(out.Err)
	}
	fmt.Println(out.Output)

# Durable runs

With a checkpoint store the engine saves the run state at every node entry. A run
interrupted by a crash or a cancellation continues with Resume, keyed by its run id.
Resuming a finished run starts a new pass over the graph with the accumulated history,
which is how multi-turn conversations are driven.

# Failures

Run never returns an error. Tool failures become tool results the model can react to.
Engine-level failures (stuck state, step limit, permanent model failure, cancellation)
end the run and are reported in Outcome.Err with a typed error from pkg/domain.
*/
package lattice
