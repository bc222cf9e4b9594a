// Package registry holds the named, schema-validated tools an agent may call.
//
// A Registry is filled at startup and is read-only afterwards, so it is safe for
// concurrent use by every run of the process. Execute never returns an error: every
// failure (unknown tool, invalid arguments, tool error, panic) is converted into a
// domain.ToolResult carrying a domain.ToolFailure, which the engine feeds back to the
// model as part of the conversation.
package registry
