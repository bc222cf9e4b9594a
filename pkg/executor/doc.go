// Package executor contains the building blocks around the model executor boundary:
// transient/permanent fault classification, a provider router, a rate limiter, a
// deterministic scripted executor for tests and replays, and a stream collector.
package executor
