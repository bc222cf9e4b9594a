/*
Package observability implements the Feature Pipeline: an ordered list of observers
receiving the engine lifecycle events.

Observers implement any subset of the handler interfaces in pkg/ports. The pipeline
delivers each event to every observer in subscription order, synchronously, and
isolates their failures: a returned error or a panic is logged and counted, never
propagated to the run.

Stock observers cover structured logging (LogObserver), Prometheus metrics
(MetricsObserver), OpenTelemetry spans (TracingObserver), durable checkpoints
(CheckpointObserver), ad-hoc callbacks (Hooks) and event capture for tests (Recorder).
*/
package observability
