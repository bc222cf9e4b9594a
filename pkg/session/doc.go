/*
Package session serialises access to run checkpoints.

A checkpoint token (the run id) may be resumed from several goroutines or several
engine replicas at once. The Manager holds a reference-counted local mutex per token
and, when configured with a ports.DistributedLocker, a distributed lock, so that at
most one run continues a given checkpoint at a time.
*/
package session
