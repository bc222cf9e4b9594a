// Package cache implements the read-through prompt/response cache.
//
// Requests are content-addressed by Fingerprint. GetOrCompute guarantees that for a
// fingerprint at most one computation is in flight process-wide: concurrent callers
// share its result. Failed computations are propagated to every waiter and are not
// stored, so the next call computes again.
package cache
