// Package redis provides Redis-backed implementations of the lattice ports: a
// checkpoint store, a response store for the prompt cache and a distributed locker.
package redis
