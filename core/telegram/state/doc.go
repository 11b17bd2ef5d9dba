// Package state stores one dialogue state per conversation. Stores are
// generic over the state type; callers own the state model and provide a
// Codec for durable backends. KeyedMutex serializes read-modify-write cycles
// for one conversation while other conversations proceed in parallel.
package state
