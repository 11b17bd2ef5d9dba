package state

import "context"

// Store persists one state value per conversation key. Get reports ok=false
// when nothing was stored yet. Implementations are safe for concurrent use;
// atomicity across Get and Set for one key is the caller's job (see KeyedMutex).
type Store[S any] interface {
	Get(ctx context.Context, key int64) (S, bool, error)
	Set(ctx context.Context, key int64, value S) error
}

// Codec converts state values to and from their stored representation.
type Codec[S any] interface {
	Marshal(S) ([]byte, error)
	Unmarshal([]byte) (S, error)
}
