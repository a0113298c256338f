package projector

import (
	"context"
	"errors"
	"hash/fnv"
	"time"
)

// ErrContentionTimeout is returned when a packet's critical section could
// not be acquired within the bounded wait.
var ErrContentionTimeout = errors.New("packet lock contention timeout")

// KeyLock partitions keys into independent serialization points so claims
// on different packets never wait on each other. Keys hashing to the same
// shard share a lock.
type KeyLock struct {
	shards []chan struct{}
}

func NewKeyLock(shards int) *KeyLock {
	if shards <= 0 {
		shards = 256
	}
	l := &KeyLock{shards: make([]chan struct{}, shards)}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Acquire takes the key's lock, waiting at most wait. It returns a release
// function on success and ErrContentionTimeout when the wait elapses, so
// callers reject instead of queueing indefinitely.
func (l *KeyLock) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	ch := l.shards[l.index(key)]

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrContentionTimeout
	}
}

func (l *KeyLock) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
