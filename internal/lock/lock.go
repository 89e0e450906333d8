// Package lock serializes operations that touch the same proposal, cycle
// or matching pool.
//
// Callers acquire every key they need in one Lock call. Keys are sorted and
// deduplicated before acquisition, so two callers asking for overlapping
// key sets can never deadlock.
package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Locker acquires a set of keys and returns a function that releases them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Key helpers for the lock namespaces used by the services.
func CycleKey(id string) string    { return "cycle:" + id }
func ProposalKey(id string) string { return "proposal:" + id }

// MatchingKey guards the open-proposal pool during a matching run.
const MatchingKey = "matching"

// normalize sorts and deduplicates keys.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Keyed is an in-process Locker with one mutex per key. Entries are
// reference counted and dropped when no caller holds or waits on them.
//
// Thread-safety: safe for concurrent use.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyed creates an empty in-process locker.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until every key is held or ctx is done. On ctx cancellation
// any keys already acquired are released before returning.
func (k *Keyed) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := k.acquire(ctx, key); err != nil {
			k.releaseAll(held)
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.releaseAll(held) })
	}, nil
}

func (k *Keyed) acquire(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.unref(key)
		return ctx.Err()
	}
}

func (k *Keyed) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.mu.Lock()
		e := k.locks[keys[i]]
		k.mu.Unlock()
		<-e.ch
		k.unref(keys[i])
	}
}

func (k *Keyed) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// size returns the number of live entries. Used for testing.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
