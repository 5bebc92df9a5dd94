// Package lock serialises operations on one bank transaction or remittance
// within a process.
package lock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Keyed hands out one exclusive lock per key. Entries are dropped once no
// caller holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewKeyed(timeout time.Duration) *Keyed {
	return &Keyed{
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

// Acquire blocks until key is free, the timeout elapses or ctx ends. The
// returned release func must be called exactly once.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	e := k.ref(key)

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.unref(key)
			})
		}, nil
	case <-timer.C:
		k.unref(key)
		return nil, ErrTimeout
	case <-ctx.Done():
		k.unref(key)
		return nil, ctx.Err()
	}
}

// AcquireAll locks every key in sorted order so two callers asking for
// overlapping sets cannot deadlock. On failure nothing stays held.
func (k *Keyed) AcquireAll(ctx context.Context, keys []string) (func(), error) {
	sorted := dedupe(keys)
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, key := range sorted {
		release, err := k.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, &KeyError{Key: key, Err: err}
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}
