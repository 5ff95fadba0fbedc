// Package credstoretest provides an in-memory fake of pkg/credstore.KV for
// use in other packages' tests, so pkg/handlers, pkg/bus and pkg/socket can
// exercise real CredStore behavior without a running NATS server.
package credstoretest

import (
	"context"
	"sync"

	"github.com/cuemby/snas/pkg/credstore"
)

type entry struct {
	key       string
	value     []byte
	revision  uint64
	operation credstore.Operation
}

func (e entry) Key() string                    { return e.key }
func (e entry) Value() []byte                  { return e.value }
func (e entry) Revision() uint64               { return e.revision }
func (e entry) Operation() credstore.Operation { return e.operation }

// KV is a single-process, non-persistent stand-in for a JetStream bucket.
// It supports exactly the semantics CredStore depends on: Create fails if
// the key exists, Update fails on revision mismatch, every write fans out
// to active watchers, and Purge actually erases a key's history rather
// than merely tombstoning it — distinct enough from a soft delete that a
// test can tell the two apart.
type KV struct {
	mu       sync.Mutex
	data     map[string]entry
	history  map[string]int
	nextRev  uint64
	watchers []chan credstore.Entry
}

func New() *KV {
	return &KV{data: make(map[string]entry), history: make(map[string]int)}
}

func (k *KV) Get(_ context.Context, key string) (credstore.Entry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.data[key]
	if !ok || e.operation != credstore.OpPut {
		return nil, credstore.ErrNotFound
	}
	return e, nil
}

func (k *KV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.data[key]; ok && e.operation == credstore.OpPut {
		return 0, credstore.ErrAlreadyExists
	}
	k.nextRev++
	e := entry{key: key, value: value, revision: k.nextRev, operation: credstore.OpPut}
	k.data[key] = e
	k.history[key]++
	k.broadcast(e)
	return e.revision, nil
}

func (k *KV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	existing, ok := k.data[key]
	if !ok || existing.operation != credstore.OpPut || existing.revision != revision {
		return 0, credstore.ErrCASConflict
	}
	k.nextRev++
	e := entry{key: key, value: value, revision: k.nextRev, operation: credstore.OpPut}
	k.data[key] = e
	k.history[key]++
	k.broadcast(e)
	return e.revision, nil
}

// Purge erases key and all of its history outright, unlike a tombstone
// delete which would retain prior revisions under the bucket's history
// depth. HistoryLen(key) drops to zero after a Purge; it would stay
// nonzero after a mere soft delete.
func (k *KV) Purge(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextRev++
	e := entry{key: key, revision: k.nextRev, operation: credstore.OpPurge}
	delete(k.data, key)
	delete(k.history, key)
	k.broadcast(e)
	return nil
}

// HistoryLen reports how many revisions key has accumulated, for tests
// asserting that Purge (unlike a soft delete) erases history entirely.
func (k *KV) HistoryLen(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.history[key]
}

// Watch ignores keys (the fake only supports watching everything, which is
// all CredStore.Open ever asks for) and replays the current snapshot
// followed by a nil sentinel before delivering live updates.
func (k *KV) Watch(_ context.Context, _ string) (credstore.Watcher, error) {
	k.mu.Lock()
	ch := make(chan credstore.Entry, 64)
	snapshot := make([]entry, 0, len(k.data))
	for _, e := range k.data {
		if e.operation == credstore.OpPut {
			snapshot = append(snapshot, e)
		}
	}
	k.watchers = append(k.watchers, ch)
	k.mu.Unlock()

	go func() {
		for _, e := range snapshot {
			ch <- e
		}
		ch <- nil
	}()

	return &watcher{ch: ch}, nil
}

func (k *KV) broadcast(e entry) {
	for _, ch := range k.watchers {
		select {
		case ch <- e:
		default:
		}
	}
}

type watcher struct {
	ch chan credstore.Entry
}

func (w *watcher) Updates() <-chan credstore.Entry { return w.ch }
func (w *watcher) Stop() error                      { return nil }
