// Package credstore implements the write-through, watch-populated cache of
// user credential records backed by a JetStream KV bucket.
package credstore

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound      = errors.New("credstore: user not found")
	ErrAlreadyExists = errors.New("credstore: user already exists")
	ErrCASConflict   = errors.New("credstore: revision conflict")
)

type cached struct {
	record   *UserRecord
	revision uint64
}

// CredStore keeps every user record mirrored in memory, kept current by a
// long-lived KV watch, so Verify (the hottest path in the system) never
// blocks on a network round trip. Writes still go straight to the KV
// bucket — the cache only reflects what the watch has confirmed.
type CredStore struct {
	kv KV

	mu    sync.RWMutex
	cache map[string]cached

	cancel context.CancelFunc
}

// Open creates a CredStore over kv and blocks until the initial snapshot of
// every existing key has been loaded into the cache. It starts the watch
// before reading anything else, so no Put that lands between "watch
// established" and "snapshot replay done" can be missed: JetStream replays
// everything from the bucket's start when a watch with no StartSequence is
// created, so the snapshot and the live tail are the same subscription.
func Open(ctx context.Context, kv KV) (*CredStore, error) {
	watchCtx, cancel := context.WithCancel(context.Background())

	watcher, err := kv.Watch(watchCtx, ">")
	if err != nil {
		cancel()
		return nil, err
	}

	cs := &CredStore{
		kv:     kv,
		cache:  make(map[string]cached),
		cancel: cancel,
	}

	updates := watcher.Updates()
	for entry := range updates {
		if entry == nil {
			// End of initial snapshot. Keep consuming the same channel for
			// live updates in the background from here on.
			break
		}
		cs.applyUpdate(entry)
	}

	go cs.watchLoop(watchCtx, watcher, updates)

	return cs, nil
}

func (cs *CredStore) watchLoop(ctx context.Context, watcher Watcher, updates <-chan Entry) {
	defer func() {
		_ = watcher.Stop()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			if entry == nil {
				// Redundant sentinel on this long-lived subscription; ignore.
				continue
			}
			cs.applyUpdate(entry)
		}
	}
}

// applyUpdate is idempotent: a redelivered Put for a revision already
// reflected in the cache just overwrites the same value again, which is
// why CredStore never needs to deduplicate by revision.
func (cs *CredStore) applyUpdate(entry Entry) {
	username := entry.Key()

	switch entry.Operation() {
	case OpDelete, OpPurge:
		cs.mu.Lock()
		delete(cs.cache, username)
		cs.mu.Unlock()
		return
	}

	record, err := decode(entry.Value())
	if err != nil {
		// A corrupt record must not take down the watch loop; skip it and
		// let the next Put for this key (if any) self-correct.
		return
	}

	cs.mu.Lock()
	cs.cache[username] = cached{record: record, revision: entry.Revision()}
	cs.mu.Unlock()
}

// Close stops the background watch. It does not close the underlying KV
// connection, which is owned by whoever constructed it.
func (cs *CredStore) Close() {
	cs.cancel()
}

// Get returns the cached record for username and its KV revision (needed
// for a subsequent CAS Update), or ErrNotFound.
func (cs *CredStore) Get(username string) (*UserRecord, uint64, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	c, ok := cs.cache[username]
	if !ok {
		return nil, 0, ErrNotFound
	}
	// Return a copy so callers mutating groups in place don't corrupt the
	// cache out from under concurrent readers.
	cp := *c.record
	cp.Groups = append([]string(nil), c.record.Groups...)
	return &cp, c.revision, nil
}

// Exists reports whether username has a record. It checks the cache
// first, since that's the common case and never touches the network, but
// a cache miss falls through to a direct bucket read: a record created by
// another replica (or even by this process, immediately before its own
// watch delivery has landed) must still be seen as existing, not
// incorrectly reported absent while the cache catches up.
func (cs *CredStore) Exists(ctx context.Context, username string) (bool, error) {
	cs.mu.RLock()
	_, ok := cs.cache[username]
	cs.mu.RUnlock()
	if ok {
		return true, nil
	}

	_, err := cs.kv.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns every known username. Order is not guaranteed.
func (cs *CredStore) List() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]string, 0, len(cs.cache))
	for username := range cs.cache {
		out = append(out, username)
	}
	return out
}

// Create persists a brand-new record with JetStream's create-only
// semantics (fails if the key already exists), returning ErrAlreadyExists
// on conflict. The cache is updated from the watch delivery, not directly
// here, so Create's caller should not assume Get immediately reflects it
// on a slow watch — in practice the watch round trip is local and
// effectively synchronous.
func (cs *CredStore) Create(ctx context.Context, record *UserRecord) error {
	data, err := encode(record)
	if err != nil {
		return err
	}
	rev, err := cs.kv.Create(ctx, record.Username, data)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadyExists
		}
		return err
	}
	// Reflect the write immediately rather than waiting on the watch
	// round trip, so a Create followed by a Get in the same handler call
	// sees the new record and its real revision (needed for a subsequent
	// CAS Update to succeed before the watch delivery arrives).
	cs.mu.Lock()
	cs.cache[record.Username] = cached{record: record, revision: rev}
	cs.mu.Unlock()
	return nil
}

// Update performs a compare-and-swap write using the revision previously
// returned by Get, returning ErrCASConflict if the record changed
// underneath the caller (e.g. a concurrent admin group change).
func (cs *CredStore) Update(ctx context.Context, record *UserRecord, revision uint64) error {
	data, err := encode(record)
	if err != nil {
		return err
	}
	newRev, err := cs.kv.Update(ctx, record.Username, data, revision)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.cache[record.Username] = cached{record: record, revision: newRev}
	cs.mu.Unlock()
	return nil
}

// Delete removes a user's record outright, purging its history from the
// bucket rather than leaving a tombstone (spec.md §3: remove_user is "a KV
// purge, not a tombstone delete").
func (cs *CredStore) Delete(ctx context.Context, username string) error {
	if err := cs.kv.Purge(ctx, username); err != nil {
		return err
	}
	cs.mu.Lock()
	delete(cs.cache, username)
	cs.mu.Unlock()
	return nil
}
