package credstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/snas/pkg/credstore"
	"github.com/cuemby/snas/pkg/credstore/credstoretest"
)

func TestOpen_LoadsExistingRecordsBeforeReturning(t *testing.T) {
	kv := credstoretest.New()
	rec := &credstore.UserRecord{
		Username:     "alice",
		PasswordHash: "hash",
		Groups:       []string{"staff"},
		ResetPhase:   credstore.PhaseNone{},
	}
	data, err := credstoreEncodeForTest(rec)
	require.NoError(t, err)
	_, err = kv.Create(context.Background(), "alice", data)
	require.NoError(t, err)

	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	exists, err := cs.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	got, _, err := cs.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, []string{"staff"}, got.Groups)
}

func TestCreate_ThenGet(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	rec := &credstore.UserRecord{
		Username:     "bob",
		PasswordHash: "hash",
		ResetPhase:   credstore.PhaseNone{},
	}
	require.NoError(t, cs.Create(context.Background(), rec))

	got, rev, err := cs.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
	assert.Positive(t, rev)
}

func TestCreate_DuplicateFails(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	rec := &credstore.UserRecord{Username: "bob", PasswordHash: "hash", ResetPhase: credstore.PhaseNone{}}
	require.NoError(t, cs.Create(context.Background(), rec))

	err = cs.Create(context.Background(), rec)
	assert.ErrorIs(t, err, credstore.ErrAlreadyExists)
}

func TestUpdate_CASConflictWithStaleRevision(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	rec := &credstore.UserRecord{Username: "carol", PasswordHash: "hash", ResetPhase: credstore.PhaseNone{}}
	require.NoError(t, cs.Create(context.Background(), rec))

	_, rev, err := cs.Get("carol")
	require.NoError(t, err)

	updated := *rec
	updated.Groups = []string{"ops"}
	require.NoError(t, cs.Update(context.Background(), &updated, rev))

	// Reusing the stale revision must now fail.
	staleUpdate := *rec
	staleUpdate.Groups = []string{"other"}
	err = cs.Update(context.Background(), &staleUpdate, rev)
	assert.ErrorIs(t, err, credstore.ErrCASConflict)
}

func TestDelete_RemovesFromCache(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	rec := &credstore.UserRecord{Username: "dave", PasswordHash: "hash", ResetPhase: credstore.PhaseNone{}}
	require.NoError(t, cs.Create(context.Background(), rec))
	exists, err := cs.Exists(context.Background(), "dave")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, cs.Delete(context.Background(), "dave"))
	exists, err = cs.Exists(context.Background(), "dave")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestDelete_PurgesHistory asserts that removing a user erases its KV
// history outright (spec.md §3/§4.1's "a KV purge, not a tombstone
// delete") rather than merely hiding the latest revision.
func TestDelete_PurgesHistory(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	rec := &credstore.UserRecord{Username: "erin", PasswordHash: "hash", ResetPhase: credstore.PhaseNone{}}
	require.NoError(t, cs.Create(context.Background(), rec))
	require.Positive(t, kv.HistoryLen("erin"))

	require.NoError(t, cs.Delete(context.Background(), "erin"))
	assert.Zero(t, kv.HistoryLen("erin"), "Delete must purge history, not leave a tombstone behind")
}

// TestExists_FallsBackToBucketOnCacheMiss exercises the bucket-read path
// spec.md §4.1 calls out: a record present in the bucket but not yet
// reflected by this replica's watch must still be reported as existing,
// not wrongly reported absent. noSnapshotUpdatesKV's watcher stops
// delivering after the initial snapshot, so cs's cache deterministically
// never learns about a key created afterward — the only way Exists can
// see it is the bucket fallback.
func TestExists_FallsBackToBucketOnCacheMiss(t *testing.T) {
	kv := &noSnapshotUpdatesKV{KV: credstoretest.New()}
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	data, err := credstoreEncodeForTest(&credstore.UserRecord{
		Username: "frank", PasswordHash: "hash", ResetPhase: credstore.PhaseNone{},
	})
	require.NoError(t, err)

	_, err = kv.Create(context.Background(), "frank", data)
	require.NoError(t, err)

	exists, err := cs.Exists(context.Background(), "frank")
	require.NoError(t, err)
	assert.True(t, exists, "Exists must fall back to the bucket on a cache miss")
	_, _, getErr := cs.Get("frank")
	assert.ErrorIs(t, getErr, credstore.ErrNotFound, "cache itself must still be unaware of frank")
}

// noSnapshotUpdatesKV wraps the fake KV so its watcher closes right after
// the initial snapshot instead of continuing to deliver live updates,
// letting a test hold the cache and the bucket deliberately out of sync.
type noSnapshotUpdatesKV struct {
	*credstoretest.KV
}

func (k *noSnapshotUpdatesKV) Watch(ctx context.Context, keys string) (credstore.Watcher, error) {
	w, err := k.KV.Watch(ctx, keys)
	if err != nil {
		return nil, err
	}
	return &snapshotOnlyWatcher{inner: w}, nil
}

type snapshotOnlyWatcher struct {
	inner credstore.Watcher
}

func (w *snapshotOnlyWatcher) Updates() <-chan credstore.Entry {
	out := make(chan credstore.Entry)
	go func() {
		defer close(out)
		for e := range w.inner.Updates() {
			out <- e
			if e == nil {
				return
			}
		}
	}()
	return out
}

func (w *snapshotOnlyWatcher) Stop() error { return w.inner.Stop() }

func TestGet_NotFound(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	_, _, err = cs.Get("ghost")
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestList_ReturnsAllUsernames(t *testing.T) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.Create(context.Background(), &credstore.UserRecord{Username: "a", PasswordHash: "h", ResetPhase: credstore.PhaseNone{}}))
	require.NoError(t, cs.Create(context.Background(), &credstore.UserRecord{Username: "b", PasswordHash: "h", ResetPhase: credstore.PhaseNone{}}))

	assert.ElementsMatch(t, []string{"a", "b"}, cs.List())
}

// credstoreEncodeForTest round-trips through Create/Get on a throwaway
// store to obtain the same bytes CredStore itself would write, since the
// binary codec is unexported.
func credstoreEncodeForTest(rec *credstore.UserRecord) ([]byte, error) {
	kv := credstoretest.New()
	cs, err := credstore.Open(context.Background(), kv)
	if err != nil {
		return nil, err
	}
	defer cs.Close()
	if err := cs.Create(context.Background(), rec); err != nil {
		return nil, err
	}
	time.Sleep(10 * time.Millisecond)
	e, err := kv.Get(context.Background(), rec.Username)
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}
