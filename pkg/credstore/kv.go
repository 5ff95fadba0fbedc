package credstore

import "context"

// Operation identifies what kind of change a watch update represents.
type Operation int

const (
	OpPut Operation = iota
	OpDelete
	OpPurge
)

// Entry is the narrow view of a KV entry CredStore needs, independent of
// the concrete jetstream.KeyValueEntry type so the store can be exercised
// against a fake in tests without a running NATS server.
type Entry interface {
	Key() string
	Value() []byte
	Revision() uint64
	Operation() Operation
}

// Watcher is the narrow view of jetstream.KeyWatcher CredStore depends on.
// Updates delivers a nil Entry once the initial snapshot has been fully
// replayed, matching jetstream's "nil entry marks end of initial values"
// convention; CredStore uses that sentinel to know when it is safe to
// start serving reads.
type Watcher interface {
	Updates() <-chan Entry
	Stop() error
}

// KV is the subset of jetstream.KeyValue CredStore uses. Keeping it this
// narrow is what lets pkg/credstore's tests run without a live NATS
// server: the fake KV in credstore_test.go implements exactly this.
type KV interface {
	Get(ctx context.Context, key string) (Entry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Purge(ctx context.Context, key string) error
	Watch(ctx context.Context, keys string) (Watcher, error)
}
