package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// NewJetStreamKV opens (or creates, if missing) the credential bucket and
// wraps it as a KV so the rest of pkg/credstore never imports
// nats-io/nats.go/jetstream directly.
func NewJetStreamKV(ctx context.Context, js jetstream.JetStream, bucket string, history uint8) (KV, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  bucket,
			History: history,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: opening bucket %q: %w", bucket, err)
	}
	return &jetstreamKV{kv: kv}, nil
}

type jetstreamKV struct {
	kv jetstream.KeyValue
}

func (j *jetstreamKV) Get(ctx context.Context, key string) (Entry, error) {
	e, err := j.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return jetstreamEntry{e}, nil
}

func (j *jetstreamKV) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := j.kv.Create(ctx, key, value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return 0, ErrAlreadyExists
	}
	return rev, err
}

func (j *jetstreamKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := j.kv.Update(ctx, key, value, revision)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCASConflict, err)
	}
	return rev, nil
}

// Purge removes key and its history entirely, per spec.md §3/§4.1's
// requirement that remove_user erase history rather than leave a
// tombstone — jetstream.KeyValue.Delete would keep the old revisions
// around under the bucket's history depth.
func (j *jetstreamKV) Purge(ctx context.Context, key string) error {
	err := j.kv.Purge(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (j *jetstreamKV) Watch(ctx context.Context, keys string) (Watcher, error) {
	w, err := j.kv.Watch(ctx, keys)
	if err != nil {
		return nil, err
	}
	return &jetstreamWatcher{w: w}, nil
}

type jetstreamEntry struct {
	e jetstream.KeyValueEntry
}

func (j jetstreamEntry) Key() string      { return j.e.Key() }
func (j jetstreamEntry) Value() []byte    { return j.e.Value() }
func (j jetstreamEntry) Revision() uint64 { return j.e.Revision() }
func (j jetstreamEntry) Operation() Operation {
	switch j.e.Operation() {
	case jetstream.KeyValueDelete:
		return OpDelete
	case jetstream.KeyValuePurge:
		return OpPurge
	default:
		return OpPut
	}
}

type jetstreamWatcher struct {
	w jetstream.KeyWatcher
}

func (j *jetstreamWatcher) Updates() <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for e := range j.w.Updates() {
			if e == nil {
				out <- nil
				continue
			}
			out <- jetstreamEntry{e}
		}
	}()
	return out
}

func (j *jetstreamWatcher) Stop() error {
	return j.w.Stop()
}
