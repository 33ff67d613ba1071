// Package dataloader batches concurrent id loads into single engine loads.
//
// A Loader is request scoped: create one per request, share it between the
// goroutines serving that request and drop it afterwards.
//
//	loader := dataloader.New(client, dataloader.WithWait(2*time.Millisecond))
//	ctx = dataloader.WithLoader(ctx, loader)
//	...
//	customer, err := dataloader.For(ctx).Load(ctx, id)
//
// Every Load issued within the wait window is served by one LoadByIDs call.
// Results are memoized for the lifetime of the loader.
package dataloader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/syssam/versa/entity"
)

// ErrNotFound is returned when an id is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Fetcher loads the latest version of a set of ids. *store.Client
// implements it.
type Fetcher interface {
	LoadByIDs(ctx context.Context, ids ...string) ([]*entity.Instance, error)
}

// Loader collects Load calls into batches.
type Loader struct {
	fetch    Fetcher
	wait     time.Duration
	maxBatch int

	mu    sync.Mutex
	batch *batch
	memo  map[string]*entity.Instance
}

type batch struct {
	ctx     context.Context
	ids     []string
	index   map[string]bool
	done    chan struct{}
	results map[string]*entity.Instance
	err     error
}

// Option configures a Loader.
type Option func(*Loader)

// WithWait sets how long a batch collects ids before it is loaded.
func WithWait(d time.Duration) Option {
	return func(l *Loader) {
		l.wait = d
	}
}

// WithMaxBatch loads a batch as soon as it holds n ids.
func WithMaxBatch(n int) Option {
	return func(l *Loader) {
		l.maxBatch = n
	}
}

// New returns a loader fetching through f.
func New(f Fetcher, opts ...Option) *Loader {
	l := &Loader{fetch: f, wait: time.Millisecond, memo: make(map[string]*entity.Instance)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the latest version of id. Like the engine, it may return an
// instance together with a DanglingReferenceError.
func (l *Loader) Load(ctx context.Context, id string) (*entity.Instance, error) {
	l.mu.Lock()
	if inst, ok := l.memo[id]; ok {
		l.mu.Unlock()
		return inst, nil
	}
	b := l.batch
	if b == nil {
		b = &batch{
			ctx:   context.WithoutCancel(ctx),
			index: make(map[string]bool),
			done:  make(chan struct{}),
		}
		l.batch = b
		time.AfterFunc(l.wait, func() { l.dispatch(b) })
	}
	if !b.index[id] {
		b.index[id] = true
		b.ids = append(b.ids, id)
	}
	if l.maxBatch > 0 && len(b.ids) >= l.maxBatch {
		go l.dispatch(b)
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
	}
	inst, ok := b.results[id]
	switch {
	case b.err != nil:
		return inst, b.err
	case !ok:
		return nil, ErrNotFound
	}
	return inst, nil
}

// LoadMany loads ids and returns the instances and errors in the order of ids.
func (l *Loader) LoadMany(ctx context.Context, ids []string) ([]*entity.Instance, []error) {
	insts := make([]*entity.Instance, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			insts[i], errs[i] = l.Load(ctx, id)
		}()
	}
	wg.Wait()
	return insts, errs
}

// Prime stores inst in the memo of the loader, e.g. after saving it.
func (l *Loader) Prime(inst *entity.Instance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.memo[inst.ID] = inst
}

// Clear removes ids from the memo of the loader, e.g. after deleting them.
func (l *Loader) Clear(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.memo, id)
	}
}

// dispatch loads b once. Later calls for the same batch are no-ops.
func (l *Loader) dispatch(b *batch) {
	l.mu.Lock()
	if l.batch != b {
		l.mu.Unlock()
		return
	}
	l.batch = nil
	l.mu.Unlock()

	insts, err := l.fetch.LoadByIDs(b.ctx, b.ids...)
	b.results = make(map[string]*entity.Instance, len(insts))
	for id, inst := range GroupByKey(insts, instanceID) {
		b.results[id] = inst[0]
	}
	b.err = err
	if err == nil {
		l.mu.Lock()
		for id, inst := range b.results {
			l.memo[id] = inst
		}
		l.mu.Unlock()
	}
	close(b.done)
}

func instanceID(i *entity.Instance) string { return i.ID }

// OrderByKeys reorders values to match the order of keys. Missing values
// are represented as zero values with ErrNotFound.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups values by a key function.
//
//	byType := dataloader.GroupByKey(instances, func(i *entity.Instance) int32 { return i.EntityID })
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

type ctxKey struct{}

// WithLoader injects a loader into the context.
func WithLoader(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// For extracts the loader from the context. It returns nil if none is set.
func For(ctx context.Context) *Loader {
	l, _ := ctx.Value(ctxKey{}).(*Loader)
	return l
}
