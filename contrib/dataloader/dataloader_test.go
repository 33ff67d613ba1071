package dataloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa/entity"
)

type fetcher struct {
	mu      sync.Mutex
	batches [][]string
	known   map[string]bool
	err     error
}

func (f *fetcher) LoadByIDs(_ context.Context, ids ...string) ([]*entity.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	var out []*entity.Instance
	for _, id := range ids {
		if f.known[id] {
			out = append(out, entity.NewWithKey(1, id, 1))
		}
	}
	return out, f.err
}

func (f *fetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestLoader_Batches(t *testing.T) {
	f := &fetcher{known: map[string]bool{"a": true, "b": true, "c": true}}
	l := New(f, WithWait(20*time.Millisecond))
	ctx := context.Background()

	insts, errs := l.LoadMany(ctx, []string{"a", "b", "a", "x"})
	require.Len(t, insts, 4)
	assert.Equal(t, "a", insts[0].ID)
	assert.Equal(t, "b", insts[1].ID)
	assert.Same(t, insts[0], insts[2])
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[3], ErrNotFound)
	require.Equal(t, 1, f.calls())
	assert.ElementsMatch(t, []string{"a", "b", "x"}, f.batches[0])

	// Memoized.
	inst, err := l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, insts[0], inst)
	assert.Equal(t, 1, f.calls())

	l.Clear("a")
	_, err = l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls())

	l.Prime(entity.NewWithKey(1, "p", 3))
	inst, err = l.Load(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inst.EditVersion)
	assert.Equal(t, 2, f.calls())
}

func TestLoader_MaxBatch(t *testing.T) {
	f := &fetcher{known: map[string]bool{"a": true, "b": true, "c": true}}
	l := New(f, WithWait(time.Hour), WithMaxBatch(3))
	_, errs := l.LoadMany(context.Background(), []string{"a", "b", "c"})
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.calls())
}

func TestLoader_Error(t *testing.T) {
	boom := errors.New("boom")
	f := &fetcher{known: map[string]bool{"a": true}, err: boom}
	l := New(f)
	inst, err := l.Load(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, inst)

	f.err = nil
	_, err = l.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls())
}

func TestLoader_Canceled(t *testing.T) {
	l := New(&fetcher{}, WithWait(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Load(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContext(t *testing.T) {
	assert.Nil(t, For(context.Background()))
	l := New(&fetcher{})
	assert.Same(t, l, For(WithLoader(context.Background(), l)))
}

func TestOrderByKeys(t *testing.T) {
	vals := []*entity.Instance{entity.NewWithKey(1, "c", 1), entity.NewWithKey(1, "a", 1)}
	out, errs := OrderByKeys([]string{"a", "b", "c"}, vals, instanceID)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Nil(t, out[1])
	assert.ErrorIs(t, errs[1], ErrNotFound)
	assert.Equal(t, "c", out[2].ID)
}

func TestGroupByKey(t *testing.T) {
	vals := []*entity.Instance{entity.New(1), entity.New(2), entity.New(1)}
	g := GroupByKey(vals, func(i *entity.Instance) int32 { return i.EntityID })
	assert.Len(t, g[1], 2)
	assert.Len(t, g[2], 1)
}
