package versa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa"
)

func TestCacheKey(t *testing.T) {
	k := versa.CacheKey{ID: "u1", EditVersion: 3}
	assert.Equal(t, "v:2:u1:3", k.String())
	assert.Equal(t, "v:2:u1:", versa.CacheIDPrefix("u1"))

	// Ids that are prefixes of one another never share a version prefix.
	other := versa.CacheKey{ID: "u1:3", EditVersion: 1}
	assert.NotContains(t, other.String(), versa.CacheIDPrefix("u1"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := versa.NewMemoryCache()

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	k1 := versa.CacheKey{ID: "a", EditVersion: 1}.String()
	k2 := versa.CacheKey{ID: "a", EditVersion: 2}.String()
	k3 := versa.CacheKey{ID: "b", EditVersion: 1}.String()
	for _, k := range []string{k1, k2, k3} {
		require.NoError(t, c.Set(ctx, k, []byte(k), 0))
	}
	assert.Equal(t, 3, c.Len())

	v, err = c.Get(ctx, k2)
	require.NoError(t, err)
	assert.Equal(t, []byte(k2), v)

	require.NoError(t, c.DeletePrefix(ctx, versa.CacheIDPrefix("a")))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, k3))
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, k1, []byte("x"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	v, err = c.Get(ctx, k1)
	require.NoError(t, err)
	assert.Nil(t, v, "expired entries are not returned")

	require.NoError(t, c.Set(ctx, k1, []byte("x"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}
