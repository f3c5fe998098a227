package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVersioned(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "catalog", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newVersioned(t)
	ctx := context.Background()
	var calls int32
	loader := func(context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return []string{"pizza", string(rune('a' + n))}, nil
	}

	key, err := c.BuildKey(ctx, "restaurants")
	require.NoError(t, err)
	assert.Equal(t, "catalog:restaurants:1", key)

	var first, second []string
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "restaurants")
	require.NoError(t, err)
	assert.Equal(t, "catalog:restaurants:2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	assert.NotEqual(t, first, second)
}

func TestFetchJSONSharesConcurrentLoads(t *testing.T) {
	c, _ := newVersioned(t)
	ctx := context.Background()
	release := make(chan struct{})
	var calls int32
	loader := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out int
			assert.NoError(t, c.FetchJSON(ctx, "catalog:k:1", &out, loader))
			assert.Equal(t, 42, out)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	c, mr := newVersioned(t)
	boom := errors.New("boom")
	var out int
	err := c.FetchJSON(context.Background(), "catalog:k:1", &out, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("catalog:k:1"))
}

func TestNilClientBypassesCache(t *testing.T) {
	c := NewVersioned(nil, "catalog", time.Minute)
	var out []int
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []int{1, 2}, nil
	}))
	assert.Equal(t, []int{1, 2}, out)
	require.NoError(t, c.Bump(context.Background()))
}

func TestListenForInvalidationFollowsRemoteBumps(t *testing.T) {
	c, mr := newVersioned(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.ListenForInvalidation(ctx))

	mr.Publish("catalog.bump", "7")
	require.Eventually(t, func() bool {
		v, err := c.Version(ctx)
		return err == nil && v == 7
	}, time.Second, 10*time.Millisecond)
}
