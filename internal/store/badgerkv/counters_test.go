package badgerkv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchgate.io/internal/model"
	"searchgate.io/internal/token"
)

var _ token.CounterStore = (*Counters)(nil)

func TestIncrementAndCount(t *testing.T) {
	c, err := OpenInMemory()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	n, err := c.Count(ctx, "t1~s")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 3; i++ {
		n, err = c.Increment(ctx, "t1~s", time.Hour)
		require.NoError(t, err)
		assert.EqualValues(t, i, n)
	}
	n, err = c.Count(ctx, "t1~s")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestConcurrentIncrementsAreAtomic(t *testing.T) {
	c, err := OpenInMemory()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := c.Increment(ctx, "shared", 0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	n, err := c.Count(ctx, "shared")
	require.NoError(t, err)
	assert.EqualValues(t, 80, n)
}

func TestExpiredCounterRestarts(t *testing.T) {
	c, err := OpenInMemory()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, err = c.Increment(ctx, "short", time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := c.Count(ctx, "short")
		return err == nil && n == 0
	}, 4*time.Second, 100*time.Millisecond)

	n, err := c.Increment(ctx, "short", time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRequestsLimitOverBadger(t *testing.T) {
	c, err := OpenInMemory()
	require.NoError(t, err)
	defer c.Close()

	v := token.RequestsLimit{Counters: c}
	tok := model.NewToken("t1", "app")
	tok.Metadata["requests_limit"] = []any{"2/d"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := v.IsTokenValid(ctx, tok, token.Request{})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := v.IsTokenValid(ctx, tok, token.Request{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenOnDiskAndPing(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.Increment(ctx, "k", 0)
	require.NoError(t, err)
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Close())
	assert.True(t, model.IsTransport(c.Ping(ctx)))

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	n, err := c.Count(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
