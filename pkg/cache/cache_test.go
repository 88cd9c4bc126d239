package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_ReturnsSameInstanceOnRepeatedCalls(t *testing.T) {
	c := New(time.Minute)
	var builds int32
	construct := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&builds, 1)
		return "orchestrator-instance", nil
	}

	key := Key("Fiduciary", "m1", "m2", "m3", "", "")

	v1, err := c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)
	v2, err := c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, builds)
}

// S5: invalidate, then the next GetOrCreate constructs fresh.
func TestInvalidateAgent_ForcesFreshConstructionOnNextGet(t *testing.T) {
	c := New(time.Minute)
	var builds int32
	construct := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&builds, 1)
		return n, nil
	}

	key := Key("Fiduciary", "m1", "m2", "m3", "", "")

	v1, err := c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)

	c.InvalidateAgent("Fiduciary")

	v2, err := c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestInvalidateAgent_IsIdempotentOnEmptyCache(t *testing.T) {
	c := New(time.Minute)
	assert.NotPanics(t, func() {
		c.InvalidateAgent("NeverCached")
		c.InvalidateAgent("NeverCached")
	})
}

func TestInvalidateAgent_LeavesOtherAgentsUntouched(t *testing.T) {
	c := New(time.Minute)
	construct := func(v any) Constructor {
		return func(ctx context.Context) (any, error) { return v, nil }
	}

	keyA := Key("Fiduciary", "m1", "m2", "m3", "", "")
	keyB := Key("Support", "m1", "m2", "m3", "", "")

	_, err := c.GetOrCreate(context.Background(), keyA, construct("a"))
	require.NoError(t, err)
	_, err = c.GetOrCreate(context.Background(), keyB, construct("b"))
	require.NoError(t, err)

	c.InvalidateAgent("Fiduciary")

	assert.Equal(t, 1, c.Len())
}

func TestGetOrCreate_ExpiredEntryIsEvictedAndRebuilt(t *testing.T) {
	c := New(time.Millisecond)
	var builds int32
	construct := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&builds, 1)
		return "v", nil
	}

	key := Key("Fiduciary", "m1", "m2", "m3", "", "")

	_, err := c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.GetOrCreate(context.Background(), key, construct)
	require.NoError(t, err)

	assert.EqualValues(t, 2, builds)
}

func TestGetOrCreate_ConcurrentMissesCollapseIntoOneConstruction(t *testing.T) {
	c := New(time.Minute)
	var builds int32
	construct := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(10 * time.Millisecond)
		return "v", nil
	}

	key := Key("Fiduciary", "m1", "m2", "m3", "", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrCreate(context.Background(), key, construct)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, builds)
}
