package summary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricemap/backend/model"
)

var storeRef = model.EntityRef{Kind: model.KindStore, ID: "9"}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		calls.Add(1)
		<-release
		return &model.EntitySummary{Availability: []model.AvailabilityRecord{{ProductID: "1", IsAvailable: true}}}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*model.EntitySummary, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.GetOrFetch(context.Background(), storeRef, fetch)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	require.Eventually(t, func() bool { return c.Loading(storeRef) }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the flight.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.False(t, c.Loading(storeRef))
	assert.Equal(t, 1, c.Len())
}

func TestCompletedSummaryIsNotRefetched(t *testing.T) {
	c := New()
	calls := 0
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		calls++
		return &model.EntitySummary{}, nil
	}

	first, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.NoError(t, err)
	second, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, first, second)

	peeked, ok := c.Peek(storeRef)
	assert.True(t, ok)
	assert.Same(t, first, peeked)
}

func TestFailureIsNotCached(t *testing.T) {
	c := New()
	calls := 0
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return &model.EntitySummary{}, nil
	}

	_, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	_, ok := c.Peek(storeRef)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	s, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, 2, calls)
}

func TestRefsOfDifferentKindsDoNotCollide(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		return &model.EntitySummary{Prices: []model.PriceObservation{{ProductName: string(ref.Kind)}}}, nil
	}
	supplierRef := model.EntityRef{Kind: model.KindSupplier, ID: storeRef.ID}

	s1, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.NoError(t, err)
	s2, err := c.GetOrFetch(context.Background(), supplierRef, fetch)
	require.NoError(t, err)

	assert.Equal(t, "store", s1.Prices[0].ProductName)
	assert.Equal(t, "supplier", s2.Prices[0].ProductName)
	assert.Equal(t, 2, c.Len())
}

func TestCancelledCallerDoesNotCancelFlight(t *testing.T) {
	c := New()
	release := make(chan struct{})
	var fetchErr atomic.Value
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchErr.Store(err)
			return nil, err
		}
		return &model.EntitySummary{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctx, storeRef, fetch)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Loading(storeRef) }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Peek(storeRef)
		return ok
	}, time.Second, time.Millisecond)
	assert.Nil(t, fetchErr.Load())
}

func TestClearDropsEntries(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error) {
		return &model.EntitySummary{}, nil
	}
	_, err := c.GetOrFetch(context.Background(), storeRef, fetch)
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Peek(storeRef)
	assert.False(t, ok)
}
