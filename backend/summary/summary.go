package summary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"

	"pricemap/backend/metrics"
	"pricemap/backend/model"
)

// FetchFunc loads the summary of one entity from the host.
type FetchFunc func(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error)

// Cache memoizes entity summaries. Each ref is fetched at most once at a time;
// concurrent callers share the in-flight fetch. Failures are never stored.
type Cache struct {
	group singleflight.Group

	mu      sync.Mutex
	entries map[model.EntityRef]*model.EntitySummary
	loading map[model.EntityRef]bool
	// epoch advances on Clear so that flights started before it do not
	// repopulate the cache.
	epoch uint64
}

func New() *Cache {
	return &Cache{
		entries: map[model.EntityRef]*model.EntitySummary{},
		loading: map[model.EntityRef]bool{},
	}
}

// GetOrFetch returns the cached summary for ref or fetches it. A cancelled
// ctx stops the wait of this caller only; the shared fetch keeps running for
// the other callers and fills the cache when it completes.
func (c *Cache) GetOrFetch(ctx context.Context, ref model.EntityRef, fetch FetchFunc) (*model.EntitySummary, error) {
	c.mu.Lock()
	if s, ok := c.entries[ref]; ok {
		c.mu.Unlock()
		metrics.SummaryRequestsTotal.WithLabelValues("hit").Inc()
		return s, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	key := ref.String()
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(flightCtx, ref, epoch, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.SummaryRequestsTotal.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		if res.Shared {
			metrics.SummaryRequestsTotal.WithLabelValues("shared").Inc()
		} else {
			metrics.SummaryRequestsTotal.WithLabelValues("miss").Inc()
		}
		return res.Val.(*model.EntitySummary), nil
	}
}

func (c *Cache) load(ctx context.Context, ref model.EntityRef, epoch uint64, fetch FetchFunc) (*model.EntitySummary, error) {
	c.mu.Lock()
	if s, ok := c.entries[ref]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.loading[ref] = true
	c.mu.Unlock()

	start := time.Now()
	s, err := fetch(ctx, ref)
	metrics.SummaryFetchDurationSeconds.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loading, ref)
	if err != nil {
		log.Warnf("Failed to fetch summary for %s: %v", ref, err)
		return nil, fmt.Errorf("summary %s: %w", ref, err)
	}
	if s == nil {
		s = &model.EntitySummary{}
	}
	if epoch == c.epoch {
		c.entries[ref] = s
	}
	return s, nil
}

// Peek returns the cached summary without fetching.
func (c *Cache) Peek(ref model.EntityRef) (*model.EntitySummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[ref]
	return s, ok
}

// Loading tells whether a fetch for ref is in flight.
func (c *Cache) Loading(ref model.EntityRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[ref]
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every cached summary. Fetches still in flight complete for
// their callers but are not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[model.EntityRef]*model.EntitySummary{}
	c.epoch++
	for ref := range c.loading {
		c.group.Forget(ref.String())
	}
}
