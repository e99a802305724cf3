// Package query caches data-service responses by query key. Concurrent
// fetches of a key share one request, a refetch cancels the request it
// supersedes, and invalidation topics mark keys stale and refetch them.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSize bounds the number of cached keys
	DefaultSize = 512

	// DefaultStaleTime is how long fetched data is served without refetching
	DefaultStaleTime = 30 * time.Second
)

// ErrClosed is returned by fetches started after Close
var ErrClosed = errors.New("query cache closed")

// errSuperseded marks the result of a fetch that a newer one replaced
var errSuperseded = errors.New("fetch superseded")

// Fetcher loads the data of one key. ctx is cancelled when a newer fetch of
// the same key supersedes this one.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool
	fetch     Fetcher
}

type call struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Cache is the query cache. Create it with New.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	inflight map[string]*call
	group    singleflight.Group

	staleTime time.Duration
	policy    RetryPolicy
	now       func() time.Time
	logger    *zap.Logger

	base   context.Context
	stop   context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Cache
type Option func(*Cache)

// WithStaleTime sets how long data counts as fresh
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithRetryPolicy replaces DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger for retries and background refetches
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a cache holding at most size keys
func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	base, stop := context.WithCancel(context.Background())
	c := &Cache{
		entries:   entries,
		inflight:  make(map[string]*call),
		staleTime: DefaultStaleTime,
		policy:    DefaultRetryPolicy,
		now:       time.Now,
		logger:    zap.NewNop(),
		base:      base,
		stop:      stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch returns the cached data of key while it is fresh and otherwise
// loads it with fn, joining a fetch already in flight. ctx only bounds how
// long the caller waits; the shared fetch keeps running for other waiters.
func (c *Cache) Fetch(ctx context.Context, key string, fn Fetcher) (any, error) {
	if data, ok := c.fresh(key); ok {
		return data, nil
	}
	return c.wait(ctx, key, fn, c.start(key, fn, false))
}

// Refetch loads key with fn even when cached data is fresh, cancelling any
// fetch of key already in flight.
func (c *Cache) Refetch(ctx context.Context, key string, fn Fetcher) (any, error) {
	return c.wait(ctx, key, fn, c.start(key, fn, true))
}

// Cancel aborts the in-flight fetch of key, if any. Its result is discarded.
func (c *Cache) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(key)
}

// Get returns the cached data of key regardless of freshness
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Set replaces the cached data of key and marks it fresh
func (c *Cache) Set(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.data = data
	e.hasData = true
	e.err = nil
	e.stale = false
	e.updatedAt = c.now()
}

// Snapshot is the saved state of one key
type Snapshot struct {
	key       string
	data      any
	hasData   bool
	updatedAt time.Time
}

// Key returns the query key the snapshot was taken of
func (s Snapshot) Key() string { return s.key }

// Snapshot saves the current state of key for a later Restore
func (c *Cache) Snapshot(key string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{key: key}
	if e, ok := c.entries.Peek(key); ok {
		s.data, s.hasData, s.updatedAt = e.data, e.hasData, e.updatedAt
	}
	return s
}

// Restore puts a snapshot back, dropping the data when there was none
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(s.key)
	e.data, e.hasData, e.updatedAt = s.data, s.hasData, s.updatedAt
	if !s.hasData && e.fetch == nil {
		c.entries.Remove(s.key)
	}
}

// Invalidate marks stale every key equal to topic or nested under it
// ("topic/..."), refetches them in the background and returns how many keys
// matched.
func (c *Cache) Invalidate(topic string) int {
	type job struct {
		key string
		fn  Fetcher
	}

	c.mu.Lock()
	var jobs []job
	matched := 0
	for _, key := range c.entries.Keys() {
		if !MatchesTopic(key, topic) {
			continue
		}
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		matched++
		e.stale = true
		if e.fetch != nil {
			jobs = append(jobs, job{key: key, fn: e.fetch})
		}
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.start(j.key, j.fn, true)
	}
	c.logger.Debug("invalidated queries",
		zap.String("topic", topic),
		zap.Int("matched", matched),
		zap.Int("refetching", len(jobs)))
	return matched
}

// OnInvalidate lets the cache subscribe to invalidation topics
func (c *Cache) OnInvalidate(topic string) {
	c.Invalidate(topic)
}

// Len returns the number of cached keys
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Close cancels every in-flight fetch and waits for them to return
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

// MatchesTopic reports whether key belongs to an invalidation topic
func MatchesTopic(key, topic string) bool {
	return key == topic || strings.HasPrefix(key, topic+"/")
}

func (c *Cache) fresh(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok || !e.hasData || e.stale {
		return nil, false
	}
	if c.now().Sub(e.updatedAt) >= c.staleTime {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) entryLocked(key string) *entry {
	if e, ok := c.entries.Peek(key); ok {
		return e
	}
	e := &entry{}
	c.entries.Add(key, e)
	return e
}

func (c *Cache) cancelLocked(key string) {
	if cl, ok := c.inflight[key]; ok {
		cl.cancel()
		delete(c.inflight, key)
	}
}

// start joins the in-flight fetch of key or begins a new one
func (c *Cache) start(key string, fn Fetcher, supersede bool) <-chan singleflight.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		ch := make(chan singleflight.Result, 1)
		ch <- singleflight.Result{Err: ErrClosed}
		return ch
	}

	if supersede {
		c.cancelLocked(key)
	}
	if _, running := c.inflight[key]; running {
		return c.group.DoChan(key, func() (any, error) { return nil, errSuperseded })
	}

	ctx, cancel := context.WithCancel(c.base)
	cl := &call{ctx: ctx, cancel: cancel}
	c.inflight[key] = cl

	// the previous call may still be returning; never join it
	c.group.Forget(key)
	c.wg.Add(1)
	return c.group.DoChan(key, func() (any, error) {
		return c.run(key, cl, fn)
	})
}

func (c *Cache) run(key string, cl *call, fn Fetcher) (any, error) {
	defer c.wg.Done()
	defer cl.cancel()

	data, err := c.policy.do(cl.ctx, fn, func(attempt int, delay time.Duration, err error) {
		c.logger.Debug("retrying query",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[key] != cl {
		return nil, errSuperseded
	}
	delete(c.inflight, key)

	e := c.entryLocked(key)
	e.fetch = fn
	if err != nil {
		e.err = err
		c.logger.Warn("query failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	e.data = data
	e.hasData = true
	e.err = nil
	e.stale = false
	e.updatedAt = c.now()
	return data, nil
}

func (c *Cache) wait(ctx context.Context, key string, fn Fetcher, ch <-chan singleflight.Result) (any, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if !errors.Is(res.Err, errSuperseded) {
				return res.Val, res.Err
			}
			if data, ok := c.fresh(key); ok {
				return data, nil
			}
			ch = c.start(key, fn, false)
		}
	}
}

// FetchAs is Fetch with a typed result
func FetchAs[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	data, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("query %q holds %T, not %T", key, data, zero)
	}
	return v, nil
}

// GetAs is Get with a typed result
func GetAs[T any](c *Cache, key string) (T, bool) {
	data, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := data.(T)
	return v, ok
}
