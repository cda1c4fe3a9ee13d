// Package store caches raw indicator series fetched from the data source.
//
// Entries are keyed by source code and expire after a TTL. Concurrent
// requests for the same code share one in-flight fetch, and a failure for
// one indicator never affects the others.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"MacroCanary/internal/collector"
	"MacroCanary/internal/metrics"
	"MacroCanary/internal/model"
)

const (
	DefaultTTL           = time.Hour
	DefaultLookbackYears = 6
	DefaultFetchTimeout  = 30 * time.Second
	DefaultConcurrency   = 4
)

type entry struct {
	series   *model.RawSeries
	storedAt time.Time
}

// failure remembers a failed fetch so callers within the backoff get the
// same error instead of hitting the source again.
type failure struct {
	err    error
	failed time.Time
}

// Store is a fetch-once, reuse-many cache of raw series.
type Store struct {
	fetcher       collector.Fetcher
	ttl           time.Duration
	failureTTL    time.Duration
	lookbackYears int
	fetchTimeout  time.Duration
	concurrency   int
	now           func() time.Time
	metrics       *metrics.Metrics

	mu       sync.RWMutex
	entries  map[string]entry
	failures map[string]failure
	group    singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for TTL and lookback computations.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithFailureTTL sets how long a failed fetch is served from the cache.
// It defaults to the TTL; zero disables failure caching.
func WithFailureTTL(d time.Duration) Option { return func(s *Store) { s.failureTTL = d } }

// WithLookbackYears sets how much history is requested on fetch.
func WithLookbackYears(n int) Option { return func(s *Store) { s.lookbackYears = n } }

func WithFetchTimeout(d time.Duration) Option { return func(s *Store) { s.fetchTimeout = d } }

// WithConcurrency bounds the parallel fetches of GetAll.
func WithConcurrency(n int) Option { return func(s *Store) { s.concurrency = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// New creates a Store backed by fetcher.
func New(fetcher collector.Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher:       fetcher,
		ttl:           DefaultTTL,
		failureTTL:    -1,
		lookbackYears: DefaultLookbackYears,
		fetchTimeout:  DefaultFetchTimeout,
		concurrency:   DefaultConcurrency,
		now:           time.Now,
		entries:       make(map[string]entry),
		failures:      make(map[string]failure),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.failureTTL < 0 {
		s.failureTTL = s.ttl
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s
}

// TTL returns the configured time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the cached series for ind while it is younger than the TTL,
// otherwise fetches and stores a fresh one. A failed fetch is remembered for
// the failure TTL and its error returned without contacting the source.
func (s *Store) Get(ctx context.Context, ind model.Indicator) (*model.RawSeries, error) {
	if series, ok := s.lookup(ind.ID); ok {
		s.metrics.CacheHit(true)
		return series, nil
	}
	if err := s.cachedFailure(ind.ID); err != nil {
		s.metrics.CacheHit(true)
		return nil, err
	}
	s.metrics.CacheHit(false)
	return s.load(ctx, ind, false)
}

// Refresh fetches ind regardless of the cache, cached failures included.
// The cached series is only replaced when the fetch succeeds.
func (s *Store) Refresh(ctx context.Context, ind model.Indicator) (*model.RawSeries, error) {
	return s.load(ctx, ind, true)
}

// Result is the outcome of a multi-indicator lookup, keyed by label.
type Result struct {
	Series   map[string]*model.RawSeries
	Failures map[string]error
}

// GetAll looks up every indicator. Failures are recorded per label and logged.
func (s *Store) GetAll(ctx context.Context, inds []model.Indicator) Result {
	return s.each(ctx, inds, s.Get)
}

// RefreshAll force-fetches every indicator with the same isolation as GetAll.
func (s *Store) RefreshAll(ctx context.Context, inds []model.Indicator) Result {
	return s.each(ctx, inds, s.Refresh)
}

func (s *Store) each(ctx context.Context, inds []model.Indicator, get func(context.Context, model.Indicator) (*model.RawSeries, error)) Result {
	res := Result{
		Series:   make(map[string]*model.RawSeries, len(inds)),
		Failures: make(map[string]error),
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, ind := range inds {
		ind := ind
		g.Go(func() error {
			series, err := get(ctx, ind)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("indicator", ind.Label).Str("code", ind.ID).Msg("indicator skipped")
				res.Failures[ind.Label] = err
				return nil
			}
			res.Series[ind.Label] = series
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (s *Store) lookup(code string) (*model.RawSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[code]
	if !ok || !s.fresh(e) {
		return nil, false
	}
	return e.series, true
}

// cachedFailure returns the error of a failed fetch still inside its backoff.
func (s *Store) cachedFailure(code string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.failures[code]; ok && s.failing(f) {
		return f.err
	}
	return nil
}

func (s *Store) fresh(e entry) bool {
	return s.now().Sub(e.storedAt) < s.ttl
}

func (s *Store) failing(f failure) bool {
	return s.now().Sub(f.failed) < s.failureTTL
}

// load runs at most one fetch per code at a time. Callers that arrive while
// a fetch is in flight wait for its result. The fetch itself is detached from
// the caller's cancellation and bounded by the fetch timeout, so one caller
// giving up does not fail the others.
func (s *Store) load(ctx context.Context, ind model.Indicator, force bool) (*model.RawSeries, error) {
	ch := s.group.DoChan(ind.ID, func() (any, error) {
		if !force {
			if series, ok := s.lookup(ind.ID); ok {
				return series, nil
			}
			if err := s.cachedFailure(ind.ID); err != nil {
				return nil, err
			}
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fctx, ind)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*model.RawSeries), nil
	}
}

func (s *Store) fetch(ctx context.Context, ind model.Indicator) (*model.RawSeries, error) {
	start := s.now().AddDate(-s.lookbackYears, 0, 0)
	began := time.Now()
	series, err := s.fetcher.FetchSeries(ctx, ind.ID, start)
	s.metrics.ObserveFetch(ind.Label, time.Since(began), err)
	if err == nil && series == nil {
		err = collector.ErrNoData
	}
	if err != nil {
		err = fmt.Errorf("fetch %s (%s): %w", ind.Label, ind.ID, err)
		s.mu.Lock()
		s.failures[ind.ID] = failure{err: err, failed: s.now()}
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.entries[ind.ID] = entry{series: series, storedAt: s.now()}
	delete(s.failures, ind.ID)
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.SetCacheEntries(n)

	log.Debug().Str("indicator", ind.Label).Str("code", ind.ID).
		Int("observations", len(series.Observations)).Msg("series fetched")
	return series, nil
}

// Invalidate drops the entry and any cached failure for code.
func (s *Store) Invalidate(code string) {
	s.mu.Lock()
	delete(s.entries, code)
	delete(s.failures, code)
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.SetCacheEntries(n)
}

// Purge evicts every expired entry and returns how many were removed.
// Failures past their backoff are dropped too but not counted.
func (s *Store) Purge() int {
	s.mu.Lock()
	removed := 0
	for code, e := range s.entries {
		if !s.fresh(e) {
			delete(s.entries, code)
			removed++
		}
	}
	for code, f := range s.failures {
		if !s.failing(f) {
			delete(s.failures, code)
		}
	}
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.SetCacheEntries(n)
	return removed
}

// Len returns the number of cached entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Seed loads previously persisted series. Series whose FetchedAt is older
// than the TTL are ignored, as are codes already cached with newer data.
// It returns the number of series accepted.
func (s *Store) Seed(series []model.RawSeries) int {
	s.mu.Lock()
	accepted := 0
	for i := range series {
		rs := series[i]
		e := entry{series: &rs, storedAt: rs.FetchedAt}
		if rs.Code == "" || !s.fresh(e) {
			continue
		}
		if cur, ok := s.entries[rs.Code]; ok && !cur.storedAt.Before(e.storedAt) {
			continue
		}
		s.entries[rs.Code] = e
		accepted++
	}
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.SetCacheEntries(n)
	return accepted
}

// Snapshot returns copies of all fresh entries ordered by code.
func (s *Store) Snapshot() []model.RawSeries {
	s.mu.RLock()
	out := make([]model.RawSeries, 0, len(s.entries))
	for _, e := range s.entries {
		if s.fresh(e) {
			out = append(out, *e.series)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
