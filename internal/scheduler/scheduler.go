package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"MacroCanary/internal/metrics"
	"MacroCanary/internal/model"
	"MacroCanary/internal/recorder"
	"MacroCanary/internal/store"
)

// Cache is the series store as seen by the background jobs.
type Cache interface {
	Purge() int
	GetAll(ctx context.Context, inds []model.Indicator) store.Result
	Snapshot() []model.RawSeries
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron       *cron.Cron
	Cache      Cache
	Indicators []model.Indicator
	Recorder   recorder.Recorder
	Metrics    *metrics.Metrics
	Ctx        context.Context

	warming sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, cache Cache, inds []model.Indicator, rec recorder.Recorder, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Cache:      cache,
		Indicators: inds,
		Recorder:   rec,
		Metrics:    m,
		Ctx:        ctx,
	}
}

// RegisterAll registers the cache refresh and snapshot tasks.
func (s *Scheduler) RegisterAll(refreshCron, snapshotCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs, including a
// warm-up started by Warm.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.warming.Wait()
	log.Info().Msg("scheduler stopped")
}

// Warm runs RunRefreshNow in the background.
func (s *Scheduler) Warm() {
	s.warming.Add(1)
	go func() {
		defer s.warming.Done()
		s.RunRefreshNow()
	}()
}

// RunRefreshNow warms the cache immediately and persists the result.
func (s *Scheduler) RunRefreshNow() {
	s.refreshTask()
	s.snapshotTask()
}

func (s *Scheduler) refreshTask() {
	if s.Ctx.Err() != nil {
		return
	}
	began := time.Now()
	purged := s.Cache.Purge()
	res := s.Cache.GetAll(s.Ctx, s.Indicators)
	log.Info().
		Int("purged", purged).
		Int("loaded", len(res.Series)).
		Int("failed", len(res.Failures)).
		Dur("took", time.Since(began)).
		Msg("cache refresh done")
}

func (s *Scheduler) snapshotTask() {
	if s.Ctx.Err() != nil {
		return
	}
	snap := s.Cache.Snapshot()
	if len(snap) == 0 {
		log.Debug().Msg("snapshot skipped, cache empty")
		return
	}
	err := s.Recorder.SaveSnapshot(s.Ctx, snap)
	s.Metrics.SnapshotSaved(err)
	if err != nil {
		log.Error().Err(err).Msg("save snapshot")
		return
	}
	log.Info().Int("series", len(snap)).Msg("snapshot saved")
}
