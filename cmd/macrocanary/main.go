package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"MacroCanary/internal/api"
	"MacroCanary/internal/collector"
	"MacroCanary/internal/config"
	"MacroCanary/internal/metrics"
	"MacroCanary/internal/pipeline"
	"MacroCanary/internal/recorder"
	"MacroCanary/internal/scheduler"
	"MacroCanary/internal/store"
)

func main() {
	exportPath := flag.String("export", "", "write the indicators as a joined CSV to this path and exit")
	exportYears := flag.Int("export-years", 3, "years of history kept in the CSV export")
	exportLabels := flag.String("export-labels", "", "comma-separated labels to export (default: all)")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Info().Msg("MacroCanary starting...")

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	if err := run(cfgPath, *exportPath, *exportLabels, *exportYears); err != nil {
		log.Fatal().Err(err).Msg("MacroCanary failed")
	}
}

// run owns every resource it opens, so all of them are released before main
// exits, including on a server failure.
func run(cfgPath, exportPath, exportLabels string, exportYears int) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	catalogue, err := config.LoadIndicators(cfg.IndicatorsPath)
	if err != nil {
		return fmt.Errorf("load indicators %s: %w", cfg.IndicatorsPath, err)
	}
	log.Info().Int("indicators", len(catalogue.Indicators)).Int("categories", len(catalogue.Categories)).Msg("indicator catalogue loaded")

	// Init fetcher
	var fetcher collector.Fetcher
	if cfg.FRED.Demo {
		fetcher = &collector.MockFetcher{}
	} else {
		fetcher = collector.NewFREDFetcher(cfg.FRED.BaseURL, cfg.FRED.APIKey, cfg.Proxy, cfg.HTTPTimeout(), cfg.FRED.MaxRetries)
	}
	log.Info().Str("source", fetcher.Name()).Msg("data source ready")

	// Init metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// Init series store
	st := store.New(fetcher,
		store.WithTTL(cfg.CacheTTL()),
		store.WithFailureTTL(cfg.FailureTTL()),
		store.WithLookbackYears(cfg.Cache.LookbackYears),
		store.WithFetchTimeout(cfg.FetchTimeout()),
		store.WithConcurrency(cfg.Cache.MaxConcurrentFetches),
		store.WithMetrics(m),
	)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if exportPath != "" {
		if err := runExport(ctx, st, catalogue, exportPath, exportLabels, exportYears); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	}

	// Init recorder
	rec := openRecorder(ctx, cfg)
	defer rec.Close()

	if snap, err := rec.LoadSnapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("load snapshot failed, starting cold")
	} else if n := st.Seed(snap); n > 0 {
		log.Info().Int("series", n).Int("stored", len(snap)).Msg("cache seeded from snapshot")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, st, catalogue.Indicators, rec, m)
	if err := sched.RegisterAll(cfg.Schedule.RefreshCron, cfg.Schedule.SnapshotCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	sched.Warm()

	// Init API server
	p := pipeline.New(catalogue, st, pipeline.WithMetrics(m))
	srv := api.NewServer(p, st, api.Options{
		Port:            cfg.Server.Port,
		APIKey:          cfg.Server.APIKey,
		CORSAllowOrigin: cfg.Server.CORSAllowOrigin,
		SnapshotBackend: cfg.Snapshot.Backend,
		Gatherer:        reg,
	})
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	log.Info().Msg("MacroCanary is running. Press Ctrl+C to stop.")
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping...")
	case serveErr = <-srvErr:
		log.Error().Err(serveErr).Msg("api server failed, stopping...")
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	// The warm-up and cron jobs write through rec; it is closed only after they finish.
	sched.Stop()
	if snap := st.Snapshot(); len(snap) > 0 {
		if err := rec.SaveSnapshot(shutdownCtx, snap); err != nil {
			log.Error().Err(err).Msg("final snapshot")
		}
	}
	log.Info().Msg("MacroCanary stopped")
	if serveErr != nil {
		return fmt.Errorf("api server: %w", serveErr)
	}
	return nil
}

// openRecorder falls back to the no-op recorder when the configured backend
// cannot be opened.
func openRecorder(ctx context.Context, cfg *config.Config) recorder.Recorder {
	switch cfg.Snapshot.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.Snapshot.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Warn().Err(err).Msg("create snapshot dir failed, using noop")
				return recorder.NewNoopRecorder()
			}
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Snapshot.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			return recorder.NewNoopRecorder()
		}
		return sr
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rr, err := recorder.NewRedisRecorder(pingCtx, cfg.Snapshot.RedisAddr, cfg.Snapshot.RedisPassword, cfg.Snapshot.RedisDB, cfg.Snapshot.RedisKey)
		if err != nil {
			log.Warn().Err(err).Msg("init redis recorder failed, using noop")
			return recorder.NewNoopRecorder()
		}
		return rr
	}
	return recorder.NewNoopRecorder()
}

func runExport(ctx context.Context, st *store.Store, catalogue *config.Catalogue, path, labels string, years int) error {
	inds := catalogue.Indicators
	if labels != "" {
		inds = nil
		for _, l := range strings.Split(labels, ",") {
			ind, ok := catalogue.ByLabel(strings.TrimSpace(l))
			if !ok {
				return errors.New("unknown indicator " + l)
			}
			inds = append(inds, ind)
		}
	}

	res := st.GetAll(ctx, inds)
	if len(res.Series) == 0 {
		return errors.New("no series could be fetched, check FRED_API_KEY")
	}

	var cols []recorder.Column
	for _, ind := range inds {
		if s, ok := res.Series[ind.Label]; ok {
			cols = append(cols, recorder.Column{Name: ind.Label, Series: s})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := recorder.ExportCSV(f, cols, time.Now().AddDate(-years, 0, 0))
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("rows", rows).Int("series", len(cols)).Msg("export written")
	return f.Close()
}
