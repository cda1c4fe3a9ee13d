// Package pipeline turns configured indicators into rendered dashboard panels:
// store lookup, resampling, YoY transform and window selection per indicator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MacroCanary/internal/config"
	"MacroCanary/internal/metrics"
	"MacroCanary/internal/model"
	"MacroCanary/internal/resample"
	"MacroCanary/internal/store"
	"MacroCanary/internal/transform"
	"MacroCanary/internal/window"
)

// ErrUnknownCategory is returned when a requested tab is not configured.
var ErrUnknownCategory = errors.New("unknown category")

var errUnknownIndicator = errors.New("unknown indicator")

// Source provides raw series with per-indicator isolation.
type Source interface {
	GetAll(ctx context.Context, inds []model.Indicator) store.Result
}

// Request selects what to render.
type Request struct {
	Labels        []string        // empty renders the whole catalogue
	Frequency     model.Frequency
	LookbackYears int
	AsOf          time.Time // zero means now
}

// Panel is one rendered indicator: its level and YoY series side by side.
type Panel struct {
	Indicator model.Indicator `json:"indicator"`
	model.TransformedPair
	YoYTitle string `json:"yoy_title"`
}

// Degraded names an indicator that could not be rendered.
type Degraded struct {
	Label string `json:"label"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// Dashboard is the result of a render request.
type Dashboard struct {
	Frequency     model.Frequency `json:"frequency"`
	LookbackYears int             `json:"lookback_years"`
	AsOf          time.Time       `json:"as_of"`
	Panels        []Panel         `json:"panels"`
	Degraded      []Degraded      `json:"degraded"`
}

// Pipeline renders indicators from the catalogue.
type Pipeline struct {
	catalogue *config.Catalogue
	source    Source
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

func New(catalogue *config.Catalogue, source Source, opts ...Option) *Pipeline {
	p := &Pipeline{catalogue: catalogue, source: source, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalogue returns the configured indicators.
func (p *Pipeline) Catalogue() *config.Catalogue { return p.catalogue }

// Render builds one panel per requested label in request order. Unknown
// labels and indicators whose series could not be loaded or processed are
// reported in Degraded and never fail the whole request.
func (p *Pipeline) Render(ctx context.Context, req Request) (*Dashboard, error) {
	inds := p.catalogue.Indicators
	var unknown []Degraded
	if len(req.Labels) > 0 {
		inds = make([]model.Indicator, 0, len(req.Labels))
		for _, label := range req.Labels {
			ind, ok := p.catalogue.ByLabel(label)
			if !ok {
				unknown = append(unknown, Degraded{Label: label, Error: errUnknownIndicator.Error()})
				continue
			}
			inds = append(inds, ind)
		}
	}
	return p.render(ctx, inds, unknown, req.Frequency, req.LookbackYears, req.AsOf)
}

// RenderCategory renders the indicators of one tab.
func (p *Pipeline) RenderCategory(ctx context.Context, category string, freq model.Frequency, years int, asOf time.Time) (*Dashboard, error) {
	if !p.catalogue.HasCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return p.render(ctx, p.catalogue.ByCategory(category), nil, freq, years, asOf)
}

func (p *Pipeline) render(ctx context.Context, inds []model.Indicator, degraded []Degraded, freq model.Frequency, years int, asOf time.Time) (*Dashboard, error) {
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedFrequency, freq)
	}
	if years < 1 {
		return nil, fmt.Errorf("%w: got %d", window.ErrInvalidLookback, years)
	}
	if asOf.IsZero() {
		asOf = p.now()
	}
	began := time.Now()
	defer func() { p.metrics.ObserveRender(string(freq), time.Since(began)) }()

	dash := &Dashboard{
		Frequency:     freq,
		LookbackYears: years,
		AsOf:          asOf,
		Panels:        []Panel{},
		Degraded:      append([]Degraded{}, degraded...),
	}

	res := p.source.GetAll(ctx, inds)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, ind := range inds {
		if err, failed := res.Failures[ind.Label]; failed {
			dash.Degraded = append(dash.Degraded, p.degrade(ind, err))
			continue
		}
		panel, err := p.panel(ind, res.Series[ind.Label], freq, years, asOf)
		if err != nil {
			dash.Degraded = append(dash.Degraded, p.degrade(ind, err))
			continue
		}
		dash.Panels = append(dash.Panels, panel)
	}
	return dash, nil
}

func (p *Pipeline) panel(ind model.Indicator, raw *model.RawSeries, freq model.Frequency, years int, asOf time.Time) (Panel, error) {
	if raw == nil {
		return Panel{}, fmt.Errorf("no series loaded for %s", ind.ID)
	}
	fixed, err := resample.Resample(observedBy(raw, asOf), freq)
	if err != nil {
		return Panel{}, fmt.Errorf("resample: %w", err)
	}
	pair, err := transform.Apply(fixed, ind.IsCurve)
	if err != nil {
		return Panel{}, fmt.Errorf("transform: %w", err)
	}
	pair, err = window.Select(pair, years, asOf)
	if err != nil {
		return Panel{}, fmt.Errorf("window: %w", err)
	}
	return Panel{Indicator: ind, TransformedPair: pair, YoYTitle: pair.Kind.Title()}, nil
}

// observedBy returns raw without observations after asOf, so the last
// rendered period is the one containing asOf. raw itself is not modified.
func observedBy(raw *model.RawSeries, asOf time.Time) *model.RawSeries {
	kept := make([]model.Observation, 0, len(raw.Observations))
	for _, o := range raw.Observations {
		if !o.Time.After(asOf) {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(raw.Observations) {
		return raw
	}
	out := *raw
	out.Observations = kept
	return &out
}

func (p *Pipeline) degrade(ind model.Indicator, err error) Degraded {
	p.metrics.Degraded(ind.Label)
	return Degraded{Label: ind.Label, Code: ind.ID, Error: err.Error()}
}
