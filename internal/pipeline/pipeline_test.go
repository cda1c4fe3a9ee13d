package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroCanary/internal/collector"
	"MacroCanary/internal/config"
	"MacroCanary/internal/model"
	"MacroCanary/internal/resample"
	"MacroCanary/internal/store"
	"MacroCanary/internal/window"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func testCatalogue(t *testing.T) *config.Catalogue {
	t.Helper()
	c, err := config.NewCatalogue(
		[]string{"Inflation", "Markets", "Empty"},
		[]model.Indicator{
			{Label: "CPI", ID: "CPIAUCSL", Category: "Inflation"},
			{Label: "Payrolls", ID: "PAYEMS", Category: "Inflation"},
			{Label: "Curve", ID: "T10Y2Y", IsCurve: true, Category: "Markets"},
			{Label: "WTI", ID: "DCOILWTICO", Category: "Markets"},
		},
	)
	require.NoError(t, err)
	return c
}

func newPipeline(t *testing.T, f *collector.MockFetcher) *Pipeline {
	t.Helper()
	if f.Now == nil {
		f.Now = clock
	}
	s := store.New(f, store.WithClock(clock))
	return New(testCatalogue(t), s, WithClock(clock))
}

func TestRender_IsolatesFailingIndicator(t *testing.T) {
	f := &collector.MockFetcher{Errors: map[string]error{"PAYEMS": errors.New("upstream 503")}}
	p := newPipeline(t, f)

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"WTI", "Payrolls", "CPI", "Curve"},
		Frequency:     model.MonthStart,
		LookbackYears: 2,
	})
	require.NoError(t, err)

	require.Len(t, dash.Panels, 3)
	assert.Equal(t, "WTI", dash.Panels[0].Indicator.Label)
	assert.Equal(t, "CPI", dash.Panels[1].Indicator.Label)
	assert.Equal(t, "Curve", dash.Panels[2].Indicator.Label)

	require.Len(t, dash.Degraded, 1)
	assert.Equal(t, "Payrolls", dash.Degraded[0].Label)
	assert.Equal(t, "PAYEMS", dash.Degraded[0].Code)
	assert.Contains(t, dash.Degraded[0].Error, "upstream 503")
	assert.True(t, dash.AsOf.Equal(now))
}

func TestRender_TransformAndWindow(t *testing.T) {
	p := newPipeline(t, &collector.MockFetcher{})

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"CPI", "Curve"},
		Frequency:     model.MonthStart,
		LookbackYears: 2,
	})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 2)

	cutoff := window.Start(now, 2)
	for _, panel := range dash.Panels {
		require.NotEmpty(t, panel.Level.Points, panel.Indicator.Label)
		require.NotEmpty(t, panel.YoY.Points, panel.Indicator.Label)
		assert.Equal(t, model.MonthStart, panel.Level.Frequency)
		assert.Equal(t, 12, panel.Shift)
		assert.LessOrEqual(t, panel.YoY.Len(), panel.Level.Len())
		for _, pt := range panel.Level.Points {
			assert.False(t, pt.Period.Before(cutoff))
			assert.Equal(t, 1, pt.Period.Day())
		}
	}

	cpi, curve := dash.Panels[0], dash.Panels[1]
	assert.Equal(t, model.YoYPercent, cpi.Kind)
	assert.Equal(t, "YoY (%)", cpi.YoYTitle)
	assert.Equal(t, model.YoYDiff, curve.Kind)
	assert.Equal(t, "YoY Diff", curve.YoYTitle)
}

func TestRender_PastAsOfBoundsBothEnds(t *testing.T) {
	f := &collector.MockFetcher{}
	p := newPipeline(t, f)
	asOf := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"CPI", "Curve"},
		Frequency:     model.MonthStart,
		LookbackYears: 1,
		AsOf:          asOf,
	})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 2)

	first := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	last := resample.BucketStart(asOf, model.MonthStart)
	for _, panel := range dash.Panels {
		for _, s := range []model.FixedSeries{panel.Level, panel.YoY} {
			require.Len(t, s.Points, 12, panel.Indicator.Label)
			assert.True(t, s.Points[0].Period.Equal(first), panel.Indicator.Label)
			assert.True(t, s.Points[11].Period.Equal(last), panel.Indicator.Label)
		}
	}

	// The chart ends where the summary cards stop.
	sum, err := p.Summary(context.Background(), asOf)
	require.NoError(t, err)
	require.NotEmpty(t, sum.Cards)
	assert.False(t, sum.Cards[0].Date.After(asOf))
}

func TestRender_AsOfMidPeriodUsesObservationsSoFar(t *testing.T) {
	raw := &model.RawSeries{Code: "CPIAUCSL", Observations: []model.Observation{
		{Time: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), Value: 1},
		{Time: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Value: 2},
		{Time: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), Value: 3},
		{Time: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), Value: 4},
	}}
	p := newPipeline(t, &collector.MockFetcher{Series: map[string]*model.RawSeries{"CPIAUCSL": raw}})

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"CPI"},
		Frequency:     model.MonthStart,
		LookbackYears: 1,
		AsOf:          time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 1)
	require.Len(t, dash.Panels[0].Level.Points, 1)
	assert.Equal(t, 2.0, dash.Panels[0].Level.Points[0].Value)
	assert.Len(t, raw.Observations, 4, "cached series must not be modified")
}

func TestRender_EmptyWindowIsNotAnError(t *testing.T) {
	old := &model.RawSeries{Code: "DCOILWTICO"}
	for m := 0; m < 30; m++ {
		old.Observations = append(old.Observations, model.Observation{
			Time:  time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, m, 0),
			Value: float64(70 + m),
		})
	}
	p := newPipeline(t, &collector.MockFetcher{Series: map[string]*model.RawSeries{"DCOILWTICO": old}})

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"WTI"},
		Frequency:     model.MonthStart,
		LookbackYears: 1,
	})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 1)
	assert.Empty(t, dash.Degraded)
	assert.True(t, dash.Panels[0].Level.Empty())
	assert.True(t, dash.Panels[0].YoY.Empty())
}

func TestRender_AllMissingSeriesRendersEmpty(t *testing.T) {
	blank := &model.RawSeries{Code: "CPIAUCSL", Observations: []model.Observation{
		{Time: now.AddDate(0, -1, 0), Value: math.NaN()},
	}}
	p := newPipeline(t, &collector.MockFetcher{Series: map[string]*model.RawSeries{"CPIAUCSL": blank}})

	dash, err := p.Render(context.Background(), Request{Labels: []string{"CPI"}, Frequency: model.Daily, LookbackYears: 1})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 1)
	assert.True(t, dash.Panels[0].Level.Empty())
}

func TestRender_UnknownLabelAndDefaults(t *testing.T) {
	p := newPipeline(t, &collector.MockFetcher{})

	dash, err := p.Render(context.Background(), Request{
		Labels:        []string{"GDP", "CPI"},
		Frequency:     model.Weekly,
		LookbackYears: 1,
	})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 1)
	require.Len(t, dash.Degraded, 1)
	assert.Equal(t, "GDP", dash.Degraded[0].Label)
	assert.Equal(t, 52, dash.Panels[0].Shift)

	all, err := p.Render(context.Background(), Request{Frequency: model.Weekly, LookbackYears: 1})
	require.NoError(t, err)
	assert.Len(t, all.Panels, 4)
}

func TestRender_InvalidRequest(t *testing.T) {
	p := newPipeline(t, &collector.MockFetcher{})

	_, err := p.Render(context.Background(), Request{Frequency: "Q", LookbackYears: 1})
	assert.ErrorIs(t, err, model.ErrUnsupportedFrequency)

	_, err = p.Render(context.Background(), Request{Frequency: model.Daily, LookbackYears: 0})
	assert.ErrorIs(t, err, window.ErrInvalidLookback)
}

func TestRender_CancelledContext(t *testing.T) {
	p := newPipeline(t, &collector.MockFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Render(ctx, Request{Frequency: model.Daily, LookbackYears: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderCategory(t *testing.T) {
	f := &collector.MockFetcher{}
	p := newPipeline(t, f)

	dash, err := p.RenderCategory(context.Background(), "Markets", model.Daily, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, dash.Panels, 2)
	assert.Equal(t, "Curve", dash.Panels[0].Indicator.Label)
	assert.Equal(t, "WTI", dash.Panels[1].Indicator.Label)
	assert.Equal(t, 0, f.Calls("CPIAUCSL"), "other tabs are not fetched")

	empty, err := p.RenderCategory(context.Background(), "Empty", model.Daily, 1, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, empty.Panels)

	_, err = p.RenderCategory(context.Background(), "Housing", model.Daily, 1, time.Time{})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSummary(t *testing.T) {
	d := func(m time.Month) time.Time { return time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC) }
	cpi := &model.RawSeries{Code: "CPIAUCSL", Observations: []model.Observation{
		{Time: d(9), Value: 310.0},
		{Time: d(10), Value: 311.5},
		{Time: d(11), Value: math.NaN()},
		{Time: d(12), Value: 312.0},
	}}
	f := &collector.MockFetcher{
		Series: map[string]*model.RawSeries{"CPIAUCSL": cpi},
		Errors: map[string]error{"T10Y2Y": errors.New("timeout")},
	}
	p := newPipeline(t, f)

	sum, err := p.Summary(context.Background(), time.Time{})
	require.NoError(t, err)

	require.Len(t, sum.Cards, 3)
	card := sum.Cards[0]
	assert.Equal(t, "CPI", card.Label)
	assert.Equal(t, 312.0, card.Latest)
	assert.True(t, card.Date.Equal(d(12)))
	require.NotNil(t, card.Previous)
	assert.Equal(t, 311.5, *card.Previous)
	assert.InDelta(t, 0.5, *card.Delta, 1e-9)
	assert.Equal(t, 312.0, card.High1Y)
	assert.Equal(t, 310.0, card.Low1Y)
	assert.Equal(t, 1.0, card.Position)

	require.Len(t, sum.Degraded, 1)
	assert.Equal(t, "Curve", sum.Degraded[0].Label)

	earlier, err := p.Summary(context.Background(), d(10))
	require.NoError(t, err)
	assert.Equal(t, 311.5, earlier.Cards[0].Latest)
}

func TestSummary_FlatRangeSitsMidway(t *testing.T) {
	d := func(m time.Month) time.Time { return time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC) }
	flat := &model.RawSeries{Code: "CPIAUCSL", Observations: []model.Observation{
		{Time: d(10), Value: 300},
		{Time: d(11), Value: 300},
	}}
	p := newPipeline(t, &collector.MockFetcher{Series: map[string]*model.RawSeries{"CPIAUCSL": flat}})

	sum, err := p.Summary(context.Background(), time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, sum.Cards)
	card := sum.Cards[0]
	require.Equal(t, "CPI", card.Label)
	assert.Equal(t, 300.0, card.High1Y)
	assert.Equal(t, 300.0, card.Low1Y)
	assert.Equal(t, 0.5, card.Position)
}
