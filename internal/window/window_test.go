package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroCanary/internal/model"
)

func series(from time.Time, n int) model.FixedSeries {
	s := model.FixedSeries{Frequency: model.MonthStart}
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, model.Point{Period: from.AddDate(0, i, 0), Value: float64(i)})
	}
	return s
}

func pairFrom(start time.Time, n int) model.TransformedPair {
	level := series(start, n)
	yoy := series(start.AddDate(0, 12, 0), n-12)
	return model.TransformedPair{Level: level, YoY: yoy, Kind: model.YoYPercent, Shift: 12}
}

func TestSelect_CalendarYears(t *testing.T) {
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	pair := pairFrom(start, 72) // 2019-01 .. 2024-12
	asOf := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)

	got, err := Select(pair, 2, asOf)
	require.NoError(t, err)

	// Cutoff is 2022-12-15, so the first kept month is 2023-01.
	require.NotEmpty(t, got.Level.Points)
	assert.True(t, got.Level.Points[0].Period.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, got.Level.Points, 24)
	assert.Len(t, got.YoY.Points, 24)
	assert.Equal(t, model.YoYPercent, got.Kind)
	assert.Len(t, pair.Level.Points, 72, "input must not be modified")
}

func TestSelect_LeapDayCutoff(t *testing.T) {
	s := model.FixedSeries{Frequency: model.Daily}
	for d := time.Date(2023, 2, 27, 0, 0, 0, 0, time.UTC); d.Before(time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC)); d = d.AddDate(0, 0, 1) {
		s.Points = append(s.Points, model.Point{Period: d, Value: 1})
	}
	asOf := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	got, err := Select(model.TransformedPair{Level: s, YoY: s}, 1, asOf)
	require.NoError(t, err)
	// 2024-02-29 minus one year normalises to 2023-03-01.
	assert.True(t, got.Level.Points[0].Period.Equal(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSelect_Idempotent(t *testing.T) {
	pair := pairFrom(time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC), 80)
	asOf := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	for years := 1; years <= 5; years++ {
		once, err := Select(pair, years, asOf)
		require.NoError(t, err)
		twice, err := Select(once, years, asOf)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "years=%d", years)
	}
}

func TestSelect_NoOverlapIsEmpty(t *testing.T) {
	pair := pairFrom(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), 24)
	got, err := Select(pair, 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, got.Level.Empty())
	assert.True(t, got.YoY.Empty())
	assert.NotNil(t, got.Level.Points)
}

func TestSelect_InvalidLookback(t *testing.T) {
	_, err := Select(model.TransformedPair{}, 0, time.Now())
	assert.True(t, errors.Is(err, ErrInvalidLookback))
}
