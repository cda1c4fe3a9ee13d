// Package resample converts irregular raw observations into fixed-frequency
// series using last-observation-wins buckets and forward fill.
package resample

import (
	"fmt"
	"slices"
	"time"

	"MacroCanary/internal/model"
)

// BucketStart aligns t to the start of its period. All periods are UTC.
// Weekly periods are ISO weeks starting on Monday.
func BucketStart(t time.Time, freq model.Frequency) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch freq {
	case model.Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case model.MonthStart:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Next returns the start of the period following period.
func Next(period time.Time, freq model.Frequency) time.Time {
	switch freq {
	case model.Weekly:
		return period.AddDate(0, 0, 7)
	case model.MonthStart:
		return period.AddDate(0, 1, 0)
	default:
		return period.AddDate(0, 0, 1)
	}
}

// Resample buckets raw into freq periods. Each bucket takes the last
// non-missing observation inside it; buckets without one are forward-filled
// from the previous bucket. Buckets before the first valid observation are
// omitted. Empty or all-missing input yields an empty series.
func Resample(raw *model.RawSeries, freq model.Frequency) (model.FixedSeries, error) {
	if !freq.Valid() {
		return model.FixedSeries{}, fmt.Errorf("%w: %q", model.ErrUnsupportedFrequency, freq)
	}
	out := model.FixedSeries{Frequency: freq, Points: []model.Point{}}
	if raw == nil || len(raw.Observations) == 0 {
		return out, nil
	}

	obs := raw.Observations
	byTime := func(a, b model.Observation) int { return a.Time.Compare(b.Time) }
	if !slices.IsSortedFunc(obs, byTime) {
		obs = slices.Clone(obs)
		slices.SortStableFunc(obs, byTime)
	}

	for _, o := range obs {
		if o.Missing() {
			continue
		}
		bucket := BucketStart(o.Time, freq)
		n := len(out.Points)
		if n > 0 && out.Points[n-1].Period.Equal(bucket) {
			out.Points[n-1].Value = o.Value
			continue
		}
		if n > 0 {
			out.Points = fill(out.Points, bucket, freq)
		}
		out.Points = append(out.Points, model.Point{Period: bucket, Value: o.Value})
	}

	// Trailing missing observations still extend the range, carrying the last value.
	if len(out.Points) > 0 {
		end := BucketStart(obs[len(obs)-1].Time, freq)
		if end.After(out.Points[len(out.Points)-1].Period) {
			out.Points = fill(out.Points, Next(end, freq), freq)
		}
	}
	return out, nil
}

// fill appends forward-filled points for every period after the last point and before until.
func fill(points []model.Point, until time.Time, freq model.Frequency) []model.Point {
	last := points[len(points)-1]
	for p := Next(last.Period, freq); p.Before(until); p = Next(p, freq) {
		points = append(points, model.Point{Period: p, Value: last.Value})
	}
	return points
}
