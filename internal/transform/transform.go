// Package transform derives the year-over-year companion of a level series.
package transform

import (
	"errors"
	"fmt"
	"math"

	"MacroCanary/internal/model"
)

// ErrInvalidShift is returned when the shift horizon is not positive.
var ErrInvalidShift = errors.New("shift must be positive")

// ShiftFor returns the number of periods that make up one year at freq.
// The shift is a period count, so daily YoY drifts by a day across leap years.
func ShiftFor(freq model.Frequency) (int, error) {
	switch freq {
	case model.Daily:
		return 365, nil
	case model.Weekly:
		return 52, nil
	case model.MonthStart:
		return 12, nil
	}
	return 0, fmt.Errorf("%w: %q", model.ErrUnsupportedFrequency, freq)
}

// YoY compares every point with the point shift periods earlier.
// Curve indicators use the absolute difference, all others the percent change.
// Points without a counterpart, with a zero denominator or with a non-finite
// result are omitted.
func YoY(series model.FixedSeries, shift int, isCurve bool) (model.FixedSeries, error) {
	if shift <= 0 {
		return model.FixedSeries{}, fmt.Errorf("%w: got %d", ErrInvalidShift, shift)
	}
	out := model.FixedSeries{Frequency: series.Frequency, Points: []model.Point{}}
	pts := series.Points
	for i := shift; i < len(pts); i++ {
		cur, base := pts[i].Value, pts[i-shift].Value
		var v float64
		if isCurve {
			v = cur - base
		} else {
			if base == 0 {
				continue
			}
			v = (cur/base - 1) * 100
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Points = append(out.Points, model.Point{Period: pts[i].Period, Value: v})
	}
	return out, nil
}

// Apply builds the level/YoY pair for series using the shift of its frequency.
func Apply(series model.FixedSeries, isCurve bool) (model.TransformedPair, error) {
	shift, err := ShiftFor(series.Frequency)
	if err != nil {
		return model.TransformedPair{}, err
	}
	yoy, err := YoY(series, shift, isCurve)
	if err != nil {
		return model.TransformedPair{}, err
	}
	return model.TransformedPair{
		Level: series,
		YoY:   yoy,
		Kind:  model.KindFor(isCurve),
		Shift: shift,
	}, nil
}
