// Package window applies the display lookback to a transformed pair.
package window

import (
	"errors"
	"fmt"
	"time"

	"MacroCanary/internal/model"
)

// ErrInvalidLookback is returned when the lookback is shorter than one year.
var ErrInvalidLookback = errors.New("lookback must be at least one year")

// Start returns the first instant inside a lookback of years calendar years ending at asOf.
func Start(asOf time.Time, years int) time.Time {
	return asOf.AddDate(-years, 0, 0)
}

// Select keeps the points of both series whose period is on or after
// asOf minus years calendar years. The input pair is left untouched.
func Select(pair model.TransformedPair, years int, asOf time.Time) (model.TransformedPair, error) {
	if years < 1 {
		return model.TransformedPair{}, fmt.Errorf("%w: got %d", ErrInvalidLookback, years)
	}
	from := Start(asOf, years)
	out := pair
	out.Level = filter(pair.Level, from)
	out.YoY = filter(pair.YoY, from)
	return out, nil
}

// filter copies the tail of s starting at from. Points are ordered, so the
// first match bounds the result.
func filter(s model.FixedSeries, from time.Time) model.FixedSeries {
	out := model.FixedSeries{Frequency: s.Frequency, Points: []model.Point{}}
	for i, p := range s.Points {
		if !p.Period.Before(from) {
			out.Points = append(out.Points, s.Points[i:]...)
			break
		}
	}
	return out
}
