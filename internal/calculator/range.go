package calculator

import (
	"errors"
	"math"
	"time"

	"MacroCanary/internal/model"
)

// ErrNoObservations is returned when no usable observation falls in the range.
var ErrNoObservations = errors.New("no observations in range")

// Range returns the high and low of the non-missing observations in [from, to].
func Range(obs []model.Observation, from, to time.Time) (high, low float64, err error) {
	high = math.Inf(-1)
	low = math.Inf(1)
	found := false
	for _, o := range obs {
		if o.Missing() || o.Time.Before(from) || o.Time.After(to) {
			continue
		}
		found = true
		if o.Value > high {
			high = o.Value
		}
		if o.Value < low {
			low = o.Value
		}
	}
	if !found {
		return 0, 0, ErrNoObservations
	}
	return high, low, nil
}

// TrailingYearRange returns the high and low of the year ending at asOf.
func TrailingYearRange(obs []model.Observation, asOf time.Time) (high, low float64, err error) {
	return Range(obs, asOf.AddDate(-1, 0, 0), asOf)
}

// Position returns where current sits within [low, high] (0.0~1.0).
func Position(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
