package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrUnsupportedFrequency is returned for any frequency outside D, W and MS.
var ErrUnsupportedFrequency = errors.New("unsupported frequency")

// Observation is a single raw data point. A NaN value marks a missing observation.
type Observation struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// Missing reports whether the observation carries no usable value.
func (o Observation) Missing() bool {
	return math.IsNaN(o.Value) || math.IsInf(o.Value, 0)
}

// RawSeries holds the observations of one indicator as returned by the data source.
// Observations are ascending with unique timestamps and are never modified after fetch.
type RawSeries struct {
	Code         string        `json:"code"`
	Observations []Observation `json:"observations"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// Latest returns the last two non-missing observations at or before asOf.
// A zero asOf considers every observation. ok is false when none exists;
// prev is the zero Observation when only one exists.
func (r *RawSeries) Latest(asOf time.Time) (last, prev Observation, ok bool) {
	found := 0
	for i := len(r.Observations) - 1; i >= 0 && found < 2; i-- {
		o := r.Observations[i]
		if o.Missing() || (!asOf.IsZero() && o.Time.After(asOf)) {
			continue
		}
		if found == 0 {
			last = o
		} else {
			prev = o
		}
		found++
	}
	return last, prev, found > 0
}

// Frequency is a display frequency for a fixed-frequency series.
type Frequency string

const (
	Daily      Frequency = "D"
	Weekly     Frequency = "W"
	MonthStart Frequency = "MS"
)

// ParseFrequency accepts the short codes as well as the UI names.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "daily":
		return Daily, nil
	case "w", "weekly":
		return Weekly, nil
	case "ms", "m", "monthly":
		return MonthStart, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, s)
}

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly || f == MonthStart
}

// Point is one period of a fixed-frequency series.
type Point struct {
	Period time.Time `json:"t"`
	Value  float64   `json:"v"`
}

// FixedSeries has exactly one value per period with no gaps between its first and last point.
type FixedSeries struct {
	Frequency Frequency `json:"frequency"`
	Points    []Point   `json:"points"`
}

// Len returns the number of points.
func (s FixedSeries) Len() int { return len(s.Points) }

// Empty reports whether the series has no points.
func (s FixedSeries) Empty() bool { return len(s.Points) == 0 }
