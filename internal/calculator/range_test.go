package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroCanary/internal/model"
)

func TestTrailingYearRange(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	obs := []model.Observation{
		{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: 99}, // outside
		{Time: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Value: 4},
		{Time: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), Value: math.NaN()},
		{Time: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Value: 7},
		{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Value: 5},
		{Time: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Value: -3}, // after asOf
	}

	high, low, err := TrailingYearRange(obs, asOf)
	require.NoError(t, err)
	assert.Equal(t, 7.0, high)
	assert.Equal(t, 4.0, low)

	_, _, err = TrailingYearRange(obs[:1], asOf)
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestPosition(t *testing.T) {
	tests := []struct {
		name              string
		current, high, lo float64
		want              float64
		wantErr           bool
	}{
		{"middle", 5, 7, 4, 1.0 / 3, false},
		{"flat range", 3, 3, 3, 0.5, false},
		{"clamped high", 9, 7, 4, 1, false},
		{"clamped low", 1, 7, 4, 0, false},
		{"inverted", 5, 4, 7, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Position(tt.current, tt.high, tt.lo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
