// Package recorder persists the flat snapshot of cached raw series so a
// restart can serve from it while the data source is slow or unreachable.
package recorder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"MacroCanary/internal/model"
)

// Recorder saves and restores the raw series snapshot.
type Recorder interface {
	SaveSnapshot(ctx context.Context, series []model.RawSeries) error
	LoadSnapshot(ctx context.Context) ([]model.RawSeries, error)
	Close() error
}

// storedObservation encodes a missing value as null since JSON has no NaN.
type storedObservation struct {
	T time.Time `json:"t"`
	V *float64  `json:"v"`
}

func encodeObservations(obs []model.Observation) ([]byte, error) {
	out := make([]storedObservation, len(obs))
	for i, o := range obs {
		out[i].T = o.Time.UTC()
		if !o.Missing() {
			v := o.Value
			out[i].V = &v
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode observations: %w", err)
	}
	return data, nil
}

func decodeObservations(data []byte) ([]model.Observation, error) {
	var stored []storedObservation
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	obs := make([]model.Observation, len(stored))
	for i, s := range stored {
		obs[i].Time = s.T.UTC()
		if s.V == nil {
			obs[i].Value = math.NaN()
		} else {
			obs[i].Value = *s.V
		}
	}
	return obs, nil
}
