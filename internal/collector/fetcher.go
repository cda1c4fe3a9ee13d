package collector

import (
	"context"
	"errors"
	"time"

	"MacroCanary/internal/model"
)

// ErrNoData is returned when the source answers without any observation.
var ErrNoData = errors.New("no observations returned")

// Fetcher defines the interface for fetching raw indicator series.
type Fetcher interface {
	FetchSeries(ctx context.Context, code string, start time.Time) (*model.RawSeries, error)
	Name() string
}
