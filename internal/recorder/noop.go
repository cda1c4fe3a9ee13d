package recorder

import (
	"context"

	"MacroCanary/internal/model"
)

// NoopRecorder is a no-op implementation used when no snapshot backend is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) SaveSnapshot(_ context.Context, _ []model.RawSeries) error { return nil }
func (n *NoopRecorder) LoadSnapshot(_ context.Context) ([]model.RawSeries, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                              { return nil }
