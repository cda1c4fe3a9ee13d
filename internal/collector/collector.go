package collector

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"MacroCanary/internal/model"
)

// MockFetcher returns deterministic synthetic series for demo mode and tests.
type MockFetcher struct {
	// Step is the spacing between generated observations. Defaults to one day.
	Step time.Duration
	// Now anchors the end of generated series. Defaults to time.Now.
	Now func() time.Time
	// Series overrides generation for specific codes.
	Series map[string]*model.RawSeries
	// Errors forces a failure for specific codes.
	Errors map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchSeries(ctx context.Context, code string, start time.Time) (*model.RawSeries, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[code]++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errors[code]; ok {
		return nil, err
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	if s, ok := m.Series[code]; ok {
		out := *s
		out.FetchedAt = now()
		return &out, nil
	}
	step := m.Step
	if step <= 0 {
		step = 24 * time.Hour
	}
	return generateMockSeries(code, start, now(), step), nil
}

// Calls returns how many times code was fetched.
func (m *MockFetcher) Calls(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[code]
}

// generateMockSeries draws a slow sine wave around a level derived from the code.
func generateMockSeries(code string, start, end time.Time, step time.Duration) *model.RawSeries {
	h := fnv.New32a()
	h.Write([]byte(code))
	seed := h.Sum32()
	base := 1 + float64(seed%500)
	phase := float64(seed%360) * math.Pi / 180

	if start.IsZero() {
		start = end.AddDate(-6, 0, 0)
	}
	start = start.UTC().Truncate(24 * time.Hour)

	var obs []model.Observation
	for ts, i := start, 0; !ts.After(end); ts, i = ts.Add(step), i+1 {
		v := base * (1 + 0.1*math.Sin(phase+float64(i)/90))
		obs = append(obs, model.Observation{Time: ts, Value: math.Round(v*100) / 100})
	}
	return &model.RawSeries{Code: code, Observations: obs, FetchedAt: end}
}
