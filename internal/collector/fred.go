package collector

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"MacroCanary/internal/httputil"
	"MacroCanary/internal/model"
)

const DefaultFREDBaseURL = "https://api.stlouisfed.org/fred"

// FREDFetcher implements Fetcher using the FRED series/observations API.
type FREDFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Retry   httputil.RetryConfig
	now     func() time.Time
}

// NewFREDFetcher creates a new FRED fetcher with optional proxy support.
func NewFREDFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration, maxRetries int) *FREDFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = DefaultFREDBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := httputil.DefaultRetry
	if maxRetries > 0 {
		retry.MaxAttempts = maxRetries
	}
	return &FREDFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		Retry: retry,
		now:   time.Now,
	}
}

func (f *FREDFetcher) Name() string { return "fred" }

// fredObservations is the response structure of series/observations.
type fredObservations struct {
	Observations []fredObservation `json:"observations"`
	ErrorCode    int               `json:"error_code"`
	ErrorMessage string            `json:"error_message"`
}

type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// FetchSeries returns all observations of code from start onwards.
func (f *FREDFetcher) FetchSeries(ctx context.Context, code string, start time.Time) (*model.RawSeries, error) {
	q := url.Values{}
	q.Set("series_id", code)
	q.Set("api_key", f.APIKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "asc")
	if !start.IsZero() {
		q.Set("observation_start", start.Format("2006-01-02"))
	}
	endpoint := f.BaseURL + "/series/observations?" + q.Encode()

	resp, err := httputil.Do(ctx, f.Client, f.Retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fred fetch %s: %w", code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fred read body: %w", err)
	}

	var payload fredObservations
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fred %s: status %d, body: %s", code, resp.StatusCode, truncate(body, 256))
		}
		return nil, fmt.Errorf("fred decode %s: %w", code, err)
	}
	if resp.StatusCode != http.StatusOK || payload.ErrorMessage != "" {
		return nil, fmt.Errorf("fred %s: status %d: %s", code, resp.StatusCode, payload.ErrorMessage)
	}

	series, err := parseObservations(code, payload)
	if err != nil {
		return nil, err
	}
	series.FetchedAt = f.now()
	return series, nil
}

// parseObservations converts FRED rows into a RawSeries. FRED marks missing
// values with "." which becomes NaN. Duplicate dates keep the last row.
func parseObservations(code string, payload fredObservations) (*model.RawSeries, error) {
	if len(payload.Observations) == 0 {
		return nil, fmt.Errorf("fred %s: %w", code, ErrNoData)
	}
	obs := make([]model.Observation, 0, len(payload.Observations))
	for _, row := range payload.Observations {
		ts, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, fmt.Errorf("fred %s: bad date %q: %w", code, row.Date, err)
		}
		v := math.NaN()
		if s := strings.TrimSpace(row.Value); s != "" && s != "." {
			if v, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("fred %s: bad value %q on %s: %w", code, row.Value, row.Date, err)
			}
		}
		obs = append(obs, model.Observation{Time: ts, Value: v})
	}

	// Ensure chronological order
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Time.Before(obs[j].Time) })
	uniq := obs[:0]
	for _, o := range obs {
		if n := len(uniq); n > 0 && uniq[n-1].Time.Equal(o.Time) {
			uniq[n-1] = o
			continue
		}
		uniq = append(uniq, o)
	}
	return &model.RawSeries{Code: code, Observations: uniq}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
