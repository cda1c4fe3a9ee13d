package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MacroCanary/internal/model"
	"MacroCanary/internal/pipeline"
	"MacroCanary/internal/window"
)

const (
	defaultYears = 2
	maxYears     = 5
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"cached_series":     s.cache.Len(),
		"cache_ttl_seconds": int(s.cache.TTL().Seconds()),
		"snapshot":          s.opts.SnapshotBackend,
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Catalogue().Indicators)
}

type category struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cat := s.pipeline.Catalogue()
	out := make([]category, 0, len(cat.Categories))
	for _, name := range cat.Categories {
		c := category{Name: name, Labels: []string{}}
		for _, ind := range cat.ByCategory(name) {
			c.Labels = append(c.Labels, ind.Label)
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCharts renders a category tab, an explicit label list or, with
// neither, the whole catalogue.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	freq := model.MonthStart
	if v := q.Get("freq"); v != "" {
		f, err := model.ParseFrequency(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		freq = f
	}

	years, err := parseYears(q.Get("years"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asOf, err := parseAsOf(q.Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		return
	}

	var dash *pipeline.Dashboard
	if cat := q.Get("category"); cat != "" {
		dash, err = s.pipeline.RenderCategory(r.Context(), cat, freq, years, asOf)
	} else {
		dash, err = s.pipeline.Render(r.Context(), pipeline.Request{
			Labels:        splitLabels(q.Get("labels")),
			Frequency:     freq,
			LookbackYears: years,
			AsOf:          asOf,
		})
	}
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		return
	}
	sum, err := s.pipeline.Summary(r.Context(), asOf)
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.cache.RefreshAll(r.Context(), s.pipeline.Catalogue().Indicators)
	failures := make(map[string]string, len(res.Failures))
	for label, err := range res.Failures {
		failures[label] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": len(res.Series),
		"failures":  failures,
	})
}

// --- request helpers ---

func parseYears(v string) (int, error) {
	if v == "" {
		return defaultYears, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxYears {
		return 0, errors.New("years must be an integer between 1 and 5")
	}
	return n, nil
}

func parseAsOf(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	// The whole day is included.
	return d.Add(24*time.Hour - time.Nanosecond), nil
}

func splitLabels(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, l := range strings.Split(v, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func writeRenderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnsupportedFrequency), errors.Is(err, window.ErrInvalidLookback):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrUnknownCategory):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
