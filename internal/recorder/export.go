package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"MacroCanary/internal/model"
)

// Column is one named series of a CSV export.
type Column struct {
	Name   string
	Series *model.RawSeries
}

// ExportCSV writes the columns joined on observation date. Gaps are
// forward-filled, rows before every column has a value are dropped and only
// rows on or after start are written. It returns the number of data rows.
func ExportCSV(w io.Writer, columns []Column, start time.Time) (int, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("export: no series to write")
	}

	dates := make(map[time.Time]struct{})
	for _, c := range columns {
		if c.Series == nil {
			continue
		}
		for _, o := range c.Series.Observations {
			dates[o.Time.UTC()] = struct{}{}
		}
	}
	index := make([]time.Time, 0, len(dates))
	for d := range dates {
		index = append(index, d)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(columns)+1)
	header = append(header, "date")
	for _, c := range columns {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("export header: %w", err)
	}

	cursor := make([]int, len(columns))
	current := make([]float64, len(columns))
	for i := range current {
		current[i] = math.NaN()
	}
	record := make([]string, len(columns)+1)
	rows := 0

	for _, d := range index {
		complete := true
		for i, c := range columns {
			if c.Series != nil {
				obs := c.Series.Observations
				for cursor[i] < len(obs) && !obs[cursor[i]].Time.UTC().After(d) {
					if o := obs[cursor[i]]; !o.Missing() {
						current[i] = o.Value
					}
					cursor[i]++
				}
			}
			if math.IsNaN(current[i]) {
				complete = false
			}
		}
		if !complete || d.Before(start) {
			continue
		}
		record[0] = d.Format("2006-01-02")
		for i, v := range current {
			record[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return rows, fmt.Errorf("export row %s: %w", record[0], err)
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}
