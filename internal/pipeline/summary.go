package pipeline

import (
	"context"
	"time"

	"MacroCanary/internal/calculator"
)

// Card is the headline figure of one indicator.
type Card struct {
	Label    string    `json:"label"`
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Latest   float64   `json:"latest"`
	Date     time.Time `json:"date"`
	Previous *float64  `json:"previous,omitempty"`
	Delta    *float64  `json:"delta,omitempty"`
	High1Y   float64   `json:"high_1y"`
	Low1Y    float64   `json:"low_1y"`
	Position float64   `json:"position_1y"` // 0 at the one-year low, 1 at the high
}

// Summary holds one card per indicator with data.
type Summary struct {
	AsOf     time.Time  `json:"as_of"`
	Cards    []Card     `json:"cards"`
	Degraded []Degraded `json:"degraded"`
}

// Summary reports the latest raw observation at or before asOf, with the
// change from the observation before it and the trailing one-year range,
// for every configured indicator.
func (p *Pipeline) Summary(ctx context.Context, asOf time.Time) (*Summary, error) {
	if asOf.IsZero() {
		asOf = p.now()
	}
	inds := p.catalogue.Indicators
	res := p.source.GetAll(ctx, inds)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Summary{AsOf: asOf, Cards: []Card{}, Degraded: []Degraded{}}
	for _, ind := range inds {
		if err, failed := res.Failures[ind.Label]; failed {
			out.Degraded = append(out.Degraded, p.degrade(ind, err))
			continue
		}
		raw := res.Series[ind.Label]
		if raw == nil {
			continue
		}
		last, prev, ok := raw.Latest(asOf)
		if !ok {
			continue
		}
		card := Card{Label: ind.Label, ID: ind.ID, Category: ind.Category, Latest: last.Value, Date: last.Time}
		if !prev.Time.IsZero() {
			pv, delta := prev.Value, last.Value-prev.Value
			card.Previous, card.Delta = &pv, &delta
		}
		if high, low, err := calculator.TrailingYearRange(raw.Observations, last.Time); err == nil {
			if pos, err := calculator.Position(last.Value, high, low); err == nil {
				card.High1Y, card.Low1Y, card.Position = high, low, pos
			}
		}
		out.Cards = append(out.Cards, card)
	}
	return out, nil
}
