package model

// Indicator describes one configured macro series.
type Indicator struct {
	Label    string `yaml:"label" json:"label" validate:"required"`
	ID       string `yaml:"id" json:"id" validate:"required"`
	IsCurve  bool   `yaml:"is_curve" json:"is_curve"`
	Category string `yaml:"category" json:"category" validate:"required"`
}

// YoYKind names the year-over-year rule used for an indicator.
type YoYKind string

const (
	YoYDiff    YoYKind = "diff"
	YoYPercent YoYKind = "pct"
)

// KindFor returns the YoY rule selected by the curve flag.
func KindFor(isCurve bool) YoYKind {
	if isCurve {
		return YoYDiff
	}
	return YoYPercent
}

// Title is the chart caption used for the YoY panel.
func (k YoYKind) Title() string {
	if k == YoYDiff {
		return "YoY Diff"
	}
	return "YoY (%)"
}

// TransformedPair is a level series with its YoY companion at the same frequency.
type TransformedPair struct {
	Level FixedSeries `json:"level"`
	YoY   FixedSeries `json:"yoy"`
	Kind  YoYKind     `json:"kind"`
	Shift int         `json:"shift"`
}
