package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"MacroCanary/internal/model"
)

// Catalogue is the configured set of indicators grouped into category tabs.
type Catalogue struct {
	Categories []string          `yaml:"categories" json:"categories" validate:"required,min=1,dive,required"`
	Indicators []model.Indicator `yaml:"indicators" json:"indicators" validate:"required,min=1,dive"`

	byLabel map[string]model.Indicator
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadIndicators reads and validates the indicator catalogue at path.
func LoadIndicators(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicators: %w", err)
	}
	return ParseIndicators(data)
}

// ParseIndicators decodes a YAML catalogue.
func ParseIndicators(data []byte) (*Catalogue, error) {
	c := &Catalogue{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse indicators: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalogue builds a validated catalogue from code.
func NewCatalogue(categories []string, indicators []model.Indicator) (*Catalogue, error) {
	c := &Catalogue{Categories: categories, Indicators: indicators}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// index validates c and builds the label lookup. Labels must be unique and
// every indicator must belong to a declared category.
func (c *Catalogue) index() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid indicators:\n  %s", strings.Join(msgs, "\n  "))
		}
		return fmt.Errorf("invalid indicators: %w", err)
	}

	cats := make(map[string]bool, len(c.Categories))
	for _, name := range c.Categories {
		if cats[name] {
			return fmt.Errorf("invalid indicators: duplicate category %q", name)
		}
		cats[name] = true
	}

	c.byLabel = make(map[string]model.Indicator, len(c.Indicators))
	for _, ind := range c.Indicators {
		if _, dup := c.byLabel[ind.Label]; dup {
			return fmt.Errorf("invalid indicators: duplicate label %q", ind.Label)
		}
		if !cats[ind.Category] {
			return fmt.Errorf("invalid indicators: %q uses undeclared category %q", ind.Label, ind.Category)
		}
		c.byLabel[ind.Label] = ind
	}
	return nil
}

// ByLabel looks up an indicator by its display label.
func (c *Catalogue) ByLabel(label string) (model.Indicator, bool) {
	ind, ok := c.byLabel[label]
	return ind, ok
}

// ByCategory returns the indicators of one tab in configuration order.
func (c *Catalogue) ByCategory(category string) []model.Indicator {
	var out []model.Indicator
	for _, ind := range c.Indicators {
		if ind.Category == category {
			out = append(out, ind)
		}
	}
	return out
}

// HasCategory reports whether category is declared.
func (c *Catalogue) HasCategory(category string) bool {
	for _, name := range c.Categories {
		if name == category {
			return true
		}
	}
	return false
}
