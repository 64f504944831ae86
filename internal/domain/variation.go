package domain

import (
	"fmt"
	"strings"
)

// Variation selects a stock-keeping unit of a product. A nil *Variation means
// the product was added without one.
type Variation struct {
	Color string `json:"color,omitempty" bson:"color,omitempty"`
	Size  string `json:"size,omitempty" bson:"size,omitempty"`
	RAM   string `json:"ram,omitempty" bson:"ram,omitempty"`
}

func (v *Variation) IsZero() bool {
	return v == nil || (v.Color == "" && v.Size == "" && v.RAM == "")
}

type VariationField string

const (
	FieldColor VariationField = "color"
	FieldSize  VariationField = "size"
	FieldRAM   VariationField = "ram"
)

func ParseVariationField(s string) (VariationField, error) {
	switch f := VariationField(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldColor, FieldSize, FieldRAM:
		return f, nil
	default:
		return "", fmt.Errorf("unknown variation field %q", s)
	}
}

// LineKey identifies a cart line: a product plus the variation it was added
// with. Category picks the discriminating fields and may be empty when the
// caller only knows the product ref.
type LineKey struct {
	ProductRef string
	Category   string
	Variation  *Variation
}

// Matcher decides which variation fields tell two lines of the same product
// apart. Fields not listed for a category are carried on the line but never
// compared.
type Matcher struct {
	defaults   []VariationField
	categories map[string][]VariationField
}

// DefaultMatcher compares color and size only. Two lines that differ only by
// RAM are the same line.
var DefaultMatcher = NewMatcher([]VariationField{FieldColor, FieldSize}, nil)

func NewMatcher(defaults []VariationField, categories map[string][]VariationField) Matcher {
	m := Matcher{
		defaults:   append([]VariationField(nil), defaults...),
		categories: make(map[string][]VariationField, len(categories)),
	}
	for category, fields := range categories {
		m.categories[normalizeCategory(category)] = append([]VariationField(nil), fields...)
	}
	return m
}

func (m Matcher) FieldsFor(category string) []VariationField {
	if fields, ok := m.categories[normalizeCategory(category)]; ok {
		return fields
	}
	return m.defaults
}

// Normalize keeps only the discriminating fields of v. Absent variations and
// variations without any discriminating field both normalize to the zero value.
func (m Matcher) Normalize(category string, v *Variation) Variation {
	var out Variation
	if v == nil {
		return out
	}
	for _, f := range m.FieldsFor(category) {
		switch f {
		case FieldColor:
			out.Color = v.Color
		case FieldSize:
			out.Size = v.Size
		case FieldRAM:
			out.RAM = v.RAM
		}
	}
	return out
}

// SameLine is the one predicate every cart mutation uses to find a line.
func (m Matcher) SameLine(a, b LineKey) bool {
	if a.ProductRef != b.ProductRef {
		return false
	}
	category := a.Category
	if category == "" {
		category = b.Category
	}
	return m.Normalize(category, a.Variation) == m.Normalize(category, b.Variation)
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
