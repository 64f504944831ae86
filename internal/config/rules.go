package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fjod/storefront/internal/domain"
	"gopkg.in/yaml.v3"
)

type variationRules struct {
	Default    []string            `yaml:"default"`
	Categories map[string][]string `yaml:"categories"`
}

// LoadVariationRules builds a matcher from a rules file. An empty path or a
// file with no YAML document yields domain.DefaultMatcher.
func LoadVariationRules(path string) (domain.Matcher, error) {
	if path == "" {
		return domain.DefaultMatcher, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Matcher{}, fmt.Errorf("failed to read variation rules: %w", err)
	}
	return ParseVariationRules(data)
}

func ParseVariationRules(data []byte) (domain.Matcher, error) {
	var rules variationRules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); errors.Is(err, io.EOF) {
		return domain.DefaultMatcher, nil
	} else if err != nil {
		return domain.Matcher{}, fmt.Errorf("failed to parse variation rules: %w", err)
	}

	defaults := domain.DefaultMatcher.FieldsFor("")
	if rules.Default != nil {
		var err error
		if defaults, err = parseFields(rules.Default); err != nil {
			return domain.Matcher{}, fmt.Errorf("default: %w", err)
		}
	}

	categories := make(map[string][]domain.VariationField, len(rules.Categories))
	for category, names := range rules.Categories {
		fields, err := parseFields(names)
		if err != nil {
			return domain.Matcher{}, fmt.Errorf("category %s: %w", category, err)
		}
		categories[category] = fields
	}
	return domain.NewMatcher(defaults, categories), nil
}

func parseFields(names []string) ([]domain.VariationField, error) {
	fields := make([]domain.VariationField, 0, len(names))
	for _, name := range names {
		f, err := domain.ParseVariationField(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
