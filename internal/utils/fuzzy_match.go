package utils

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// FuzzyThreshold is the similarity a variant must exceed to count as a match.
const FuzzyThreshold = 0.70

//go:embed locations.yaml
var defaultLocations []byte

// LocationKind says which filter key a canonical location fills
type LocationKind string

const (
	KindState LocationKind = "state"
	KindCity  LocationKind = "city"
)

// LocationAlias maps a canonical location to its known variants
type LocationAlias struct {
	Name      string       `yaml:"name"`
	Kind      LocationKind `yaml:"kind"`
	Variants  []string     `yaml:"variants"`
	Canonical string       `yaml:"-"` // title-cased Name, e.g. "Tamil Nadu"
}

// LocationTable is an ordered, read-only alias table
type LocationTable struct {
	entries []LocationAlias
}

type locationFile struct {
	Locations []LocationAlias `yaml:"locations"`
}

// DefaultLocationTable returns the built-in alias table
func DefaultLocationTable() (*LocationTable, error) {
	return ParseLocationTable(defaultLocations)
}

// LoadLocationTable reads an alias table from path, or returns the built-in
// table when path is empty.
func LoadLocationTable(path string) (*LocationTable, error) {
	if path == "" {
		return DefaultLocationTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file: %w", err)
	}
	return ParseLocationTable(data)
}

// ParseLocationTable decodes and validates a YAML alias table
func ParseLocationTable(data []byte) (*LocationTable, error) {
	var file locationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse locations: %w", err)
	}
	if len(file.Locations) == 0 {
		return nil, fmt.Errorf("locations table is empty")
	}

	title := cases.Title(language.English)
	entries := make([]LocationAlias, 0, len(file.Locations))
	for i, loc := range file.Locations {
		name := strings.ToLower(strings.TrimSpace(loc.Name))
		if name == "" {
			return nil, fmt.Errorf("location %d has no name", i)
		}
		if loc.Kind != KindState && loc.Kind != KindCity {
			return nil, fmt.Errorf("location %q has invalid kind %q", name, loc.Kind)
		}
		variants := make([]string, 0, len(loc.Variants))
		for _, v := range loc.Variants {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				variants = append(variants, v)
			}
		}
		if len(variants) == 0 {
			return nil, fmt.Errorf("location %q has no variants", name)
		}
		entries = append(entries, LocationAlias{
			Name:      name,
			Kind:      loc.Kind,
			Variants:  variants,
			Canonical: title.String(name),
		})
	}
	return &LocationTable{entries: entries}, nil
}

// Entries returns a copy of the table in order
func (t *LocationTable) Entries() []LocationAlias {
	out := make([]LocationAlias, len(t.entries))
	copy(out, t.entries)
	return out
}

// FindExact returns the first location with a variant contained in text.
// text must already be lowercase.
func (t *LocationTable) FindExact(text string) (LocationAlias, bool) {
	for _, loc := range t.entries {
		if ContainsAny(text, loc.Variants) {
			return loc, true
		}
	}
	return LocationAlias{}, false
}

// FuzzyHit describes which word resolved to which location
type FuzzyHit struct {
	Location LocationAlias
	Word     string
	Variant  string
}

// FindFuzzy tries each location in order against every word and returns the
// first location any word fuzzy-matches.
func (t *LocationTable) FindFuzzy(words []string) (FuzzyHit, bool) {
	for _, loc := range t.entries {
		for _, w := range words {
			if variant, ok := Match(w, loc.Variants); ok {
				return FuzzyHit{Location: loc, Word: w, Variant: variant}, true
			}
		}
	}
	return FuzzyHit{}, false
}

// Match returns the variant most similar to word, provided its similarity
// exceeds FuzzyThreshold. Similarity counts equal characters at equal
// positions over the shorter string, divided by the longer length. Ties keep
// the earliest variant.
func Match(word string, variants []string) (string, bool) {
	w := []rune(strings.ToLower(word))
	if len(w) == 0 {
		return "", false
	}

	best := ""
	maxSim := 0.0
	for _, variant := range variants {
		v := []rune(strings.ToLower(variant))
		if len(v) == 0 {
			continue
		}
		sim := Similarity(w, v)
		if sim > maxSim && sim > FuzzyThreshold {
			maxSim = sim
			best = variant
		}
	}
	return best, best != ""
}

// Similarity is the positional character overlap of a and b
func Similarity(a, b []rune) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	equal := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(longest)
}

// ContainsAny reports whether text contains any of the substrings
func ContainsAny(text string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// VariantGroup names a canonical value and the phrases that select it
type VariantGroup struct {
	Value    string
	Variants []string
}

// FirstGroup returns the value of the first group with a variant contained in
// text.
func FirstGroup(text string, groups []VariantGroup) (string, bool) {
	for _, g := range groups {
		if ContainsAny(text, g.Variants) {
			return g.Value, true
		}
	}
	return "", false
}
