// Package penguin holds the request and response types of the prediction
// service and the validator that turns raw client input into Features.
package penguin

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Species string

const (
	Adelie    Species = "Adelie"
	Chinstrap Species = "Chinstrap"
	Gentoo    Species = "Gentoo"
)

// SpeciesPriority is the tie-break order used when two species share the
// highest probability: earlier entries win.
func SpeciesPriority() []Species {
	return []Species{Adelie, Chinstrap, Gentoo}
}

type Sex string

const (
	Female Sex = "female"
	Male   Sex = "male"
)

type Island string

const (
	Biscoe    Island = "Biscoe"
	Dream     Island = "Dream"
	Torgersen Island = "Torgersen"
)

var (
	allSexes   = []Sex{Male, Female}
	allIslands = []Island{Torgersen, Biscoe, Dream}
)

// Features is a validated set of penguin measurements. Values of this type
// only come out of Validate, so every field is known to be in range.
type Features struct {
	BillLengthMM    float64 `json:"bill_length_mm"`
	BillDepthMM     float64 `json:"bill_depth_mm"`
	FlipperLengthMM float64 `json:"flipper_length_mm"`
	BodyMassG       float64 `json:"body_mass_g"`
	Year            int     `json:"year"`
	Sex             Sex     `json:"sex"`
	Island          Island  `json:"island"`
}

// Result is the outcome of a single prediction.
type Result struct {
	Species       Species             `json:"species"`
	Confidence    float64             `json:"confidence"`
	Probabilities map[Species]float64 `json:"probabilities"`
	ModelVersion  string              `json:"model_version,omitempty"`
}

func ParseSpecies(s string) (Species, error) {
	for _, sp := range SpeciesPriority() {
		if foldEqual(s, string(sp)) {
			return sp, nil
		}
	}
	return "", fmt.Errorf("unknown species %q", s)
}

func ParseSex(s string) (Sex, error) {
	for _, sex := range allSexes {
		if foldEqual(s, string(sex)) {
			return sex, nil
		}
	}
	return "", fmt.Errorf("unknown sex %q", s)
}

func ParseIsland(s string) (Island, error) {
	for _, island := range allIslands {
		if foldEqual(s, string(island)) {
			return island, nil
		}
	}
	return "", fmt.Errorf("unknown island %q", s)
}

// foldEqual compares two strings after lowercasing both. Full case folding
// is avoided because it maps letters such as ſ onto s. A Caser keeps
// internal state, so a fresh one is built for every call.
func foldEqual(a, b string) bool {
	lower := cases.Lower(language.Und)
	return lower.String(a) == lower.String(b)
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
