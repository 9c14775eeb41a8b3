package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"penguinapi/penguin"
)

// Metadata is the companion file written next to the model artifact by the
// training job.
type Metadata struct {
	FeatureColumns []string `json:"feature_columns"`
	SpeciesClasses []string `json:"species_classes"`
	Accuracy       float64  `json:"accuracy"`
	Version        string   `json:"version,omitempty"`
}

func LoadMetadata(path string) (Metadata, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return meta, nil
}

// speciesOrder maps class index to species. Every species must appear
// exactly once.
func (m Metadata) speciesOrder() ([]penguin.Species, error) {
	if len(m.SpeciesClasses) == 0 {
		return nil, errors.New("metadata has no species_classes")
	}
	seen := make(map[penguin.Species]bool, len(m.SpeciesClasses))
	order := make([]penguin.Species, 0, len(m.SpeciesClasses))
	for _, name := range m.SpeciesClasses {
		s, err := penguin.ParseSpecies(name)
		if err != nil {
			return nil, fmt.Errorf("metadata species_classes: %w", err)
		}
		if seen[s] {
			return nil, fmt.Errorf("metadata species_classes: duplicate %s", s)
		}
		seen[s] = true
		order = append(order, s)
	}
	for _, s := range penguin.SpeciesPriority() {
		if !seen[s] {
			return nil, fmt.Errorf("metadata species_classes: missing %s", s)
		}
	}
	return order, nil
}

func (m Metadata) clone() Metadata {
	out := m
	out.FeatureColumns = append([]string(nil), m.FeatureColumns...)
	out.SpeciesClasses = append([]string(nil), m.SpeciesClasses...)
	return out
}
