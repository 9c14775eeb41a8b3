package ml

import (
	"errors"
	"fmt"
	"math"

	"penguinapi/penguin"
)

// ErrModelUnavailable is returned by the predictor whenever the model is not
// in the ready state.
var ErrModelUnavailable = errors.New("model unavailable")

// TieTolerance is the absolute probability difference under which two
// species are considered tied. Ties go to the earlier entry of
// penguin.SpeciesPriority.
const TieTolerance = 1e-9

// Classifier scores an encoded feature vector into one probability per class.
type Classifier interface {
	NumFeatures() int
	NumClasses() int
	PredictProba(features []float64) ([]float64, error)
}

// InferenceError wraps a failure on input that already passed validation.
// It means the encoder and the classifier disagree and is never expected.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Model is an immutable classifier bundled with the metadata needed to feed
// it. It is safe for concurrent use.
type Model struct {
	classifier Classifier
	encoder    *Encoder
	species    []penguin.Species
	meta       Metadata
	version    string
}

// NewModel checks that meta and classifier agree on the feature and class
// layout. After this check encoding a validated input cannot fail.
func NewModel(classifier Classifier, meta Metadata, version string) (*Model, error) {
	if classifier == nil {
		return nil, errors.New("classifier is nil")
	}
	encoder, err := NewEncoder(meta.FeatureColumns)
	if err != nil {
		return nil, err
	}
	if encoder.Len() != classifier.NumFeatures() {
		return nil, fmt.Errorf("metadata lists %d feature columns, classifier expects %d",
			encoder.Len(), classifier.NumFeatures())
	}
	species, err := meta.speciesOrder()
	if err != nil {
		return nil, err
	}
	if len(species) != classifier.NumClasses() {
		return nil, fmt.Errorf("metadata lists %d species, classifier has %d classes",
			len(species), classifier.NumClasses())
	}
	if version == "" {
		version = meta.Version
	}
	return &Model{
		classifier: classifier,
		encoder:    encoder,
		species:    species,
		meta:       meta,
		version:    version,
	}, nil
}

func (m *Model) Version() string {
	return m.version
}

func (m *Model) Metadata() Metadata {
	return m.meta.clone()
}

// Predict encodes f, runs the classifier and picks the most probable species.
func (m *Model) Predict(f penguin.Features) (penguin.Result, error) {
	proba, err := m.classifier.PredictProba(m.encoder.Encode(f))
	if err != nil {
		return penguin.Result{}, &InferenceError{Err: err}
	}
	if len(proba) != len(m.species) {
		return penguin.Result{}, &InferenceError{
			Err: fmt.Errorf("classifier returned %d probabilities, want %d", len(proba), len(m.species)),
		}
	}

	probs := make(map[penguin.Species]float64, len(m.species))
	for i, p := range proba {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return penguin.Result{}, &InferenceError{
				Err: fmt.Errorf("probability %v for %s outside [0,1]", p, m.species[i]),
			}
		}
		probs[m.species[i]] = p
	}

	species, confidence := selectSpecies(probs)
	return penguin.Result{
		Species:       species,
		Confidence:    confidence,
		Probabilities: probs,
		ModelVersion:  m.version,
	}, nil
}

// selectSpecies walks species in priority order; a later species only
// replaces the current best when it is larger by more than TieTolerance.
func selectSpecies(probs map[penguin.Species]float64) (penguin.Species, float64) {
	var best penguin.Species
	bestP := math.Inf(-1)
	for _, s := range penguin.SpeciesPriority() {
		p, ok := probs[s]
		if !ok {
			continue
		}
		if best == "" || p > bestP+TieTolerance {
			best, bestP = s, p
		}
	}
	return best, bestP
}
