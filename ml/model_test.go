package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penguinapi/penguin"
)

type fakeClassifier struct {
	features int
	proba    []float64
	err      error
}

func (f *fakeClassifier) NumFeatures() int { return f.features }
func (f *fakeClassifier) NumClasses() int  { return 3 }
func (f *fakeClassifier) PredictProba(features []float64) ([]float64, error) {
	return f.proba, f.err
}

func testMetadata() Metadata {
	return Metadata{
		FeatureColumns: DefaultFeatureColumns(),
		SpeciesClasses: []string{"Adelie", "Chinstrap", "Gentoo"},
		Accuracy:       0.98,
	}
}

func referencePenguin() penguin.Features {
	return penguin.Features{
		BillLengthMM:    39.1,
		BillDepthMM:     18.7,
		FlipperLengthMM: 181,
		BodyMassG:       3750,
		Year:            2007,
		Sex:             penguin.Male,
		Island:          penguin.Torgersen,
	}
}

func assertConsistent(t *testing.T, r penguin.Result) {
	t.Helper()
	require.Len(t, r.Probabilities, 3)
	var sum, maxP float64
	for _, p := range r.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
		maxP = math.Max(maxP, p)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, maxP, r.Confidence, 1e-6)
	assert.Equal(t, r.Probabilities[r.Species], r.Confidence)
}

func TestLoadModelReferenceScenario(t *testing.T) {
	model, err := LoadModel(fixtureModel, fixtureInfo)
	require.NoError(t, err)
	assert.Equal(t, "penguins-2024.06.1", model.Version())

	r, err := model.Predict(referencePenguin())
	require.NoError(t, err)
	assert.Equal(t, penguin.Adelie, r.Species)
	assert.Equal(t, "penguins-2024.06.1", r.ModelVersion)
	assertConsistent(t, r)
}

func TestLoadModelAllSpecies(t *testing.T) {
	model, err := LoadModel(fixtureModel, fixtureInfo)
	require.NoError(t, err)

	cases := []struct {
		features penguin.Features
		want     penguin.Species
	}{
		{referencePenguin(), penguin.Adelie},
		{penguin.Features{BillLengthMM: 47.5, BillDepthMM: 14.8, FlipperLengthMM: 215, BodyMassG: 5500, Year: 2008, Sex: penguin.Female, Island: penguin.Biscoe}, penguin.Gentoo},
		{penguin.Features{BillLengthMM: 49.5, BillDepthMM: 19.0, FlipperLengthMM: 198, BodyMassG: 3800, Year: 2009, Sex: penguin.Male, Island: penguin.Dream}, penguin.Chinstrap},
	}
	for _, tc := range cases {
		r, err := model.Predict(tc.features)
		require.NoError(t, err)
		assert.Equal(t, tc.want, r.Species)
		assertConsistent(t, r)
	}
}

func TestPredictConsistentAcrossRanges(t *testing.T) {
	model, err := LoadModel(fixtureModel, fixtureInfo)
	require.NoError(t, err)

	f := referencePenguin()
	for bill := 30.0; bill <= 65; bill += 2.5 {
		for mass := 2500.0; mass <= 6500; mass += 500 {
			for _, island := range []penguin.Island{penguin.Biscoe, penguin.Dream, penguin.Torgersen} {
				f.BillLengthMM, f.BodyMassG, f.Island = bill, mass, island
				r, err := model.Predict(f)
				require.NoError(t, err)
				assertConsistent(t, r)
			}
		}
	}
}

func TestLoadModelVersionFallsBackToDigest(t *testing.T) {
	meta := testMetadata()
	v := artifactVersion(meta, []byte("artifact"))
	assert.Len(t, v, 12)

	meta.Version = "v7"
	assert.Equal(t, "v7", artifactVersion(meta, []byte("artifact")))
}

func TestTieBreakUsesSpeciesPriority(t *testing.T) {
	third := 1.0 / 3
	cases := []struct {
		name  string
		proba []float64 // Adelie, Chinstrap, Gentoo
		want  penguin.Species
	}{
		{"three way", []float64{third, third, third}, penguin.Adelie},
		{"chinstrap gentoo", []float64{0.2, 0.4, 0.4}, penguin.Chinstrap},
		{"adelie gentoo", []float64{0.45, 0.1, 0.45}, penguin.Adelie},
		{"within tolerance", []float64{0.5 - TieTolerance/4, 0, 0.5 + TieTolerance/4}, penguin.Adelie},
		{"beyond tolerance", []float64{0.5 - TieTolerance, 0, 0.5 + TieTolerance}, penguin.Gentoo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := NewModel(&fakeClassifier{features: 10, proba: tc.proba}, testMetadata(), "test")
			require.NoError(t, err)

			r, err := model.Predict(referencePenguin())
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.Species)
			assert.Equal(t, r.Probabilities[tc.want], r.Confidence)
		})
	}
}

func TestSpeciesOrderFollowsMetadata(t *testing.T) {
	meta := testMetadata()
	meta.SpeciesClasses = []string{"Gentoo", "Adelie", "Chinstrap"}
	model, err := NewModel(&fakeClassifier{features: 10, proba: []float64{0.7, 0.2, 0.1}}, meta, "test")
	require.NoError(t, err)

	r, err := model.Predict(referencePenguin())
	require.NoError(t, err)
	assert.Equal(t, penguin.Gentoo, r.Species)
	assert.Equal(t, 0.2, r.Probabilities[penguin.Adelie])
}

func TestNewModelRejectsInconsistentMetadata(t *testing.T) {
	cases := map[string]func(m *Metadata){
		"unknown column":   func(m *Metadata) { m.FeatureColumns[0] = "tail_length_mm" },
		"duplicate column": func(m *Metadata) { m.FeatureColumns[1] = m.FeatureColumns[0] },
		"column count":     func(m *Metadata) { m.FeatureColumns = m.FeatureColumns[:9] },
		"unknown species":  func(m *Metadata) { m.SpeciesClasses[2] = "Emperor" },
		"dup species":      func(m *Metadata) { m.SpeciesClasses[2] = "Adelie" },
		"missing species":  func(m *Metadata) { m.SpeciesClasses = m.SpeciesClasses[:2] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			meta := testMetadata()
			mutate(&meta)
			_, err := NewModel(&fakeClassifier{features: 10}, meta, "")
			assert.Error(t, err)
		})
	}
}

func TestPredictWrapsClassifierFailures(t *testing.T) {
	cases := map[string]*fakeClassifier{
		"error":  {features: 10, err: errors.New("boom")},
		"length": {features: 10, proba: []float64{1}},
		"nan":    {features: 10, proba: []float64{math.NaN(), 0.5, 0.5}},
		"range":  {features: 10, proba: []float64{1.5, -0.25, -0.25}},
	}
	for name, clf := range cases {
		t.Run(name, func(t *testing.T) {
			model, err := NewModel(clf, testMetadata(), "test")
			require.NoError(t, err)

			_, err = model.Predict(referencePenguin())
			var inferErr *InferenceError
			assert.True(t, errors.As(err, &inferErr))
		})
	}
}

func TestEncoderFollowsColumnOrder(t *testing.T) {
	enc, err := NewEncoder(DefaultFeatureColumns())
	require.NoError(t, err)
	assert.Equal(t, referenceVector, enc.Encode(referencePenguin()))

	enc, err = NewEncoder([]string{"island_Dream", "sex_female", "year"})
	require.NoError(t, err)
	f := referencePenguin()
	f.Island, f.Sex = penguin.Dream, penguin.Female
	assert.Equal(t, []float64{1, 1, 2007}, enc.Encode(f))
}
