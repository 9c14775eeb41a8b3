package ml

import (
	"errors"
	"fmt"

	"penguinapi/penguin"
)

type column func(f penguin.Features) float64

func oneHot(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// knownColumns are the columns the training job produces: raw measurements
// plus one-hot encoded sex and island.
var knownColumns = map[string]column{
	"bill_length_mm":    func(f penguin.Features) float64 { return f.BillLengthMM },
	"bill_depth_mm":     func(f penguin.Features) float64 { return f.BillDepthMM },
	"flipper_length_mm": func(f penguin.Features) float64 { return f.FlipperLengthMM },
	"body_mass_g":       func(f penguin.Features) float64 { return f.BodyMassG },
	"year":              func(f penguin.Features) float64 { return float64(f.Year) },
	"sex_female":        func(f penguin.Features) float64 { return oneHot(f.Sex == penguin.Female) },
	"sex_male":          func(f penguin.Features) float64 { return oneHot(f.Sex == penguin.Male) },
	"island_Biscoe":     func(f penguin.Features) float64 { return oneHot(f.Island == penguin.Biscoe) },
	"island_Dream":      func(f penguin.Features) float64 { return oneHot(f.Island == penguin.Dream) },
	"island_Torgersen":  func(f penguin.Features) float64 { return oneHot(f.Island == penguin.Torgersen) },
}

// DefaultFeatureColumns is the column order used by the training job.
func DefaultFeatureColumns() []string {
	return []string{
		"bill_length_mm", "bill_depth_mm", "flipper_length_mm", "body_mass_g", "year",
		"sex_female", "sex_male", "island_Biscoe", "island_Dream", "island_Torgersen",
	}
}

// Encoder turns Features into the vector layout a classifier was trained on.
// Column names are resolved once, so Encode itself cannot fail.
type Encoder struct {
	names   []string
	columns []column
}

func NewEncoder(names []string) (*Encoder, error) {
	if len(names) == 0 {
		return nil, errors.New("no feature columns")
	}
	seen := make(map[string]bool, len(names))
	columns := make([]column, len(names))
	for i, name := range names {
		col, ok := knownColumns[name]
		if !ok {
			return nil, fmt.Errorf("unknown feature column %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate feature column %q", name)
		}
		seen[name] = true
		columns[i] = col
	}
	return &Encoder{names: append([]string(nil), names...), columns: columns}, nil
}

func (e *Encoder) Len() int {
	return len(e.columns)
}

func (e *Encoder) Names() []string {
	return append([]string(nil), e.names...)
}

func (e *Encoder) Encode(f penguin.Features) []float64 {
	vector := make([]float64, len(e.columns))
	for i, col := range e.columns {
		vector[i] = col(f)
	}
	return vector
}
