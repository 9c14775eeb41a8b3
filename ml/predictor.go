package ml

import "penguinapi/penguin"

// Predictor serves predictions from whatever model the lifecycle holds.
type Predictor struct {
	lifecycle *Lifecycle
}

func NewPredictor(lifecycle *Lifecycle) *Predictor {
	return &Predictor{lifecycle: lifecycle}
}

// Predict returns ErrModelUnavailable unless the model is ready, and an
// *InferenceError if the ready model fails on validated input.
func (p *Predictor) Predict(f penguin.Features) (penguin.Result, error) {
	model, err := p.lifecycle.Model()
	if err != nil {
		return penguin.Result{}, err
	}
	return model.Predict(f)
}
