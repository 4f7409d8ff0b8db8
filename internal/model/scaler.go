package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Scaler is the affine normalizer fitted on the training features:
// (x - mean) / scale.
type Scaler struct {
	mean  *mat.VecDense
	scale *mat.VecDense
}

type scalerArtifact struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) == 0 || len(mean) != len(scale) {
		return nil, fmt.Errorf("%w: scaler mean has %d values, scale has %d",
			ErrShapeMismatch, len(mean), len(scale))
	}

	s := make([]float64, len(scale))
	for i, v := range scale {
		// A constant training feature is stored with zero scale.
		if v == 0 {
			v = 1
		}
		s[i] = v
	}

	m := make([]float64, len(mean))
	copy(m, mean)

	return &Scaler{
		mean:  mat.NewVecDense(len(m), m),
		scale: mat.NewVecDense(len(s), s),
	}, nil
}

func decodeScaler(data []byte) (*Scaler, error) {
	var a scalerArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return NewScaler(a.Mean, a.Scale)
}

// Len returns the number of features the scaler was fitted on.
func (s *Scaler) Len() int {
	return s.mean.Len()
}

// Transform returns a new normalized vector; x is not modified.
func (s *Scaler) Transform(x []float64) (*mat.VecDense, error) {
	if len(x) != s.Len() {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d",
			ErrShapeMismatch, s.Len(), len(x))
	}

	out := mat.NewVecDense(len(x), nil)
	out.SubVec(mat.NewVecDense(len(x), append([]float64(nil), x...)), s.mean)
	out.DivElemVec(out, s.scale)
	return out, nil
}
