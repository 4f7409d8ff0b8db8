package model

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Softmax is a multinomial linear classifier: softmax(W x + b).
type Softmax struct {
	weights *mat.Dense
	bias    *mat.VecDense
}

type softmaxArtifact struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func NewSoftmax(weights [][]float64, bias []float64) (*Softmax, error) {
	rows, cols, err := denseShape(weights)
	if err != nil {
		return nil, fmt.Errorf("softmax weights: %w", err)
	}
	if rows < 2 {
		return nil, fmt.Errorf("%w: softmax needs at least 2 classes, got %d", ErrShapeMismatch, rows)
	}
	if len(bias) != rows {
		return nil, fmt.Errorf("%w: softmax has %d classes but %d biases", ErrShapeMismatch, rows, len(bias))
	}

	return &Softmax{
		weights: mat.NewDense(rows, cols, flatten(weights)),
		bias:    mat.NewVecDense(rows, append([]float64(nil), bias...)),
	}, nil
}

func decodeSoftmax(data []byte) (Classifier, error) {
	var a softmaxArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode softmax classifier: %w", err)
	}
	return NewSoftmax(a.Weights, a.Bias)
}

func (s *Softmax) Kind() string { return "softmax" }

func (s *Softmax) NumClasses() int {
	r, _ := s.weights.Dims()
	return r
}

func (s *Softmax) NumFeatures() int {
	_, c := s.weights.Dims()
	return c
}

func (s *Softmax) PredictProba(x *mat.VecDense) ([]float64, error) {
	if err := checkInput(s, x); err != nil {
		return nil, err
	}

	z := mat.NewVecDense(s.NumClasses(), nil)
	z.MulVec(s.weights, x)
	z.AddVec(z, s.bias)

	logits := z.RawVector().Data
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}

	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

func denseShape(rows [][]float64) (int, int, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, 0, fmt.Errorf("%w: empty matrix", ErrShapeMismatch)
	}
	cols := len(rows[0])
	for i, row := range rows {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), cols)
		}
	}
	return len(rows), cols, nil
}

func flatten(rows [][]float64) []float64 {
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}
