package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Classifier produces a probability distribution over class indices for one
// normalized feature vector. Implementations are immutable after decoding.
type Classifier interface {
	Kind() string
	NumClasses() int
	NumFeatures() int
	PredictProba(x *mat.VecDense) ([]float64, error)
}

type decodeFunc func(data []byte) (Classifier, error)

var decoders = map[string]decodeFunc{
	"svc":     decodeSVC,
	"softmax": decodeSoftmax,
}

// Kinds returns the classifier kinds the loader understands.
func Kinds() []string {
	kinds := make([]string, 0, len(decoders))
	for k := range decoders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func decodeClassifier(data []byte) (Classifier, error) {
	var header struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode classifier header: %w", err)
	}

	decode, ok := decoders[header.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown classifier kind %q (known: %v)", header.Kind, Kinds())
	}
	return decode(data)
}

func checkInput(c Classifier, x *mat.VecDense) error {
	if x == nil || x.Len() != c.NumFeatures() {
		n := 0
		if x != nil {
			n = x.Len()
		}
		return fmt.Errorf("%w: %s classifier expects %d features, got %d",
			ErrShapeMismatch, c.Kind(), c.NumFeatures(), n)
	}
	return nil
}
