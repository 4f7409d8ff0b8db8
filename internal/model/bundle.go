// Package model loads the fitted leaf classifier and turns one feature
// vector into a label with a confidence.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	ClassifierFile = "model_svm.json"
	ScalerFile     = "scaler.json"
	LabelsFile     = "label_encoder.json"
)

// Bundle is the immutable trio of artifacts produced by one training run.
// It is safe for concurrent use.
type Bundle struct {
	Scaler     *Scaler
	Classifier Classifier
	Labels     []string
	Dir        string
}

// Prediction is the classifier output for a single patch.
type Prediction struct {
	Index         int
	Label         string
	Confidence    float64
	Probabilities []float64
}

type labelArtifact struct {
	Classes []string `json:"classes"`
}

// Load reads the three artifacts from dir. The classifier is checked first so
// a missing model fails fast with a path in the message.
func Load(dir string) (*Bundle, error) {
	classifierData, err := readArtifact(dir, ClassifierFile)
	if err != nil {
		return nil, err
	}
	scalerData, err := readArtifact(dir, ScalerFile)
	if err != nil {
		return nil, err
	}
	labelData, err := readArtifact(dir, LabelsFile)
	if err != nil {
		return nil, err
	}

	classifier, err := decodeClassifier(classifierData)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ClassifierFile, err)
	}

	scaler, err := decodeScaler(scalerData)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ScalerFile, err)
	}

	var labels labelArtifact
	if err := json.Unmarshal(labelData, &labels); err != nil {
		return nil, fmt.Errorf("load %s: %w", LabelsFile, err)
	}
	if len(labels.Classes) == 0 {
		return nil, fmt.Errorf("load %s: empty label vocabulary", LabelsFile)
	}

	return &Bundle{
		Scaler:     scaler,
		Classifier: classifier,
		Labels:     labels.Classes,
		Dir:        dir,
	}, nil
}

func readArtifact(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Predict normalizes v and returns the most probable label. Ties go to the
// lowest class index.
func (b *Bundle) Predict(v []float64) (Prediction, error) {
	x, err := b.Scaler.Transform(v)
	if err != nil {
		return Prediction{}, err
	}

	probs, err := b.Classifier.PredictProba(x)
	if err != nil {
		return Prediction{}, err
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	if best >= len(b.Labels) {
		return Prediction{}, fmt.Errorf("class index %d has no label (vocabulary has %d)", best, len(b.Labels))
	}

	return Prediction{
		Index:         best,
		Label:         b.Labels[best],
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}
