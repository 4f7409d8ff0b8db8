package model

import "errors"

var (
	// ErrArtifactMissing is returned by Load when a required artifact file is absent.
	ErrArtifactMissing = errors.New("model artifact missing")

	ErrShapeMismatch = errors.New("feature shape mismatch")
)
