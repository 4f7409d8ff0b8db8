// Package features turns one square image patch into the fixed-length
// vector the leaf classifier was fitted on.
package features

import (
	"errors"
	"fmt"

	"leafscan/internal/opencv/conversion"
	"leafscan/internal/opencv/safe"

	"gonum.org/v1/gonum/stat"
)

// Length is the number of elements in a Vector.
const Length = 13

// ErrNotComputable means the patch has too little non-zero gray content for
// a co-occurrence matrix. Callers skip the patch.
var ErrNotComputable = errors.New("texture descriptor not computable")

// Vector is ordered as
// [meanR, meanG, meanB, stdR, stdG, stdB, meanH, meanS, meanV,
// contrast, correlation, energy, homogeneity].
type Vector [Length]float64

// Names lists the Vector slots in order.
var Names = [Length]string{
	"mean_r", "mean_g", "mean_b",
	"std_r", "std_g", "std_b",
	"mean_h", "mean_s", "mean_v",
	"contrast", "correlation", "energy", "homogeneity",
}

// Slice returns the vector as a fresh slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Length)
	copy(out, v[:])
	return out
}

// Extract computes the feature vector of a 3 channel BGR patch.
func Extract(patch *safe.Mat) (Vector, error) {
	var v Vector

	if err := safe.ValidateMatForOperation(patch, "Extract"); err != nil {
		return v, err
	}
	if patch.Channels() != 3 {
		return v, fmt.Errorf("patch must have 3 channels, got %d", patch.Channels())
	}

	rgb, err := planes(patch, conversion.ConvertToRGB)
	if err != nil {
		return v, fmt.Errorf("rgb conversion: %w", err)
	}
	hsv, err := planes(patch, conversion.ConvertToHSV)
	if err != nil {
		return v, fmt.Errorf("hsv conversion: %w", err)
	}

	gray, err := conversion.ConvertToGrayscale(patch)
	if err != nil {
		return v, fmt.Errorf("gray conversion: %w", err)
	}
	defer gray.Close()

	grayBytes, err := gray.Bytes()
	if err != nil {
		return v, err
	}

	for c := 0; c < 3; c++ {
		v[c], v[3+c] = stat.PopMeanStdDev(rgb[c], nil)
		v[6+c] = stat.Mean(hsv[c], nil)
	}

	texture, err := Haralick(grayBytes, gray.Cols(), gray.Rows())
	if err != nil {
		return v, err
	}
	v[9] = texture.Contrast
	v[10] = texture.Correlation
	v[11] = texture.Energy
	v[12] = texture.Homogeneity

	return v, nil
}

// planes converts patch with convert and splits the interleaved result into
// one float64 slice per channel.
func planes(patch *safe.Mat, convert func(*safe.Mat) (*safe.Mat, error)) ([3][]float64, error) {
	var out [3][]float64

	converted, err := convert(patch)
	if err != nil {
		return out, err
	}
	defer converted.Close()

	data, err := converted.Bytes()
	if err != nil {
		return out, err
	}

	n := len(data) / 3
	for c := range out {
		out[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		out[0][i] = float64(data[3*i])
		out[1][i] = float64(data[3*i+1])
		out[2][i] = float64(data[3*i+2])
	}
	return out, nil
}
