package pipeline

import (
	"errors"
	"fmt"
	"image"

	"leafscan/internal/features"
	"leafscan/internal/logger"
	"leafscan/internal/model"
	"leafscan/internal/opencv/safe"
	"leafscan/internal/voting"

	"gocv.io/x/gocv"
)

// ScanStats counts what happened to each grid cell of one scan.
type ScanStats struct {
	Cells         int
	Undersized    int
	LowCoverage   int
	NotComputable int
	Votes         int
}

// Scanner classifies every foreground patch on a fixed, non-overlapping grid.
// It holds no per-request state and can be shared.
type Scanner struct {
	bundle *model.Bundle
	params ScanParams
	logger logger.Logger
}

func NewScanner(bundle *model.Bundle, params ScanParams, log logger.Logger) (*Scanner, error) {
	if bundle == nil {
		return nil, ErrUnavailable
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{bundle: bundle, params: params, logger: log}, nil
}

func (s *Scanner) Scan(img *StandardizedImage) ([]voting.Vote, ScanStats, error) {
	var stats ScanStats

	if img == nil {
		return nil, stats, fmt.Errorf("no standardized image")
	}
	if err := safe.ValidateMatForOperation(img.Image, "Scan"); err != nil {
		return nil, stats, err
	}
	if err := safe.ValidateMatForOperation(img.Mask, "Scan mask"); err != nil {
		return nil, stats, err
	}

	size := s.params.PatchSize
	rows, cols := img.Image.Rows(), img.Image.Cols()
	var votes []voting.Vote

	for y := 0; y < rows; y += size {
		for x := 0; x < cols; x += size {
			stats.Cells++

			vote, ok, err := s.scanCell(img, image.Rect(x, y, x+size, y+size), &stats)
			if err != nil {
				return nil, stats, fmt.Errorf("patch at (%d,%d): %w", x, y, err)
			}
			if ok {
				votes = append(votes, vote)
			}
		}
	}
	stats.Votes = len(votes)

	s.logger.Debug("PatchScanner", "scan completed", map[string]interface{}{
		"cells":          stats.Cells,
		"undersized":     stats.Undersized,
		"low_coverage":   stats.LowCoverage,
		"not_computable": stats.NotComputable,
		"votes":          stats.Votes,
	})

	return votes, stats, nil
}

func (s *Scanner) scanCell(img *StandardizedImage, rect image.Rectangle, stats *ScanStats) (voting.Vote, bool, error) {
	size := s.params.PatchSize

	mask, err := img.Mask.Crop(rect, "patch_mask")
	if err != nil {
		return voting.Vote{}, false, err
	}
	defer mask.Close()

	if mask.Rows() < size || mask.Cols() < size {
		stats.Undersized++
		return voting.Vote{}, false, nil
	}

	if float64(gocv.CountNonZero(mask.GetMat())) < s.params.minForeground() {
		stats.LowCoverage++
		return voting.Vote{}, false, nil
	}

	patch, err := img.Image.Crop(rect, "patch")
	if err != nil {
		return voting.Vote{}, false, err
	}
	defer patch.Close()

	vec, err := features.Extract(patch)
	if errors.Is(err, features.ErrNotComputable) {
		stats.NotComputable++
		return voting.Vote{}, false, nil
	}
	if err != nil {
		return voting.Vote{}, false, err
	}

	pred, err := s.bundle.Predict(vec.Slice())
	if err != nil {
		return voting.Vote{}, false, err
	}

	return voting.Vote{Label: pred.Label, Confidence: pred.Confidence}, true, nil
}
