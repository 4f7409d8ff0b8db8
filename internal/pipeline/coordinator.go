// Package pipeline runs one diagnosis request: decode, standardize, scan the
// patch grid and aggregate the votes.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"leafscan/internal/logger"
	"leafscan/internal/model"
	"leafscan/internal/opencv/bridge"
	"leafscan/internal/opencv/memory"
	"leafscan/internal/voting"

	"fyne.io/fyne/v2"
)

// Service is the diagnosis orchestrator. With a nil bundle it still starts
// and reports itself not ready; every diagnosis then fails with ErrUnavailable.
type Service struct {
	memoryManager *memory.Manager
	logger        logger.Logger
	bundle        *model.Bundle
	scanner       *Scanner
	params        ScanParams
	loader        *imageLoader
	saver         *imageSaver
}

func NewService(log logger.Logger, mem *memory.Manager, bundle *model.Bundle, params ScanParams) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		memoryManager: mem,
		logger:        log,
		bundle:        bundle,
		params:        params,
		loader:        &imageLoader{memoryManager: mem, logger: log},
		saver:         &imageSaver{logger: log},
	}

	if bundle != nil {
		scanner, err := NewScanner(bundle, params, log)
		if err != nil {
			return nil, err
		}
		s.scanner = scanner
	}

	log.Info("DiagnosisService", "initialized", map[string]interface{}{
		"ready":      s.Ready(),
		"resolution": params.Resolution,
		"patch_size": params.PatchSize,
	})
	return s, nil
}

func (s *Service) Ready() bool {
	return s.scanner != nil
}

// Labels returns the label vocabulary in classifier order, or nil when not ready.
func (s *Service) Labels() []string {
	if s.bundle == nil {
		return nil
	}
	return append([]string(nil), s.bundle.Labels...)
}

func (s *Service) Diagnose(ctx context.Context, data []byte, format string) (voting.Result, error) {
	if !s.Ready() {
		return voting.Result{}, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return voting.Result{}, err
	}

	start := time.Now()
	imageData, err := s.loader.LoadFromBytes(data, format)
	if err != nil {
		s.logger.Error("DiagnosisService", err, map[string]interface{}{
			"operation": "load_image",
			"bytes":     len(data),
		})
		return voting.Result{}, err
	}
	defer imageData.Close()

	return s.diagnose(ctx, imageData, start)
}

func (s *Service) DiagnoseReader(ctx context.Context, reader fyne.URIReadCloser) (voting.Result, error) {
	if !s.Ready() {
		return voting.Result{}, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return voting.Result{}, err
	}

	start := time.Now()
	imageData, err := s.loader.LoadFromReader(reader)
	if err != nil {
		s.logger.Error("DiagnosisService", err, map[string]interface{}{
			"operation": "load_image",
			"uri":       reader.URI().String(),
		})
		return voting.Result{}, err
	}
	defer imageData.Close()

	return s.diagnose(ctx, imageData, start)
}

func (s *Service) diagnose(ctx context.Context, imageData *ImageData, start time.Time) (voting.Result, error) {
	if err := ctx.Err(); err != nil {
		return voting.Result{}, err
	}

	std, err := Standardize(s.memoryManager, imageData.Mat, s.params)
	if err != nil {
		return voting.Result{}, fmt.Errorf("standardize: %w", err)
	}
	defer std.Close()

	votes, stats, err := s.scanner.Scan(std)
	if err != nil {
		s.logger.Error("DiagnosisService", err, map[string]interface{}{
			"operation": "scan",
		})
		return voting.Result{}, fmt.Errorf("scan: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return voting.Result{}, err
	}

	result := voting.Aggregate(votes, s.bundle.Labels)

	s.logger.Info("DiagnosisService", "diagnosis completed", map[string]interface{}{
		"width":      imageData.Width,
		"height":     imageData.Height,
		"format":     imageData.Format,
		"votes":      stats.Votes,
		"cells":      stats.Cells,
		"dominant":   result.DominantKey,
		"confidence": result.Confidence,
		"duration":   time.Since(start),
	})

	return result, nil
}

// ForegroundMask decodes data and returns the mask the scanner would use.
// It does not need a loaded model.
func (s *Service) ForegroundMask(ctx context.Context, data []byte, format string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imageData, err := s.loader.LoadFromBytes(data, format)
	if err != nil {
		return nil, err
	}
	defer imageData.Close()

	std, err := Standardize(s.memoryManager, imageData.Mat, s.params)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	defer std.Close()

	return bridge.MatToImage(std.Mask)
}

// SaveImage encodes img to writer; an empty format is taken from the
// writer's URI extension when it has one.
func (s *Service) SaveImage(writer io.Writer, img image.Image, format string) error {
	return s.saver.SaveToWriter(writer, img, format)
}
