package pipeline

import (
	"fmt"
	"image"

	"leafscan/internal/opencv/conversion"
	"leafscan/internal/opencv/memory"
	"leafscan/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// StandardizedImage is a square BGR image together with its foreground mask.
// Mask is 255 where leaf tissue was detected and 0 elsewhere.
type StandardizedImage struct {
	Image *safe.Mat
	Mask  *safe.Mat
}

func (s *StandardizedImage) Close() {
	if s == nil {
		return
	}
	if s.Image != nil {
		s.Image.Close()
	}
	if s.Mask != nil {
		s.Mask.Close()
	}
}

// Standardize resizes src to the scan resolution and derives the foreground
// mask: grayscale, Gaussian blur, then an inverse binary Otsu threshold.
func Standardize(mem *memory.Manager, src *safe.Mat, params ScanParams) (*StandardizedImage, error) {
	if err := safe.ValidateMatForOperation(src, "Standardize"); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	bgr, err := conversion.ConvertToBGR(src)
	if err != nil {
		return nil, fmt.Errorf("bgr conversion: %w", err)
	}
	defer bgr.Close()

	resized := gocv.NewMat()
	gocv.Resize(bgr.GetMat(), &resized, image.Pt(params.Resolution, params.Resolution), 0, 0, gocv.InterpolationLinear)
	img, err := mem.Adopt(resized, "standardized_image")
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}

	mask, err := foregroundMask(mem, img, params.BlurKernel)
	if err != nil {
		img.Close()
		return nil, err
	}

	return &StandardizedImage{Image: img, Mask: mask}, nil
}

func foregroundMask(mem *memory.Manager, img *safe.Mat, kernel int) (*safe.Mat, error) {
	gray, err := conversion.ConvertToGrayscale(img)
	if err != nil {
		return nil, fmt.Errorf("gray conversion: %w", err)
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray.GetMat(), &blurred, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.Threshold(blurred, &mask, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	out, err := mem.Adopt(mask, "foreground_mask")
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	return out, nil
}
