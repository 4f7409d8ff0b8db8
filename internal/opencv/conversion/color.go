package conversion

import (
	"fmt"

	"leafscan/internal/opencv/safe"

	"gocv.io/x/gocv"
)

func CvtColorSafe(src *safe.Mat, dst *safe.Mat, code gocv.ColorConversionCode) error {
	if err := safe.ValidateColorConversion(src, code); err != nil {
		return fmt.Errorf("color conversion validation failed: %w", err)
	}

	if err := safe.ValidateMatForOperation(dst, "CvtColor destination"); err != nil {
		return fmt.Errorf("destination mat validation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()

	gocv.CvtColor(srcMat, &dstMat, code)

	return nil
}

func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "ConvertToGrayscale"); err != nil {
		return nil, err
	}

	switch src.Channels() {
	case 1:
		return src.Clone()
	case 3:
		return convert(src, gocv.MatTypeCV8UC1, gocv.ColorBGRToGray)
	case 4:
		bgr, err := ConvertToBGR(src)
		if err != nil {
			return nil, err
		}
		defer bgr.Close()
		return convert(bgr, gocv.MatTypeCV8UC1, gocv.ColorBGRToGray)
	default:
		return nil, fmt.Errorf("unsupported channel count for grayscale conversion: %d", src.Channels())
	}
}

func ConvertToBGR(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "ConvertToBGR"); err != nil {
		return nil, err
	}

	switch src.Channels() {
	case 3:
		return src.Clone()
	case 1:
		return convert(src, gocv.MatTypeCV8UC3, gocv.ColorGrayToBGR)
	case 4:
		return convert(src, gocv.MatTypeCV8UC3, gocv.ColorBGRAToBGR)
	default:
		return nil, fmt.Errorf("unsupported channel count for BGR conversion: %d", src.Channels())
	}
}

// ConvertToRGB reorders a BGR Mat into RGB channel order.
func ConvertToRGB(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "ConvertToRGB"); err != nil {
		return nil, err
	}
	return convert(src, gocv.MatTypeCV8UC3, gocv.ColorBGRToRGB)
}

// ConvertToHSV converts a BGR Mat to 8-bit HSV (H in 0..180, S and V in 0..255).
func ConvertToHSV(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "ConvertToHSV"); err != nil {
		return nil, err
	}
	return convert(src, gocv.MatTypeCV8UC3, gocv.ColorBGRToHSV)
}

func convert(src *safe.Mat, dstType gocv.MatType, code gocv.ColorConversionCode) (*safe.Mat, error) {
	dst, err := safe.NewMat(src.Rows(), src.Cols(), dstType)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	if err := CvtColorSafe(src, dst, code); err != nil {
		dst.Close()
		return nil, fmt.Errorf("color conversion failed: %w", err)
	}

	return dst, nil
}
