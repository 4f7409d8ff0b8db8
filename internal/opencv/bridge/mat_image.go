package bridge

import (
	"fmt"
	"image"

	"leafscan/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// MatToImage converts a 1 or 3 channel Mat (BGR order) into a Go image.
func MatToImage(mat *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(mat, "MatToImage"); err != nil {
		return nil, err
	}

	rows := mat.Rows()
	cols := mat.Cols()

	data, err := mat.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read Mat data: %w", err)
	}

	switch mat.Channels() {
	case 1:
		img := image.NewGray(image.Rect(0, 0, cols, rows))
		copy(img.Pix, data)
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for i, j := 0, 0; i+2 < len(data); i, j = i+3, j+4 {
			img.Pix[j] = data[i+2]
			img.Pix[j+1] = data[i+1]
			img.Pix[j+2] = data[i]
			img.Pix[j+3] = 255
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported number of channels: %d", mat.Channels())
	}
}

// ImageToMat converts any Go image into a 3 channel BGR Mat. Alpha is dropped.
func ImageToMat(img image.Image) (*safe.Mat, error) {
	return ImageToMatWithTracker(img, nil, "")
}

func ImageToMatWithTracker(img image.Image, memTracker safe.MemoryTracker, tag string) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image has zero dimensions: %dx%d", width, height)
	}

	data := make([]byte, 0, width*height*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Convert from 16-bit to 8-bit
			data = append(data, uint8(b>>8), uint8(g>>8), uint8(r>>8))
		}
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return nil, fmt.Errorf("failed to build Mat from pixels: %w", err)
	}
	defer mat.Close()

	return safe.NewMatFromMatWithTracker(mat, memTracker, tag)
}
