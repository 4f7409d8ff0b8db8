package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"leafscan/internal/logger"
	"leafscan/internal/opencv/bridge"
	"leafscan/internal/opencv/memory"
	"leafscan/internal/opencv/safe"

	"fyne.io/fyne/v2"
	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageData is a decoded image owned by one request.
type ImageData struct {
	Mat      *safe.Mat
	Width    int
	Height   int
	Channels int
	Format   string
	URI      fyne.URI
}

func (d *ImageData) Close() {
	if d != nil && d.Mat != nil {
		d.Mat.Close()
	}
}

type imageLoader struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func (l *imageLoader) LoadFromReader(reader fyne.URIReadCloser) (*ImageData, error) {
	uri := reader.URI()

	data, err := io.ReadAll(bufio.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	imageData, err := l.LoadFromBytes(data, strings.ToLower(uri.Extension()))
	if err != nil {
		return nil, err
	}
	imageData.URI = uri
	return imageData, nil
}

// LoadFromBytes decodes with OpenCV first and falls back to the Go decoders,
// which also cover webp and honour EXIF orientation.
func (l *imageLoader) LoadFromBytes(data []byte, format string) (*ImageData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrImageUnreadable)
	}

	mat, err := l.decodeOpenCV(data)
	decoder := "opencv"
	stdFormat := ""
	if errors.Is(err, memory.ErrBudgetExceeded) {
		return nil, err
	}
	if err != nil {
		l.logger.Debug("ImageLoader", "opencv decode failed, trying Go decoders", map[string]interface{}{
			"error": err.Error(),
		})

		mat, stdFormat, err = l.decodeGo(data)
		decoder = "go"
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
		}
	}

	imageData := &ImageData{
		Mat:      mat,
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Format:   determineActualFormat(format, stdFormat),
	}

	l.logger.Debug("ImageLoader", "image loaded", map[string]interface{}{
		"width":    imageData.Width,
		"height":   imageData.Height,
		"channels": imageData.Channels,
		"format":   imageData.Format,
		"decoder":  decoder,
	})

	return imageData, nil
}

func (l *imageLoader) decodeOpenCV(data []byte) (*safe.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return nil, err
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("opencv returned an empty image")
	}
	return l.memoryManager.Adopt(mat, "loaded_image")
}

func (l *imageLoader) decodeGo(data []byte) (*safe.Mat, string, error) {
	_, stdFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", err
	}

	mat, err := bridge.ImageToMatWithTracker(img, l.memoryManager, "loaded_image")
	if err != nil {
		return nil, "", err
	}
	return mat, stdFormat, nil
}

func determineActualFormat(extension, stdLibFormat string) string {
	switch strings.TrimPrefix(strings.ToLower(extension), ".") {
	case "tiff", "tif":
		return "tiff"
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "bmp":
		return "bmp"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		if stdLibFormat != "" {
			return stdLibFormat
		}
		return "unknown"
	}
}
