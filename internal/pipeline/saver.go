package pipeline

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"leafscan/internal/logger"

	"fyne.io/fyne/v2"
)

type imageSaver struct {
	logger logger.Logger
}

func (s *imageSaver) SaveToWriter(writer io.Writer, img image.Image, format string) error {
	if img == nil {
		return fmt.Errorf("no image to save")
	}

	saveFormat := strings.ToLower(strings.TrimPrefix(format, "."))
	if saveFormat == "" {
		if uriWriter, ok := writer.(fyne.URIWriteCloser); ok {
			saveFormat = strings.TrimPrefix(strings.ToLower(uriWriter.URI().Extension()), ".")
		}
	}

	var err error
	switch saveFormat {
	case "jpg", "jpeg":
		saveFormat = "jpeg"
		err = jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	case "", "png":
		saveFormat = "png"
		err = png.Encode(writer, img)
	default:
		s.logger.Warning("ImageSaver", "format not supported, using PNG", map[string]interface{}{
			"requested_format": strings.ToUpper(saveFormat),
		})
		saveFormat = "png"
		err = png.Encode(writer, img)
	}

	if err != nil {
		s.logger.Error("ImageSaver", err, map[string]interface{}{
			"format": saveFormat,
		})
		return err
	}

	s.logger.Debug("ImageSaver", "image saved", map[string]interface{}{
		"format": saveFormat,
	})
	return nil
}
