// Package archive stores uploaded leaf photos in a primary directory and
// copies them to any number of mirror directories.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leafscan/internal/logger"
)

const defaultExtension = ".jpg"

type Archive struct {
	primary string
	mirrors []string
	logger  logger.Logger
	now     func() time.Time
}

// New creates every directory up front.
func New(log logger.Logger, primary string, mirrors []string) (*Archive, error) {
	if primary == "" {
		return nil, fmt.Errorf("primary archive directory is empty")
	}

	for _, dir := range append([]string{primary}, mirrors...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
		}
	}

	return &Archive{
		primary: primary,
		mirrors: append([]string(nil), mirrors...),
		logger:  log,
		now:     time.Now,
	}, nil
}

// FileName builds the stored name, e.g. 20260102_030405_tanaman3.jpg.
func (a *Archive) FileName(plantID int, extension string) string {
	ext := strings.ToLower(extension)
	if ext == "" || ext == "." {
		ext = defaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_tanaman%d%s", a.now().Format("20060102_150405"), plantID, ext)
}

// Save writes data under a generated name and returns that name (not a path).
// A failure to write any copy fails the whole save.
func (a *Archive) Save(data []byte, plantID int, extension string) (string, error) {
	name := a.FileName(plantID, extension)

	if err := os.WriteFile(a.Path(name), data, 0o644); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}

	for _, dir := range a.mirrors {
		mirrorPath := filepath.Join(dir, name)
		if err := os.WriteFile(mirrorPath, data, 0o644); err != nil {
			return "", fmt.Errorf("mirror upload to %s: %w", dir, err)
		}
	}

	a.logger.Info("ImageArchive", "upload stored", map[string]interface{}{
		"file":    name,
		"bytes":   len(data),
		"mirrors": len(a.mirrors),
	})
	return name, nil
}

// Path returns the primary location of a stored file name.
func (a *Archive) Path(name string) string {
	return filepath.Join(a.primary, filepath.Base(name))
}
