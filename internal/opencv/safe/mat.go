package safe

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// MemoryTracker is notified when a tracked Mat is created or closed.
type MemoryTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

// Mat guards a gocv.Mat against use after Close. A Mat belongs to a single
// request; the lock only protects Close racing with readers.
type Mat struct {
	mat        gocv.Mat
	isValid    int32
	mu         sync.RWMutex
	id         uint64
	memTracker MemoryTracker
	tag        string
}

var nextMatID uint64

func NewMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	return NewMatWithTracker(rows, cols, matType, nil, "")
}

func NewMatWithTracker(rows, cols int, matType gocv.MatType, memTracker MemoryTracker, tag string) (*Mat, error) {
	if err := validateDimensions(rows, cols); err != nil {
		return nil, err
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}

	return wrap(mat, memTracker, tag), nil
}

// NewMatFromMat takes a deep copy of srcMat; the caller keeps ownership of srcMat.
func NewMatFromMat(srcMat gocv.Mat) (*Mat, error) {
	return NewMatFromMatWithTracker(srcMat, nil, "")
}

func NewMatFromMatWithTracker(srcMat gocv.Mat, memTracker MemoryTracker, tag string) (*Mat, error) {
	if err := validateSourceMat(srcMat); err != nil {
		return nil, err
	}

	clonedMat := srcMat.Clone()
	if clonedMat.Empty() {
		clonedMat.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return wrap(clonedMat, memTracker, tag), nil
}

// Adopt wraps mat without copying it. The returned Mat owns mat.
func Adopt(mat gocv.Mat, memTracker MemoryTracker, tag string) (*Mat, error) {
	if err := validateSourceMat(mat); err != nil {
		mat.Close()
		return nil, err
	}
	return wrap(mat, memTracker, tag), nil
}

func wrap(mat gocv.Mat, memTracker MemoryTracker, tag string) *Mat {
	safeMat := &Mat{
		mat:        mat,
		isValid:    1,
		id:         atomic.AddUint64(&nextMatID, 1),
		memTracker: memTracker,
		tag:        tag,
	}

	if memTracker != nil {
		size := int64(mat.Rows() * mat.Cols() * mat.Channels())
		memTracker.TrackAllocation(safeMat.id, size, tag)
	}

	runtime.SetFinalizer(safeMat, (*Mat).finalize)
	return safeMat
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}
	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Cols()
}

func (sm *Mat) Channels() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Channels()
}

func (sm *Mat) Type() gocv.MatType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}
	return sm.mat.Type()
}

func (sm *Mat) Clone() (*Mat, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot clone invalid Mat")
	}

	if sm.mat.Empty() {
		return nil, fmt.Errorf("cannot clone empty Mat")
	}

	return NewMatFromMatWithTracker(sm.mat, sm.memTracker, sm.tag+"_clone")
}

// Crop returns a continuous copy of the region rect. Crops that would leave
// the Mat are clipped to its bounds, so the result can be smaller than rect.
func (sm *Mat) Crop(rect image.Rectangle, tag string) (*Mat, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot crop invalid Mat")
	}

	clipped := rect.Intersect(image.Rect(0, 0, sm.mat.Cols(), sm.mat.Rows()))
	if clipped.Empty() {
		return nil, fmt.Errorf("crop %v lies outside %dx%d", rect, sm.mat.Cols(), sm.mat.Rows())
	}

	region := sm.mat.Region(clipped)
	defer region.Close()

	return NewMatFromMatWithTracker(region, sm.memTracker, tag)
}

// Bytes returns a copy of the pixel data in row-major, interleaved channel order.
func (sm *Mat) Bytes() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("Mat is invalid")
	}

	if !sm.mat.IsContinuous() {
		continuous := sm.mat.Clone()
		defer continuous.Close()
		return continuous.ToBytes(), nil
	}

	return sm.mat.ToBytes(), nil
}

func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mat
}

func (sm *Mat) Close() {
	if !atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		return
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.memTracker != nil {
		sm.memTracker.TrackDeallocation(sm.id, sm.tag)
	}

	sm.mat.Close()

	runtime.SetFinalizer(sm, nil)
	sm.mat = gocv.Mat{}
	sm.memTracker = nil
}

func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

func validateDimensions(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	if rows > 32768 || cols > 32768 {
		return fmt.Errorf("dimensions %dx%d exceed maximum size", cols, rows)
	}

	return nil
}

func validateSourceMat(srcMat gocv.Mat) error {
	if srcMat.Empty() {
		return fmt.Errorf("source Mat is empty")
	}

	if srcMat.Rows() <= 0 || srcMat.Cols() <= 0 {
		return fmt.Errorf("source Mat has invalid dimensions: %dx%d", srcMat.Cols(), srcMat.Rows())
	}

	return nil
}

func ValidateMatForOperation(mat *Mat, operation string) error {
	if mat == nil {
		return fmt.Errorf("Mat is nil for operation: %s", operation)
	}

	if !mat.IsValid() {
		return fmt.Errorf("Mat is invalid for operation: %s", operation)
	}

	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}

	return nil
}

func ValidateColorConversion(src *Mat, code gocv.ColorConversionCode) error {
	if err := ValidateMatForOperation(src, "CvtColor"); err != nil {
		return err
	}

	channels := src.Channels()

	switch code {
	case gocv.ColorBGRToGray, gocv.ColorBGRToRGB, gocv.ColorBGRToHSV:
		if channels != 3 {
			return fmt.Errorf("conversion from BGR requires 3 channels, got %d", channels)
		}
	case gocv.ColorGrayToBGR:
		if channels != 1 {
			return fmt.Errorf("Gray to BGR conversion requires 1 channel, got %d", channels)
		}
	case gocv.ColorBGRAToBGR:
		if channels != 4 {
			return fmt.Errorf("BGRA to BGR conversion requires 4 channels, got %d", channels)
		}
	}

	return nil
}
