package safe

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

type countingTracker struct {
	allocs, deallocs int
	bytes            int64
}

func (c *countingTracker) TrackAllocation(id uint64, size int64, tag string) {
	c.allocs++
	c.bytes += size
}

func (c *countingTracker) TrackDeallocation(id uint64, tag string) {
	c.deallocs++
}

func TestCropClipsToBounds(t *testing.T) {
	src, err := NewMat(100, 90, gocv.MatTypeCV8UC3)
	if err != nil {
		t.Fatalf("NewMat: %v", err)
	}
	defer src.Close()

	full, err := src.Crop(image.Rect(0, 0, 64, 64), "full")
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	defer full.Close()
	if full.Rows() != 64 || full.Cols() != 64 {
		t.Errorf("full crop = %dx%d, want 64x64", full.Cols(), full.Rows())
	}

	edge, err := src.Crop(image.Rect(64, 64, 128, 128), "edge")
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	defer edge.Close()
	if edge.Cols() != 26 || edge.Rows() != 36 {
		t.Errorf("edge crop = %dx%d, want 26x36", edge.Cols(), edge.Rows())
	}

	if _, err := src.Crop(image.Rect(200, 200, 264, 264), "outside"); err == nil {
		t.Error("expected error for crop outside the Mat")
	}
}

func TestBytesLength(t *testing.T) {
	src, err := NewMat(8, 4, gocv.MatTypeCV8UC3)
	if err != nil {
		t.Fatalf("NewMat: %v", err)
	}
	defer src.Close()

	data, err := src.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(data) != 8*4*3 {
		t.Errorf("len = %d, want %d", len(data), 8*4*3)
	}
}

func TestCloseIsIdempotentAndTracked(t *testing.T) {
	tracker := &countingTracker{}
	mat, err := NewMatWithTracker(10, 10, gocv.MatTypeCV8UC1, tracker, "tracked")
	if err != nil {
		t.Fatalf("NewMatWithTracker: %v", err)
	}

	if tracker.allocs != 1 || tracker.bytes != 100 {
		t.Errorf("allocation tracking = %d/%d, want 1/100", tracker.allocs, tracker.bytes)
	}

	mat.Close()
	mat.Close()

	if tracker.deallocs != 1 {
		t.Errorf("deallocs = %d, want 1", tracker.deallocs)
	}
	if mat.IsValid() {
		t.Error("closed Mat still reports valid")
	}
	if err := ValidateMatForOperation(mat, "test"); err == nil {
		t.Error("expected validation error for closed Mat")
	}
}

func TestValidateDimensions(t *testing.T) {
	if _, err := NewMat(0, 10, gocv.MatTypeCV8UC1); err == nil {
		t.Error("expected error for zero rows")
	}
	if _, err := NewMat(40000, 10, gocv.MatTypeCV8UC1); err == nil {
		t.Error("expected error for oversized Mat")
	}
}
