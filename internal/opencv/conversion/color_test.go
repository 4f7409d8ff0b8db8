package conversion

import (
	"testing"

	"leafscan/internal/opencv/safe"

	"gocv.io/x/gocv"
)

func solidBGR(t *testing.T, b, g, r float64) *safe.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer mat.Close()

	sm, err := safe.NewMatFromMat(mat)
	if err != nil {
		t.Fatalf("NewMatFromMat: %v", err)
	}
	return sm
}

func TestConvertToRGBSwapsChannels(t *testing.T) {
	src := solidBGR(t, 10, 20, 30)
	defer src.Close()

	rgb, err := ConvertToRGB(src)
	if err != nil {
		t.Fatalf("ConvertToRGB: %v", err)
	}
	defer rgb.Close()

	rgbMat := rgb.GetMat()
	r := rgbMat.GetUCharAt3(0, 0, 0)
	b := rgbMat.GetUCharAt3(0, 0, 2)
	if r != 30 || b != 10 {
		t.Errorf("rgb pixel = (%d, _, %d), want (30, _, 10)", r, b)
	}
}

func TestConvertToHSVPureRed(t *testing.T) {
	src := solidBGR(t, 0, 0, 255)
	defer src.Close()

	hsv, err := ConvertToHSV(src)
	if err != nil {
		t.Fatalf("ConvertToHSV: %v", err)
	}
	defer hsv.Close()

	hsvMat := hsv.GetMat()
	h := hsvMat.GetUCharAt3(1, 1, 0)
	s := hsvMat.GetUCharAt3(1, 1, 1)
	v := hsvMat.GetUCharAt3(1, 1, 2)
	if h != 0 || s != 255 || v != 255 {
		t.Errorf("hsv = (%d,%d,%d), want (0,255,255)", h, s, v)
	}
}

func TestConvertToGrayscaleChannelCounts(t *testing.T) {
	src := solidBGR(t, 255, 255, 255)
	defer src.Close()

	gray, err := ConvertToGrayscale(src)
	if err != nil {
		t.Fatalf("ConvertToGrayscale: %v", err)
	}
	defer gray.Close()

	if gray.Channels() != 1 {
		t.Fatalf("channels = %d, want 1", gray.Channels())
	}
	grayMat := gray.GetMat()
	if v := grayMat.GetUCharAt(0, 0); v != 255 {
		t.Errorf("gray value = %d, want 255", v)
	}

	back, err := ConvertToBGR(gray)
	if err != nil {
		t.Fatalf("ConvertToBGR: %v", err)
	}
	defer back.Close()
	if back.Channels() != 3 {
		t.Errorf("channels = %d, want 3", back.Channels())
	}
}

func TestConvertToHSVRejectsGray(t *testing.T) {
	gray, err := safe.NewMat(4, 4, gocv.MatTypeCV8UC1)
	if err != nil {
		t.Fatalf("NewMat: %v", err)
	}
	defer gray.Close()

	if _, err := ConvertToHSV(gray); err == nil {
		t.Error("expected error converting single channel Mat to HSV")
	}
}
