package bridge

import (
	"image"
	"image/color"
	"testing"
)

func TestImageRoundTripKeepsChannelOrder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	src.SetRGBA(2, 1, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	mat, err := ImageToMat(src)
	if err != nil {
		t.Fatalf("ImageToMat: %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 2 || mat.Cols() != 3 || mat.Channels() != 3 {
		t.Fatalf("mat = %dx%dx%d, want 3x2x3", mat.Cols(), mat.Rows(), mat.Channels())
	}

	gm := mat.GetMat()
	b := gm.GetUCharAt3(0, 0, 0)
	r := gm.GetUCharAt3(0, 0, 2)
	if b != 50 || r != 200 {
		t.Errorf("BGR pixel = (%d, _, %d), want (50, _, 200)", b, r)
	}

	back, err := MatToImage(mat)
	if err != nil {
		t.Fatalf("MatToImage: %v", err)
	}
	got := back.(*image.RGBA).RGBAAt(2, 1)
	if got != (color.RGBA{R: 1, G: 2, B: 3, A: 255}) {
		t.Errorf("pixel = %v, want {1 2 3 255}", got)
	}
}

func TestImageToMatRejectsNil(t *testing.T) {
	if _, err := ImageToMat(nil); err == nil {
		t.Error("expected error for nil image")
	}
}
