package idetimage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/screenager/idetgo"
)

func TestConvertToBGRSwapsChannelOrder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	img, err := ConvertToBGR(src, idetgo.PixelFormatBGR8)
	if err != nil {
		t.Fatalf("ConvertToBGR: %v", err)
	}
	view := img.View()
	if !view.IsValid() {
		t.Fatalf("view invalid: %+v", view)
	}
	if view.Data[0] != 30 || view.Data[1] != 20 || view.Data[2] != 10 {
		t.Fatalf("data = %v, want BGR(30,20,10)", view.Data[:3])
	}
}

func TestConvertToBGRRejectsUnsupportedFormat(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if _, err := ConvertToBGR(src, idetgo.PixelFormatRGB8+100); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadRoundTripsPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 5, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f.Close()

	img, err := Load(path, idetgo.PixelFormatBGR8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	view := img.View()
	if view.Width != 3 || view.Height != 2 {
		t.Fatalf("dims = %dx%d, want 3x2", view.Width, view.Height)
	}
}
