// Package idetimage is an ambient I/O helper for loading images from disk
// and converting them into the BGR8 packed layout the core idetgo package
// consumes. It is deliberately separate from the root package so idetgo
// itself never imports an image-decode dependency (image decoding is an
// out-of-scope external collaborator per the core library's contract).
package idetimage

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/screenager/idetgo"
)

// Load decodes the image at path (any format registered with the stdlib
// image package or golang.org/x/image) and returns it as an idetgo.Image
// in the requested packed format.
func Load(path string, format idetgo.PixelFormat) (idetgo.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return idetgo.Image{}, fmt.Errorf("idetimage: opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return idetgo.Image{}, fmt.Errorf("idetimage: decoding %s: %w", path, err)
	}
	return ConvertToBGR(img, format)
}

// ConvertToBGR rasterizes a decoded image.Image into a packed idetgo.Image
// view in the requested format (PixelFormatBGR8 or PixelFormatBGRA8).
func ConvertToBGR(src image.Image, format idetgo.PixelFormat) (idetgo.Image, error) {
	if format != idetgo.PixelFormatBGR8 && format != idetgo.PixelFormatBGRA8 {
		return idetgo.Image{}, fmt.Errorf("idetimage: unsupported target format %v", format)
	}
	ch := format.Channels()

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return idetgo.Image{}, fmt.Errorf("idetimage: empty image")
	}

	stride := w * ch
	data := make([]byte, stride*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := y*stride + x*ch
			data[off+0] = byte(b >> 8)
			data[off+1] = byte(g >> 8)
			data[off+2] = byte(r >> 8)
			if ch == 4 {
				data[off+3] = byte(a >> 8)
			}
		}
	}

	view := idetgo.ImageView{
		Data:        data,
		Width:       w,
		Height:      h,
		StrideBytes: stride,
		Format:      format,
	}
	return idetgo.NewImageView(view), nil
}
