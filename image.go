package idetgo

// PixelFormat describes a packed, interleaved 8-bit-per-channel pixel
// layout. Planar layouts are not represented.
type PixelFormat uint8

const (
	PixelFormatRGB8 PixelFormat = iota
	PixelFormatBGR8
	PixelFormatRGBA8
	PixelFormatBGRA8
)

// Channels returns the number of interleaved channels for f, or 0 if f is
// not a recognized format.
func (f PixelFormat) Channels() int {
	switch f {
	case PixelFormatRGB8, PixelFormatBGR8:
		return 3
	case PixelFormatRGBA8, PixelFormatBGRA8:
		return 4
	default:
		return 0
	}
}

// ImageView is a non-owning descriptor over packed 8-bit image memory. The
// caller guarantees Data remains valid for as long as the view is used.
type ImageView struct {
	Data        []byte
	Width       int
	Height      int
	StrideBytes int
	Format      PixelFormat
}

// Empty reports whether the view has no usable backing memory.
func (v ImageView) Empty() bool {
	return len(v.Data) == 0 || v.Width <= 0 || v.Height <= 0
}

// MinRowBytes is the minimum number of bytes required to store one row.
func (v ImageView) MinRowBytes() int {
	ch := v.Format.Channels()
	if ch <= 0 || v.Width <= 0 {
		return 0
	}
	return v.Width * ch
}

// IsValid reports whether the view's invariants hold: non-empty, and
// StrideBytes large enough to hold one packed row.
func (v ImageView) IsValid() bool {
	if v.Empty() {
		return false
	}
	min := v.MinRowBytes()
	return min > 0 && v.StrideBytes >= min
}

// TightlyPacked reports whether rows have no padding between them.
func (v ImageView) TightlyPacked() bool {
	return v.IsValid() && v.StrideBytes == v.MinRowBytes()
}

// Image is a small value type that may borrow or co-own its backing pixel
// memory. release, when non-nil, is invoked by Close and runs at most once;
// it exists for images adopting foreign (e.g. cgo-owned) buffers. Plain
// Go-allocated views need no release and leave it nil, letting the garbage
// collector reclaim the slice normally.
type Image struct {
	view    ImageView
	release func()
	closed  bool
}

// NewImageView wraps v as a non-owning Image. The caller retains
// responsibility for keeping v.Data alive.
func NewImageView(v ImageView) Image {
	return Image{view: v}
}

// AdoptImage wraps v together with a releaser invoked once when Close is
// called, modeling ownership of foreign memory (e.g. a buffer handed back by
// the inference runtime).
func AdoptImage(v ImageView, release func()) Image {
	return Image{view: v, release: release}
}

// View returns the underlying image view descriptor.
func (img Image) View() ImageView { return img.view }

// Valid reports whether the underlying view satisfies ImageView.IsValid.
func (img Image) Valid() bool { return img.view.IsValid() }

// Close runs the release callback, if any, exactly once.
func (img *Image) Close() {
	if img.closed {
		return
	}
	img.closed = true
	if img.release != nil {
		img.release()
	}
}
