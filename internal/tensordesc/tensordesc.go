// Package tensordesc classifies ORT output tensor shapes into a normalized
// (N,C,H,W) view so decoding code never hardcodes a layout assumption.
//
// Supported "probmap-like" shapes:
//   - [N, C, H, W]  (NCHW)
//   - [N, H, W, C]  (NHWC)
//   - [N, H, W]     (treated as single-channel)
//   - [H, W]        (treated as single-channel, batch=1)
//
// Ambiguous rank-4 shapes (e.g. [1,1,H,W] vs [1,H,W,1]) are resolved by
// preferring the interpretation with the larger spatial area; a full tie is
// broken in favor of NHWC.
package tensordesc

// TensorLayout classifies how a contiguous float buffer should be
// interpreted.
type TensorLayout uint8

const (
	Unknown TensorLayout = iota
	NCHW
	NHWC
	N1HW
	// FlatNC is a classification hint for flat "locations x channels"
	// exports (e.g. [N, Nloc, C] or [N, Nloc, 4]); interpretation is
	// model-specific and left to the consuming engine.
	FlatNC
	HW
)

// TensorDesc is a normalized view of an ORT output shape.
type TensorDesc struct {
	Shape  []int64
	Layout TensorLayout
	N      int64
	C      int64
	H      int64
	W      int64
	Numel  uint64
}

// safeDim substitutes a non-positive (dynamic) dimension with 1 so products
// stay well-defined.
func safeDim(v int64) int64 {
	if v > 0 {
		return v
	}
	return 1
}

func safeNumel(sh []int64) uint64 {
	var n uint64 = 1
	for _, v := range sh {
		n *= uint64(safeDim(v))
	}
	return n
}

// looksSmallChannel reports whether x looks like a plausible channel count
// (probmap channels are usually 1/2); any value in [1, 16] qualifies.
func looksSmallChannel(x int64) bool {
	return x > 0 && x <= 16
}

func safeArea(h, w int64) uint64 {
	if h <= 0 || w <= 0 {
		return 0
	}
	return uint64(h) * uint64(w)
}

// MakeDescProbmap classifies sh and builds a normalized TensorDesc. If sh
// cannot be classified, the returned descriptor's Layout is Unknown.
func MakeDescProbmap(sh []int64) TensorDesc {
	d := TensorDesc{
		Shape: append([]int64(nil), sh...),
		Numel: safeNumel(sh),
	}

	switch len(sh) {
	case 4:
		n0 := safeDim(sh[0])

		cn, hn, wn := safeDim(sh[1]), safeDim(sh[2]), safeDim(sh[3])
		candNCHW := looksSmallChannel(cn)

		hh, wh, ch := safeDim(sh[1]), safeDim(sh[2]), safeDim(sh[3])
		candNHWC := looksSmallChannel(ch)

		switch {
		case candNCHW && !candNHWC:
			d.Layout, d.N, d.C, d.H, d.W = NCHW, n0, cn, hn, wn
		case candNHWC && !candNCHW:
			d.Layout, d.N, d.C, d.H, d.W = NHWC, n0, ch, hh, wh
		case candNCHW && candNHWC:
			areaNCHW := safeArea(hn, wn)
			areaNHWC := safeArea(hh, wh)
			switch {
			case areaNHWC > areaNCHW:
				d.Layout, d.N, d.C, d.H, d.W = NHWC, n0, ch, hh, wh
			case areaNCHW > areaNHWC:
				d.Layout, d.N, d.C, d.H, d.W = NCHW, n0, cn, hn, wn
			default:
				// Fully ambiguous (e.g. [1,2,2,2]): NHWC by policy.
				d.Layout, d.N, d.C, d.H, d.W = NHWC, n0, ch, hh, wh
			}
		}
		return d

	case 3:
		d.Layout = N1HW
		d.N = safeDim(sh[0])
		d.C = 1
		d.H = safeDim(sh[1])
		d.W = safeDim(sh[2])
		return d

	case 2:
		d.Layout = HW
		d.N = 1
		d.C = 1
		d.H = safeDim(sh[0])
		d.W = safeDim(sh[1])
		return d

	default:
		return d
	}
}

// ExtractHWChannel returns a contiguous H*W float32 plane for channel at
// batch 0. For NCHW/N1HW/HW layouts the returned slice aliases data; for
// NHWC it gathers into scratch (resized as needed) and returns scratch.
// Returns nil if desc is invalid or unsupported.
func ExtractHWChannel(data []float32, desc TensorDesc, channel int, scratch *[]float32) []float32 {
	if len(data) == 0 {
		return nil
	}
	if desc.H <= 0 || desc.W <= 0 {
		return nil
	}

	hw := uint64(desc.H) * uint64(desc.W)

	if channel < 0 {
		channel = 0
	}
	if desc.C > 0 && int64(channel) > desc.C-1 {
		channel = int(desc.C - 1)
	}

	switch desc.Layout {
	case NCHW:
		off := uint64(channel) * hw
		if off+hw > uint64(len(data)) {
			return nil
		}
		return data[off : off+hw]
	case NHWC:
		c := desc.C
		if c < 1 {
			c = 1
		}
		if scratch == nil {
			return nil
		}
		if uint64(cap(*scratch)) < hw {
			*scratch = make([]float32, hw)
		} else {
			*scratch = (*scratch)[:hw]
		}
		for i := uint64(0); i < hw; i++ {
			idx := i*uint64(c) + uint64(channel)
			if idx >= uint64(len(data)) {
				return nil
			}
			(*scratch)[i] = data[idx]
		}
		return *scratch
	case N1HW, HW:
		if hw > uint64(len(data)) {
			return nil
		}
		return data[:hw]
	default:
		return nil
	}
}
