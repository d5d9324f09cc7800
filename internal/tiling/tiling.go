// Package tiling splits an image into a grid of overlapping tiles and
// drives per-tile inference across a bounded worker pool, translating
// tile-local detections back into global image coordinates.
//
// This package does not run cross-tile NMS; callers merge the returned
// detections through internal/nms themselves.
package tiling

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/screenager/idetgo/internal/geometry"
)

// Rect is an image-space tile, in pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

// GridSpec describes a tiling grid's dimensions.
type GridSpec struct {
	Rows, Cols int
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// split1D divides length L into K contiguous, non-overlapping segments
// covering [0, L); any remainder is distributed to the first segments.
func split1D(l, k int) (starts, lens []int) {
	starts = make([]int, k)
	lens = make([]int, k)
	if k <= 0 {
		return
	}
	base := l / k
	rem := l % k
	s := 0
	for i := 0; i < k; i++ {
		length := base
		if i < rem {
			length++
		}
		starts[i] = s
		lens[i] = length
		s += length
	}
	return
}

// MakeTiles builds a regular grid of tiles over an imgW x imgH image,
// expanding each tile by overlap (a fraction of its own size, clamped to
// [0, 0.95]) on every side and clipping the result to image bounds. Tiles
// with zero area after clipping are dropped.
func MakeTiles(imgW, imgH int, grid GridSpec, overlap float32) []Rect {
	var out []Rect
	if imgW <= 0 || imgH <= 0 || grid.Cols <= 0 || grid.Rows <= 0 {
		return out
	}

	overlap = clampf(overlap, 0, 0.95)

	xs, ws := split1D(imgW, grid.Cols)
	ys, hs := split1D(imgH, grid.Rows)

	out = make([]Rect, 0, grid.Cols*grid.Rows)
	for ry := 0; ry < grid.Rows; ry++ {
		for cx := 0; cx < grid.Cols; cx++ {
			x0, w0 := xs[cx], ws[cx]
			y0, h0 := ys[ry], hs[ry]

			ex := int(math.Round(float64(w0) * float64(overlap)))
			ey := int(math.Round(float64(h0) * float64(overlap)))

			x1 := clampi(x0-ex, 0, imgW)
			y1 := clampi(y0-ey, 0, imgH)
			x2 := clampi(x0+w0+ex, 0, imgW)
			y2 := clampi(y0+h0+ey, 0, imgH)

			ww := x2 - x1
			hh := y2 - y1
			if ww > 0 && hh > 0 {
				out = append(out, Rect{x1, y1, ww, hh})
			}
		}
	}
	return out
}

// Detection is a tile-local or global quadrilateral detection produced by
// an engine.
type Detection struct {
	Pts   [4]geometry.Point2f
	Score float32
}

func offset(d Detection, dx, dy int) Detection {
	out := d
	for i := range out.Pts {
		out.Pts[i].X += float32(dx)
		out.Pts[i].Y += float32(dy)
	}
	return out
}

// Engine is the subset of engine.Engine tiling needs: unbound inference
// over a tile, bound inference against a specific binding-context index,
// and the number of contexts available for bound inference.
type Engine interface {
	InferUnbound(tile Tile) ([]Detection, error)
	InferBound(tile Tile, ctxIdx int) ([]Detection, error)
	BoundContexts() int
	BindingReady() bool
}

// Tile is a read-only view into a source image restricted to a Rect, with
// no copy of the backing pixels.
type Tile struct {
	Data     []byte
	Width    int
	Height   int
	Stride   int
	Channels int
}

// InferTiled runs eng over every tile of img, merging and coordinate-
// translating the results.
//
// bound selects bound (pre-allocated IO binding) vs unbound inference.
// When bound is true and parallelBound is false, every tile runs on
// ctxIdx, single-threaded. When parallelBound is true, tiles are
// distributed round-robin across min(threads, contexts) worker goroutines,
// each pinned to one context for the goroutine's lifetime: worker t runs
// tiles t, t+n, t+2n, ... for n workers, so every tile's context is fixed
// by its index. tileThreads <= 0 means "use as many workers as tiles allow"
// (GOMAXPROCS-sized default is the caller's responsibility via tileThreads).
func InferTiled(eng Engine, img Tile, bound bool, ctxIdx int, parallelBound bool, grid GridSpec, overlapRel float32, tileThreads int) ([]Detection, error) {
	rects := MakeTiles(img.Width, img.Height, grid, overlapRel)
	numTiles := len(rects)
	if numTiles == 0 {
		return nil, nil
	}

	nThreads := tileThreads
	if nThreads <= 0 {
		nThreads = numTiles
	}

	contexts := eng.BoundContexts()
	if bound {
		if !eng.BindingReady() {
			return nil, errInvalid("infer_tiled(bound): binding not ready")
		}
		if !parallelBound {
			nThreads = 1
			if ctxIdx < 0 || ctxIdx >= contexts {
				return nil, errInvalid("infer_tiled(bound): ctx out of range")
			}
		} else {
			if contexts <= 0 {
				return nil, errInvalid("infer_tiled(bound): contexts <= 0")
			}
			if nThreads > contexts {
				nThreads = contexts
			}
		}
	}
	if nThreads > numTiles {
		nThreads = numTiles
	}
	if nThreads < 1 {
		nThreads = 1
	}

	tls := make([][]Detection, nThreads)
	for i := range tls {
		tls[i] = make([]Detection, 0, numTiles*4/nThreads+8)
	}

	var failed atomic.Bool
	var failMu sync.Mutex
	var failErr error

	var wg sync.WaitGroup
	wg.Add(nThreads)
	for tid := 0; tid < nThreads; tid++ {
		tid := tid
		go func() {
			defer wg.Done()
			local := tls[tid]

			useCtx := 0
			if bound {
				if parallelBound {
					useCtx = tid % contexts
				} else {
					useCtx = ctxIdx
				}
			}

			for i := tid; i < numTiles; i += nThreads {
				if failed.Load() {
					continue
				}

				rc := rects[i]
				tile := subTile(img, rc)

				var dets []Detection
				var err error
				if bound {
					dets, err = eng.InferBound(tile, useCtx)
				} else {
					dets, err = eng.InferUnbound(tile)
				}

				if err != nil {
					failed.Store(true)
					failMu.Lock()
					if failErr == nil {
						failErr = err
					}
					failMu.Unlock()
					continue
				}

				for _, d := range dets {
					local = append(local, offset(d, rc.X, rc.Y))
				}
			}

			tls[tid] = local
		}()
	}
	wg.Wait()

	if failed.Load() {
		if failErr != nil {
			return nil, failErr
		}
		return nil, errInternal("infer_tiled: failed")
	}

	total := 0
	for _, v := range tls {
		total += len(v)
	}
	all := make([]Detection, 0, total)
	for _, v := range tls {
		all = append(all, v...)
	}
	return all, nil
}

// subTile returns a Tile describing rc's region within img. Because rows
// are not contiguous in memory once a tile's width is narrower than the
// source's stride, the returned Tile carries the same Stride as img and a
// Data slice starting at the tile's first row; row i of the tile is at
// Data[i*Stride : i*Stride+Width*Channels].
func subTile(img Tile, rc Rect) Tile {
	rowStart := rc.Y * img.Stride
	colOffset := rc.X * img.Channels
	return Tile{
		Data:     img.Data[rowStart+colOffset:],
		Width:    rc.W,
		Height:   rc.H,
		Stride:   img.Stride,
		Channels: img.Channels,
	}
}

type tilingError struct{ msg string }

func (e *tilingError) Error() string { return e.msg }

func errInvalid(msg string) error { return &tilingError{msg} }
func errInternal(msg string) error { return &tilingError{msg} }
