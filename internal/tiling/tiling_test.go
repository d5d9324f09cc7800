package tiling

import (
	"fmt"
	"sync"
	"testing"
)

func TestMakeTilesCoversImageWithoutOverlap(t *testing.T) {
	rects := MakeTiles(100, 100, GridSpec{Rows: 2, Cols: 2}, 0)
	if len(rects) != 4 {
		t.Fatalf("len(rects) = %d, want 4", len(rects))
	}

	covered := make([][]bool, 100)
	for i := range covered {
		covered[i] = make([]bool, 100)
	}
	for _, r := range rects {
		for y := r.Y; y < r.Y+r.H; y++ {
			for x := r.X; x < r.X+r.W; x++ {
				covered[y][x] = true
			}
		}
	}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if !covered[y][x] {
				t.Fatalf("pixel (%d,%d) not covered by any tile", x, y)
			}
		}
	}
}

func TestMakeTilesOverlapExpandsAndClips(t *testing.T) {
	rects := MakeTiles(100, 100, GridSpec{Rows: 2, Cols: 2}, 0.5)
	for _, r := range rects {
		if r.X < 0 || r.Y < 0 || r.X+r.W > 100 || r.Y+r.H > 100 {
			t.Fatalf("tile %+v escapes image bounds", r)
		}
	}
}

func TestMakeTilesInvalidInputsReturnEmpty(t *testing.T) {
	if rects := MakeTiles(0, 100, GridSpec{Rows: 1, Cols: 1}, 0); rects != nil {
		t.Fatalf("rects = %v, want nil", rects)
	}
	if rects := MakeTiles(100, 100, GridSpec{Rows: 0, Cols: 1}, 0); rects != nil {
		t.Fatalf("rects = %v, want nil", rects)
	}
}

type fakeEngine struct {
	mu       sync.Mutex
	contexts int
	ready    bool
	calls    []int // ctx indices used, in call order (bound only)
	fail     bool
}

func (f *fakeEngine) InferUnbound(tile Tile) ([]Detection, error) {
	return []Detection{{Score: 1}}, nil
}

func (f *fakeEngine) InferBound(tile Tile, ctxIdx int) ([]Detection, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ctxIdx)
	f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("boom")
	}
	return []Detection{{Score: 1}}, nil
}

func (f *fakeEngine) BoundContexts() int   { return f.contexts }
func (f *fakeEngine) BindingReady() bool   { return f.ready }

func TestInferTiledUnboundMergesAllTiles(t *testing.T) {
	eng := &fakeEngine{}
	img := Tile{Data: make([]byte, 100*100*3), Width: 100, Height: 100, Stride: 100 * 3, Channels: 3}

	dets, err := InferTiled(eng, img, false, 0, false, GridSpec{Rows: 2, Cols: 2}, 0, 1)
	if err != nil {
		t.Fatalf("InferTiled error: %v", err)
	}
	if len(dets) != 4 {
		t.Fatalf("len(dets) = %d, want 4 (one per tile)", len(dets))
	}
}

func TestInferTiledBoundUnboundModeRejectsBadCtx(t *testing.T) {
	eng := &fakeEngine{contexts: 2, ready: true}
	img := Tile{Data: make([]byte, 100*100*3), Width: 100, Height: 100, Stride: 100 * 3, Channels: 3}

	_, err := InferTiled(eng, img, true, 5, false, GridSpec{Rows: 1, Cols: 1}, 0, 1)
	if err == nil {
		t.Fatal("expected error for out-of-range ctx_idx")
	}
}

func TestInferTiledBoundParallelUsesContextModulo(t *testing.T) {
	eng := &fakeEngine{contexts: 2, ready: true}
	img := Tile{Data: make([]byte, 400*400*3), Width: 400, Height: 400, Stride: 400 * 3, Channels: 3}

	dets, err := InferTiled(eng, img, true, 0, true, GridSpec{Rows: 4, Cols: 4}, 0, 4)
	if err != nil {
		t.Fatalf("InferTiled error: %v", err)
	}
	if len(dets) != 16 {
		t.Fatalf("len(dets) = %d, want 16", len(dets))
	}
	for _, c := range eng.calls {
		if c < 0 || c >= 2 {
			t.Fatalf("ctx index %d out of range [0,2)", c)
		}
	}
}

func TestInferTiledPropagatesFirstError(t *testing.T) {
	eng := &fakeEngine{contexts: 1, ready: true, fail: true}
	img := Tile{Data: make([]byte, 100*100*3), Width: 100, Height: 100, Stride: 100 * 3, Channels: 3}

	_, err := InferTiled(eng, img, true, 0, false, GridSpec{Rows: 2, Cols: 2}, 0, 1)
	if err == nil {
		t.Fatal("expected propagated error")
	}
}

func TestInferTiledEmptyImageReturnsNil(t *testing.T) {
	eng := &fakeEngine{}
	img := Tile{Width: 0, Height: 0}
	dets, err := InferTiled(eng, img, false, 0, false, GridSpec{Rows: 1, Cols: 1}, 0, 1)
	if err != nil || dets != nil {
		t.Fatalf("dets=%v err=%v, want nil,nil", dets, err)
	}
}
