package dbnet

import (
	"testing"

	"github.com/screenager/idetgo/internal/engine"
	"github.com/screenager/idetgo/internal/geometry"
)

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, a, want int }{
		{10, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{10, 0, 10},
		{10, 1, 10},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.a); got != c.want {
			t.Errorf("alignUp(%d,%d) = %d, want %d", c.v, c.a, got, c.want)
		}
	}
}

func TestMakeGeomForced(t *testing.T) {
	g := makeGeom(100, 50, 96, 64, 0)
	if g.inW != 96 || g.inH != 64 {
		t.Fatalf("g = %+v, want inW=96 inH=64", g)
	}
}

func TestMakeGeomAutoDownscalesAndAligns(t *testing.T) {
	g := makeGeom(2000, 1000, 0, 0, 960)
	if g.inW > 2000 || g.inH > 1000 {
		t.Fatalf("geometry did not downscale: %+v", g)
	}
	if g.inW%align != 0 || g.inH%align != 0 {
		t.Fatalf("geometry not aligned to %d: %+v", align, g)
	}
}

func TestFillInputCHWNormalizesKnownPixel(t *testing.T) {
	img := engine.Image{
		Data:     []byte{10, 20, 30},
		Width:    1,
		Height:   1,
		Stride:   3,
		Channels: 3,
	}
	dst := make([]float32, 3)
	fillInputCHW(dst, 1, 1, img)

	wantB := (float32(10) - meanBGR[0]) * invStdBGR[0]
	wantG := (float32(20) - meanBGR[1]) * invStdBGR[1]
	wantR := (float32(30) - meanBGR[2]) * invStdBGR[2]

	if dst[0] != wantB || dst[1] != wantG || dst[2] != wantR {
		t.Fatalf("dst = %v, want [%v %v %v]", dst, wantB, wantG, wantR)
	}
}

func TestUnclipRectLikeExpandsAroundCentroid(t *testing.T) {
	box := [4]geometry.Point2f{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	out := unclipRectLike(box, 2)

	if out[0].X != -5 || out[0].Y != -5 {
		t.Fatalf("out[0] = %+v, want (-5,-5)", out[0])
	}
	if out[2].X != 15 || out[2].Y != 15 {
		t.Fatalf("out[2] = %+v, want (15,15)", out[2])
	}
}

func TestFindContoursSquareBlob(t *testing.T) {
	const w, h = 10, 10
	bitmap := make([]byte, w*h)
	for y := 2; y < 7; y++ {
		for x := 2; x < 7; x++ {
			bitmap[y*w+x] = 1
		}
	}

	contours := findContours(bitmap, w, h)
	if len(contours) != 1 {
		t.Fatalf("len(contours) = %d, want 1", len(contours))
	}

	minX, minY, maxX, maxY := w, h, -1, -1
	for _, p := range contours[0] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if minX != 2 || minY != 2 || maxX != 6 || maxY != 6 {
		t.Fatalf("contour bbox = (%d,%d)-(%d,%d), want (2,2)-(6,6)", minX, minY, maxX, maxY)
	}
}

func TestFindContoursEmptyBitmapReturnsNone(t *testing.T) {
	bitmap := make([]byte, 10*10)
	if got := findContours(bitmap, 10, 10); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestMinAreaRectAxisAlignedSquare(t *testing.T) {
	pts := []geometry.IntPoint{{X: 0, Y: 0}, {X: 9, Y: 0}, {X: 9, Y: 9}, {X: 0, Y: 9}}
	_, w, h := minAreaRect(pts)
	if w < 8.9 || w > 9.1 || h < 8.9 || h > 9.1 {
		t.Fatalf("w,h = %v,%v, want ~9,9", w, h)
	}
}

func TestPostprocessHWProducesScoredQuad(t *testing.T) {
	const outW, outH = 20, 20
	prob := make([]float32, outW*outH)
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			prob[y*outW+x] = 0.9
		}
	}

	e := &Engine{binThresh: 0.5, boxThresh: 0.3, unclip: 0}
	dets := e.postprocessHW(prob, outW, outH, outW, outH)
	if len(dets) != 1 {
		t.Fatalf("len(dets) = %d, want 1", len(dets))
	}
	if dets[0].Score < 0.8 {
		t.Fatalf("score = %v, want >= 0.8", dets[0].Score)
	}
}

func TestPostprocessHWRejectsBelowBoxThresh(t *testing.T) {
	const outW, outH = 20, 20
	prob := make([]float32, outW*outH)
	for y := 5; y < 8; y++ {
		for x := 5; x < 8; x++ {
			prob[y*outW+x] = 0.55
		}
	}

	e := &Engine{binThresh: 0.5, boxThresh: 0.99, unclip: 0}
	dets := e.postprocessHW(prob, outW, outH, outW, outH)
	if len(dets) != 0 {
		t.Fatalf("len(dets) = %d, want 0", len(dets))
	}
}

func TestCheckHotUpdateRejectsModelPathChange(t *testing.T) {
	cur := engine.Config{Task: engine.TaskText, Kind: engine.DBNet, ModelPath: "a.onnx"}
	next := cur
	next.ModelPath = "b.onnx"
	if err := engine.CheckHotUpdate(cur, next); err == nil {
		t.Fatal("expected error changing model_path")
	}
}
