package geometry

import (
	"math"
	"testing"
)

func TestOrderQuadShuffledRectangle(t *testing.T) {
	quad := [4]Point2f{
		{10, 80},
		{60, 20},
		{60, 80},
		{10, 20},
	}
	OrderQuad(&quad)

	want := [4]Point2f{
		{10, 20},
		{60, 20},
		{60, 80},
		{10, 80},
	}
	if quad != want {
		t.Fatalf("OrderQuad() = %v, want %v", quad, want)
	}
}

func TestOrderQuadNonFiniteFallsBack(t *testing.T) {
	quad := [4]Point2f{
		{10, 20},
		{float32(math.NaN()), 20},
		{60, 80},
		{10, 80},
	}
	OrderQuad(&quad)
	nans := 0
	for _, p := range quad {
		if math.IsNaN(float64(p.X)) {
			nans++
			continue
		}
	}
	if nans != 1 {
		t.Fatalf("OrderQuad() = %v, want the single NaN point kept and no new non-finite values", quad)
	}
	if quad[0] != (Point2f{10, 20}) {
		t.Fatalf("OrderQuad() = %v, want fallback order starting at (10,20)", quad)
	}
}

func square(cx, cy, half float32) [4]Point2f {
	return [4]Point2f{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
	}
}

func TestAABBIoUSelfIsOne(t *testing.T) {
	q := square(50, 50, 10)
	iou := AABBIoU(q, q)
	if iou < 0.999 {
		t.Fatalf("self IoU = %v, want ~1", iou)
	}
}

func TestAABBIoUSymmetric(t *testing.T) {
	a := square(50, 50, 10)
	b := square(55, 50, 10)
	ab := AABBIoU(a, b)
	ba := AABBIoU(b, a)
	if math.Abs(float64(ab-ba)) > 1e-6 {
		t.Fatalf("IoU not symmetric: %v vs %v", ab, ba)
	}
}

func TestAABBIoUTranslationInvariant(t *testing.T) {
	a := square(50, 50, 10)
	b := square(55, 50, 10)
	base := AABBIoU(a, b)

	shift := func(q [4]Point2f, dx, dy float32) [4]Point2f {
		var out [4]Point2f
		for i, p := range q {
			out[i] = Point2f{p.X + dx, p.Y + dy}
		}
		return out
	}

	a2 := shift(a, 100, -40)
	b2 := shift(b, 100, -40)
	moved := AABBIoU(a2, b2)

	if math.Abs(float64(base-moved)) > 1e-6 {
		t.Fatalf("IoU not translation invariant: %v vs %v", base, moved)
	}
}

func TestAABBIoUDisjointIsZero(t *testing.T) {
	a := square(0, 0, 5)
	b := square(100, 100, 5)
	if iou := AABBIoU(a, b); iou != 0 {
		t.Fatalf("disjoint IoU = %v, want 0", iou)
	}
}

func TestQuadIoUExactMatchesFastOnAxisAligned(t *testing.T) {
	a := square(50, 50, 10)
	b := square(55, 50, 10)

	fast := QuadIoU(a, b, true)
	exact := QuadIoU(a, b, false)
	if math.Abs(float64(fast-exact)) > 1e-4 {
		t.Fatalf("exact vs fast IoU mismatch on axis-aligned quads: %v vs %v", exact, fast)
	}
}

func TestQuadIoURotatedSquareLessThanAABB(t *testing.T) {
	diamond := [4]Point2f{
		{50, 30},
		{70, 50},
		{50, 70},
		{30, 50},
	}
	box := square(50, 50, 20)

	exact := QuadIoU(diamond, box, false)
	fast := QuadIoU(diamond, box, true)

	if exact <= 0 || exact >= 1 {
		t.Fatalf("exact IoU out of range: %v", exact)
	}
	if exact >= fast {
		t.Fatalf("rotated-quad exact IoU (%v) should be less than its AABB IoU (%v)", exact, fast)
	}
}

func TestContourScoreMeansProbabilityInMask(t *testing.T) {
	const w, h = 10, 10
	prob := make([]float32, w*h)
	for i := range prob {
		prob[i] = 1
	}

	contour := []IntPoint{{2, 2}, {6, 2}, {6, 6}, {2, 6}}
	score := ContourScore(prob, w, h, contour)
	if math.Abs(float64(score-1)) > 1e-4 {
		t.Fatalf("ContourScore = %v, want ~1", score)
	}
}

func TestContourScoreEmptyContourIsZero(t *testing.T) {
	prob := make([]float32, 100)
	if score := ContourScore(prob, 10, 10, nil); score != 0 {
		t.Fatalf("ContourScore(empty) = %v, want 0", score)
	}
}

func TestAspectFit32AlignsDownAndPreservesAspect(t *testing.T) {
	w, h := AspectFit32(1280, 720, 960)
	if w%32 != 0 || h%32 != 0 {
		t.Fatalf("AspectFit32 not 32-aligned: %dx%d", w, h)
	}
	if w > 960 {
		t.Fatalf("AspectFit32 longer side exceeds target: %d", w)
	}
}

func TestAspectFit32NoSideAlignsDirectly(t *testing.T) {
	w, h := AspectFit32(100, 50, 0)
	if w != 96 || h != 32 {
		t.Fatalf("AspectFit32(100,50,0) = (%d,%d), want (96,32)", w, h)
	}
}

func TestAspectFit32InvalidInputReturnsMinimum(t *testing.T) {
	w, h := AspectFit32(0, 10, 100)
	if w != 32 || h != 32 {
		t.Fatalf("AspectFit32 invalid input = (%d,%d), want (32,32)", w, h)
	}
}
