package nms

import (
	"testing"

	"github.com/screenager/idetgo/internal/geometry"
)

func box(cx, cy, half, score float32) Detection {
	return Detection{
		Pts: [4]geometry.Point2f{
			{cx - half, cy - half},
			{cx + half, cy - half},
			{cx + half, cy + half},
			{cx - half, cy + half},
		},
		Score: score,
	}
}

func TestSuppressRemovesOverlapping(t *testing.T) {
	dets := []Detection{
		box(50, 50, 10, 0.9),
		box(52, 50, 10, 0.8), // heavily overlaps the first, lower score
		box(200, 200, 10, 0.7),
	}

	out := Suppress(dets, 0.3, true)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Score != 0.9 {
		t.Fatalf("out[0].Score = %v, want 0.9 (highest first)", out[0].Score)
	}
}

func TestSuppressThresholdZeroKeepsAll(t *testing.T) {
	dets := []Detection{
		box(50, 50, 10, 0.5),
		box(51, 50, 10, 0.9),
	}
	out := Suppress(dets, 0, true)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Score != 0.9 {
		t.Fatalf("out not sorted by score descending: %v", out)
	}
}

func TestSuppressThresholdOneKeepsOnlyBest(t *testing.T) {
	dets := []Detection{
		box(50, 50, 10, 0.5),
		box(500, 500, 10, 0.9),
	}
	out := Suppress(dets, 1, true)
	if len(out) != 1 || out[0].Score != 0.9 {
		t.Fatalf("out = %v, want single best (0.9)", out)
	}
}

func TestSuppressEmptyInput(t *testing.T) {
	if out := Suppress(nil, 0.5, true); out != nil {
		t.Fatalf("out = %v, want nil", out)
	}
}

func TestSuppressManyDetectionsUsesGridPath(t *testing.T) {
	var dets []Detection
	for i := 0; i < 500; i++ {
		x := float32((i % 20) * 100)
		y := float32((i / 20) * 100)
		dets = append(dets, box(x, y, 10, float32(i)/500))
	}
	out := Suppress(dets, 0.3, true)
	if len(out) != 500 {
		t.Fatalf("len(out) = %d, want 500 (all disjoint)", len(out))
	}
}
