// Package geometry implements the quad canonicalization, IoU, contour
// scoring, and aspect-fit primitives shared by the detection engines and the
// NMS stage.
package geometry

import (
	"math"
	"sort"
)

// Point2f is a 2D point in image coordinates.
type Point2f struct {
	X, Y float32
}

func sub(a, b Point2f) Point2f { return Point2f{a.X - b.X, a.Y - b.Y} }

func cross2(a, b Point2f) float32 { return a.X*b.Y - a.Y*b.X }

func sqrLen(v Point2f) float32 { return v.X*v.X + v.Y*v.Y }

func isFinite(p Point2f) bool {
	return !math.IsNaN(float64(p.X)) && !math.IsInf(float64(p.X), 0) &&
		!math.IsNaN(float64(p.Y)) && !math.IsInf(float64(p.Y), 0)
}

const (
	epsAng = 1e-6
	epsLex = 1e-4
)

func lexYXLess(a, b Point2f) bool {
	if a.Y < b.Y-epsLex {
		return true
	}
	if a.Y > b.Y+epsLex {
		return false
	}
	return a.X < b.X-epsLex
}

// lexFallback implements the deterministic lex-order TL/TR/BR/BL assignment
// used both for non-finite input and for degenerate (near-zero-area) quads.
func lexFallback(quad *[4]Point2f) {
	r := *quad
	swapLex := func(i0, i1 int) {
		if lexYXLess(r[i1], r[i0]) {
			r[i0], r[i1] = r[i1], r[i0]
		}
	}
	swapLex(0, 1)
	swapLex(2, 3)
	swapLex(0, 2)
	swapLex(1, 3)
	swapLex(1, 2)

	tl, br := r[0], r[3]
	p1, p2 := r[1], r[2]

	tr, bl := p1, p2
	absf := func(x float32) float32 {
		if x < 0 {
			return -x
		}
		return x
	}
	if p2.X > p1.X+epsLex || (absf(p2.X-p1.X) <= epsLex && p2.Y < p1.Y-epsLex) {
		tr, bl = p2, p1
	}

	quad[0], quad[1], quad[2], quad[3] = tl, tr, br, bl
}

// OrderQuad rearranges quad in place so index 0 is TL, 1 is TR, 2 is BR, 3
// is BL, following (in order): a non-finite fallback, angle-sort-around-
// centroid with a half-plane tiebreak, a scale-aware degeneracy fallback,
// and a final TL-rotation with TR/BL disambiguation.
func OrderQuad(quad *[4]Point2f) {
	for i := 0; i < 4; i++ {
		if !isFinite(quad[i]) {
			lexFallback(quad)
			return
		}
	}

	var c Point2f
	for _, p := range quad {
		c.X += p.X
		c.Y += p.Y
	}
	c.X *= 0.25
	c.Y *= 0.25

	absf := func(x float32) float32 {
		if x < 0 {
			return -x
		}
		return x
	}

	angleLess := func(p, q Point2f) bool {
		vp := sub(p, c)
		vq := sub(q, c)

		upP := vp.Y < -epsAng || (absf(vp.Y) <= epsAng && vp.X >= 0)
		upQ := vq.Y < -epsAng || (absf(vq.Y) <= epsAng && vq.X >= 0)
		if upP != upQ {
			return upP && !upQ
		}

		cr := cross2(vp, vq)
		if absf(cr) > epsAng {
			return cr > 0
		}

		dp, dq := sqrLen(vp), sqrLen(vq)
		if absf(dp-dq) > epsAng {
			return dp > dq
		}

		if p.X < q.X-epsLex {
			return true
		}
		if p.X > q.X+epsLex {
			return false
		}
		return p.Y < q.Y-epsLex
	}

	r := *quad
	swapIf := func(i0, i1 int) {
		if angleLess(r[i1], r[i0]) {
			r[i0], r[i1] = r[i1], r[i0]
		}
	}
	swapIf(0, 1)
	swapIf(2, 3)
	swapIf(0, 2)
	swapIf(1, 3)
	swapIf(1, 2)

	polyArea2 := func(p [4]Point2f) float32 {
		var a float32
		for i := 0; i < 4; i++ {
			j := (i + 1) & 3
			a += p[i].X*p[j].Y - p[j].X*p[i].Y
		}
		return a
	}

	var maxR2 float32
	for _, p := range r {
		v := sub(p, c)
		if l := sqrLen(v); l > maxR2 {
			maxR2 = l
		}
	}
	a2 := polyArea2(r)
	degThr := float32(1e-6) * (maxR2 + 1)

	if absf(a2) <= degThr {
		tmp := r
		lexFallback(&tmp)
		*quad = tmp
		return
	}

	iTL := 0
	for i := 1; i < 4; i++ {
		if lexYXLess(r[i], r[iTL]) {
			iTL = i
		}
	}

	var t [4]Point2f
	for k := 0; k < 4; k++ {
		t[k] = r[(iTL+k)&3]
	}

	t1Lower := t[1].Y > t[3].Y+epsLex
	sameY := absf(t[1].Y-t[3].Y) <= epsLex
	t1Left := t[1].X < t[3].X-epsLex
	if t1Lower || (sameY && t1Left) {
		t[1], t[3] = t[3], t[1]
	}

	*quad = t
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

func minMax(q [4]Point2f) (minX, minY, maxX, maxY float32) {
	minX, minY, maxX, maxY = q[0].X, q[0].Y, q[0].X, q[0].Y
	for _, p := range q[1:] {
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
	return
}

// AABBIoU computes IoU between the tight axis-aligned bounding boxes of A
// and B. Non-finite input yields 0.
func AABBIoU(a, b [4]Point2f) float32 {
	for _, p := range a {
		if !isFinite(p) {
			return 0
		}
	}
	for _, p := range b {
		if !isFinite(p) {
			return 0
		}
	}

	aMinX, aMinY, aMaxX, aMaxY := minMax(a)
	bMinX, bMinY, bMaxX, bMaxY := minMax(b)

	aw := float32(math.Max(0, float64(aMaxX-aMinX)))
	ah := float32(math.Max(0, float64(aMaxY-aMinY)))
	bw := float32(math.Max(0, float64(bMaxX-bMinX)))
	bh := float32(math.Max(0, float64(bMaxY-bMinY)))

	interW := float32(math.Max(0, float64(minF(aMaxX, bMaxX)-maxF(aMinX, bMinX))))
	interH := float32(math.Max(0, float64(minF(aMaxY, bMaxY)-maxF(aMinY, bMinY))))
	inter := interW * interH

	areaA := aw * ah
	areaB := bw * bh

	denom := areaA + areaB - inter
	if !(denom > 1e-6) {
		return 0
	}
	iou := inter / denom
	if math.IsNaN(float64(iou)) || math.IsInf(float64(iou), 0) {
		return 0
	}
	return clampf(iou, 0, 1)
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// ConvexHull returns pts' convex hull in clockwise order (image coords,
// y-down) via the monotone-chain algorithm.
func ConvexHull(pts []Point2f) []Point2f {
	return convexHull(pts)
}

// convexHull returns pts' convex hull in clockwise order (image coords,
// y-down) via the monotone-chain algorithm.
func convexHull(pts []Point2f) []Point2f {
	uniq := make([]Point2f, len(pts))
	copy(uniq, pts)
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].X != uniq[j].X {
			return uniq[i].X < uniq[j].X
		}
		return uniq[i].Y < uniq[j].Y
	})

	cross := func(o, a, b Point2f) float32 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	n := len(uniq)
	if n < 3 {
		return uniq
	}

	hull := make([]Point2f, 0, 2*n)
	// lower hull
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// upper hull
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]
	return hull
}

// polygonArea returns the absolute area of a simple polygon via the
// shoelace formula.
func polygonArea(p []Point2f) float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}
	return math.Abs(a) / 2
}

// signedArea returns the signed shoelace area (positive for
// counter-clockwise in standard math orientation).
func signedArea(p []Point2f) float64 {
	n := len(p)
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}
	return a / 2
}

// ensureCCW returns p, reversed if necessary, so that its signed area (in
// standard math/cartesian orientation) is non-negative.
func ensureCCW(p []Point2f) []Point2f {
	if signedArea(p) >= 0 {
		return p
	}
	out := make([]Point2f, len(p))
	for i, v := range p {
		out[len(p)-1-i] = v
	}
	return out
}

// clipConvexConvex computes the intersection polygon of two convex
// polygons via Sutherland-Hodgman clipping; clip must be wound CCW.
func clipConvexConvex(subject, clip []Point2f) []Point2f {
	out := subject
	n := len(clip)
	for i := 0; i < n && len(out) > 0; i++ {
		a := clip[i]
		b := clip[(i+1)%n]
		edge := sub(b, a)

		inside := func(p Point2f) bool {
			return cross2(edge, sub(p, a)) >= 0
		}
		intersect := func(p, q Point2f) Point2f {
			de := sub(q, p)
			denom := cross2(edge, de)
			if denom == 0 {
				return p
			}
			t := cross2(edge, sub(a, p)) / denom
			return Point2f{p.X + de.X*t, p.Y + de.Y*t}
		}

		input := out
		out = out[:0:0]
		m := len(input)
		for k := 0; k < m; k++ {
			cur := input[k]
			prev := input[(k-1+m)%m]
			curIn := inside(cur)
			prevIn := inside(prev)
			if curIn {
				if !prevIn {
					out = append(out, intersect(prev, cur))
				}
				out = append(out, cur)
			} else if prevIn {
				out = append(out, intersect(prev, cur))
			}
		}
	}
	return out
}

// QuadIoU computes IoU between A and B. If useFastIoU is set, it delegates
// to AABBIoU; otherwise it computes an exact convex-hull intersection IoU.
// Degenerate hulls (fewer than 3 vertices, or area <= 1e-9) yield 0.
func QuadIoU(a, b [4]Point2f, useFastIoU bool) float32 {
	if useFastIoU {
		return AABBIoU(a, b)
	}

	for _, p := range a {
		if !isFinite(p) {
			return 0
		}
	}
	for _, p := range b {
		if !isFinite(p) {
			return 0
		}
	}

	hullA := ensureCCW(convexHull(a[:]))
	hullB := ensureCCW(convexHull(b[:]))
	if len(hullA) < 3 || len(hullB) < 3 {
		return 0
	}

	areaA := polygonArea(hullA)
	areaB := polygonArea(hullB)
	if !(areaA > 1e-9) || !(areaB > 1e-9) {
		return 0
	}

	inter := clipConvexConvex(hullA, hullB)
	interArea := polygonArea(inter)
	if !(interArea > 0) || math.IsInf(interArea, 0) {
		return 0
	}

	cap := math.Min(areaA, areaB)
	if interArea > cap {
		interArea = cap
	}

	union := areaA + areaB - interArea
	if !(union > 1e-12) || math.IsInf(union, 0) {
		return 0
	}

	iou := interArea / union
	if math.IsNaN(iou) || math.IsInf(iou, 0) {
		return 0
	}
	return clampf(float32(iou), 0, 1)
}

// IntPoint is an integer-pixel 2D point used for contour coordinates.
type IntPoint struct {
	X, Y int
}

// ContourScore returns the mean probability under contour, rasterized
// within prob (a probW x probH row-major plane). Contour points are
// clamped into the contour's image-bounded bounding rect before
// rasterization. Empty or fully out-of-bounds contours return 0.
func ContourScore(prob []float32, probW, probH int, contour []IntPoint) float32 {
	if len(contour) == 0 || probW <= 0 || probH <= 0 {
		return 0
	}

	minX, minY := contour[0].X, contour[0].Y
	maxX, maxY := contour[0].X, contour[0].Y
	for _, p := range contour[1:] {
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

	bx0, by0 := maxInt(minX, 0), maxInt(minY, 0)
	bx1, by1 := minInt(maxX+1, probW), minInt(maxY+1, probH)
	if bx1 <= bx0 || by1 <= by0 {
		return 0
	}
	bw, bh := bx1-bx0, by1-by0

	local := make([]IntPoint, len(contour))
	for i, p := range contour {
		x, y := p.X, p.Y
		if x < bx0 {
			x = bx0
		} else if x >= bx1 {
			x = bx1 - 1
		}
		if y < by0 {
			y = by0
		} else if y >= by1 {
			y = by1 - 1
		}
		local[i] = IntPoint{x - bx0, y - by0}
	}

	mask := rasterizePolygon(local, bw, bh)

	var sum float64
	var count int
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			if !mask[y*bw+x] {
				continue
			}
			sum += float64(prob[(by0+y)*probW+(bx0+x)])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float32(sum / float64(count))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// rasterizePolygon fills a w x h boolean mask for the simple polygon poly
// using a scanline even-odd rule.
func rasterizePolygon(poly []IntPoint, w, h int) []bool {
	mask := make([]bool, w*h)
	if len(poly) < 3 {
		return mask
	}
	n := len(poly)
	for y := 0; y < h; y++ {
		yf := float64(y) + 0.5
		var xs []float64
		for i := 0; i < n; i++ {
			p1 := poly[i]
			p2 := poly[(i+1)%n]
			y1, y2 := float64(p1.Y), float64(p2.Y)
			if y1 == y2 {
				continue
			}
			if (yf >= y1 && yf < y2) || (yf >= y2 && yf < y1) {
				x1, x2 := float64(p1.X), float64(p2.X)
				t := (yf - y1) / (y2 - y1)
				xs = append(xs, x1+t*(x2-x1))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Ceil(xs[i] - 0.5))
			x1 := int(math.Floor(xs[i+1] - 0.5))
			if x0 < 0 {
				x0 = 0
			}
			if x1 >= w {
				x1 = w - 1
			}
			for x := x0; x <= x1; x++ {
				mask[y*w+x] = true
			}
		}
	}
	return mask
}

// AspectFit32 fits (iw,ih) so the longer side equals side (no upscale) when
// side > 0, then aligns both dimensions down to a multiple of 32 (minimum
// 32); when side <= 0, it aligns (iw,ih) down to 32 directly.
func AspectFit32(iw, ih, side int) (int, int) {
	alignDown32 := func(v int) int {
		if v < 32 {
			v = 32
		}
		return v &^ 31
	}

	if iw <= 0 || ih <= 0 {
		return 32, 32
	}
	if side <= 0 {
		return alignDown32(iw), alignDown32(ih)
	}

	m := iw
	if ih > m {
		m = ih
	}
	s := float64(1)
	if m > side {
		s = float64(side) / float64(m)
	}

	nw := int(math.Round(float64(iw) * s))
	nh := int(math.Round(float64(ih) * s))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return alignDown32(nw), alignDown32(nh)
}
