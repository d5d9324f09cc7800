// Package nms implements score-sorted greedy non-maximum suppression over
// quadrilateral detections, accelerated by a uniform AABB grid.
package nms

import (
	"math"
	"sort"

	"github.com/screenager/idetgo/internal/geometry"
)

// Detection is a scored quadrilateral candidate.
type Detection struct {
	Pts   [4]geometry.Point2f
	Score float32
}

type aabb struct {
	minX, minY, maxX, maxY float32
}

func aabbOf(d Detection) aabb {
	minX, minY, maxX, maxY := d.Pts[0].X, d.Pts[0].Y, d.Pts[0].X, d.Pts[0].Y
	for _, p := range d.Pts[1:] {
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
	return aabb{minX, minY, maxX, maxY}
}

func aabbOverlap(a, b aabb) bool {
	return !(a.maxX < b.minX || b.maxX < a.minX || a.maxY < b.minY || b.maxY < a.minY)
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

// Suppress runs greedy NMS over dets: detections are visited in descending
// score order, and any lower-ranked detection whose IoU with a kept
// detection is >= iouThr is suppressed.
//
// iouThr <= 0 disables suppression (returns all detections sorted by
// score); iouThr >= 1 returns only the single best-scoring detection.
func Suppress(dets []Detection, iouThr float32, useFastIoU bool) []Detection {
	n := len(dets)
	if n == 0 {
		return nil
	}

	if iouThr <= 0 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return dets[order[a]].Score > dets[order[b]].Score })
		out := make([]Detection, n)
		for i, idx := range order {
			out[i] = dets[idx]
		}
		return out
	}

	if iouThr >= 1 {
		best := 0
		for i := 1; i < n; i++ {
			if dets[i].Score > dets[best].Score {
				best = i
			}
		}
		return []Detection{dets[best]}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dets[order[a]].Score > dets[order[b]].Score })

	rank := make([]int, n)
	for p, idx := range order {
		rank[idx] = p
	}

	boxes := make([]aabb, n)
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	var meanW, meanH float32

	for i, d := range dets {
		b := aabbOf(d)
		boxes[i] = b
		if b.minX < minX {
			minX = b.minX
		}
		if b.minY < minY {
			minY = b.minY
		}
		if b.maxX > maxX {
			maxX = b.maxX
		}
		if b.maxY > maxY {
			maxY = b.maxY
		}
		meanW += maxF(1, b.maxX-b.minX)
		meanH += maxF(1, b.maxY-b.minY)
	}
	meanW /= float32(n)
	meanH /= float32(n)

	ox, oy := minX, minY
	if math.IsInf(float64(ox), 0) {
		ox = 0
	}
	if math.IsInf(float64(oy), 0) {
		oy = 0
	}

	spanX := maxF(1, maxX-ox)
	spanY := maxF(1, maxY-oy)

	cellF := clampf(0.5*(meanW+meanH), 48, 256)
	cell := int(math.Round(float64(cellF)))
	switch {
	case cell < 64:
		cell = 64
	case cell < 128:
		cell = 128
	default:
		cell = 256
	}

	nx := maxInt(1, int(math.Floor(float64(spanX)/float64(cell)))+1)
	ny := maxInt(1, int(math.Floor(float64(spanY)/float64(cell)))+1)
	gridCells := uint64(nx) * uint64(ny)
	useGrid := gridCells <= 2_000_000

	cellID := func(x, y int) uint64 { return uint64(y)*uint64(nx) + uint64(x) }
	cellSpan := func(b aabb) (x0, x1, y0, y1 int) {
		x0 = clampi(int(math.Floor(float64((b.minX-ox)/float32(cell)))), 0, nx-1)
		x1 = clampi(int(math.Floor(float64((b.maxX-ox)/float32(cell)))), 0, nx-1)
		y0 = clampi(int(math.Floor(float64((b.minY-oy)/float32(cell)))), 0, ny-1)
		y1 = clampi(int(math.Floor(float64((b.maxY-oy)/float32(cell)))), 0, ny-1)
		return
	}

	var offsets, cursor []uint32
	var items []int32

	if useGrid {
		counts := make([]uint32, gridCells)
		for _, b := range boxes {
			x0, x1, y0, y1 := cellSpan(b)
			for y := y0; y <= y1; y++ {
				for x := x0; x <= x1; x++ {
					counts[cellID(x, y)]++
				}
			}
		}

		offsets = make([]uint32, gridCells+1)
		for c := uint64(0); c < gridCells; c++ {
			offsets[c+1] = offsets[c] + counts[c]
		}

		items = make([]int32, offsets[gridCells])
		cursor = append([]uint32(nil), offsets...)

		for i, b := range boxes {
			x0, x1, y0, y1 := cellSpan(b)
			for y := y0; y <= y1; y++ {
				for x := x0; x <= x1; x++ {
					id := cellID(x, y)
					pos := cursor[id]
					cursor[id]++
					items[pos] = int32(i)
				}
			}
		}
	}

	suppressed := make([]bool, n)
	keep := make([]Detection, 0, n)
	seen := make([]int, n)
	for i := range seen {
		seen[i] = -1
	}
	stamp := 0

	processJ := func(i, j int) {
		if j == i || suppressed[j] || rank[j] <= rank[i] {
			return
		}
		if !aabbOverlap(boxes[i], boxes[j]) {
			return
		}
		iou := geometry.QuadIoU(dets[i].Pts, dets[j].Pts, useFastIoU)
		if iou >= iouThr {
			suppressed[j] = true
		}
	}

	for p := 0; p < n; p++ {
		i := order[p]
		if suppressed[i] {
			continue
		}
		keep = append(keep, dets[i])
		ai := boxes[i]
		stamp++

		if !useGrid {
			for q := p + 1; q < n; q++ {
				j := order[q]
				if suppressed[j] {
					continue
				}
				if !aabbOverlap(ai, boxes[j]) {
					continue
				}
				processJ(i, j)
			}
			continue
		}

		x0, x1, y0, y1 := cellSpan(ai)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				id := cellID(x, y)
				beg, end := offsets[id], offsets[id+1]
				for k := beg; k < end; k++ {
					j := int(items[k])
					if seen[j] == stamp {
						continue
					}
					seen[j] = stamp
					processJ(i, j)
				}
			}
		}
	}

	return keep
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

func maxF(a, b float32) float32 {
	if a > b {
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
