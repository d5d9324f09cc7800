package dbnet

import (
	"math"

	"github.com/screenager/idetgo/internal/geometry"
)

// No corpus example links against OpenCV or an equivalent polygon/contour
// library, so blob-boundary extraction and minimum-area-rectangle fitting
// are hand-rolled here: Moore-neighbor boundary tracing and rotating
// calipers over a convex hull, respectively.

var mooreDirs = [8][2]int{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// findContours returns the outer boundary of every foreground (non-zero)
// blob in an 8-connected w x h binary bitmap, via Moore-neighbor tracing.
// This is an approximation of cv::findContours(RETR_LIST,
// CHAIN_APPROX_SIMPLE): it traces one outer boundary per connected blob and
// does not report holes, which is sufficient for DBNet's use (scoring and
// minimum-area-rectangle fitting only consume the outer boundary).
func findContours(bitmap []byte, w, h int) [][]geometry.IntPoint {
	if w <= 0 || h <= 0 {
		return nil
	}

	at := func(x, y int) byte {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return bitmap[y*w+x]
	}

	isBorder := func(x, y int) bool {
		if at(x, y) == 0 {
			return false
		}
		for _, d := range mooreDirs {
			if at(x+d[0], y+d[1]) == 0 {
				return true
			}
		}
		return false
	}

	visited := make([]bool, w*h)
	inBlob := make([]bool, w*h)
	var contours [][]geometry.IntPoint

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if inBlob[y*w+x] || !isBorder(x, y) {
				continue
			}
			c := traceMoore(at, w, h, x, y, visited)
			if len(c) >= 4 {
				contours = append(contours, c)
			}
			// Mark the whole 8-connected blob so hole borders and other
			// pixels of the same blob start no further trace.
			inBlob[y*w+x] = true
			stack := []int{y*w + x}
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, d := range mooreDirs {
					nx, ny := p%w+d[0], p/w+d[1]
					if at(nx, ny) != 0 && !inBlob[ny*w+nx] {
						inBlob[ny*w+nx] = true
						stack = append(stack, ny*w+nx)
					}
				}
			}
		}
	}
	return contours
}

// traceMoore walks the boundary of the blob touching (sx,sy) clockwise,
// marking every visited boundary pixel in visited. Termination uses a simple
// return-to-start check (not full Jacob's stopping criterion) bounded by a
// generous step cap so a pathological bitmap cannot loop forever.
func traceMoore(at func(x, y int) byte, w, h, sx, sy int, visited []bool) []geometry.IntPoint {
	cx, cy := sx, sy
	backDir := 4 // pretend we arrived from the west, matching the left-to-right raster scan

	out := []geometry.IntPoint{{X: cx, Y: cy}}
	visited[cy*w+cx] = true

	maxSteps := 8*(w+h) + 64
	started := false

	for step := 0; step < maxSteps; step++ {
		found := false
		var nd int
		for k := 1; k <= 8; k++ {
			d := (backDir + k) % 8
			nx, ny := cx+mooreDirs[d][0], cy+mooreDirs[d][1]
			if at(nx, ny) != 0 {
				cx, cy = nx, ny
				nd = d
				found = true
				break
			}
		}
		if !found {
			break
		}
		backDir = (nd + 4) % 8
		visited[cy*w+cx] = true
		out = append(out, geometry.IntPoint{X: cx, Y: cy})

		if started && cx == sx && cy == sy {
			break
		}
		started = true
	}
	return out
}

// minAreaRect fits the minimum-area rectangle enclosing points via rotating
// calipers over their convex hull, returning the rectangle's four corners
// (clockwise) and its (width, height) in the rectangle's own axes.
func minAreaRect(points []geometry.IntPoint) (rect [4]geometry.Point2f, width, height float32) {
	if len(points) == 0 {
		return
	}
	pts := make([]geometry.Point2f, len(points))
	for i, p := range points {
		pts[i] = geometry.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}

	hull := geometry.ConvexHull(pts)
	switch len(hull) {
	case 0:
		return
	case 1:
		return [4]geometry.Point2f{hull[0], hull[0], hull[0], hull[0]}, 0, 0
	case 2:
		return [4]geometry.Point2f{hull[0], hull[1], hull[1], hull[0]}, 0, 0
	}

	n := len(hull)
	bestArea := float32(math.Inf(1))

	for i := 0; i < n; i++ {
		p1 := hull[i]
		p2 := hull[(i+1)%n]
		ex, ey := p2.X-p1.X, p2.Y-p1.Y
		elen := float32(math.Sqrt(float64(ex*ex + ey*ey)))
		if elen < 1e-9 {
			continue
		}
		ux, uy := ex/elen, ey/elen
		vx, vy := -uy, ux

		minU, maxU := float32(math.Inf(1)), float32(math.Inf(-1))
		minV, maxV := float32(math.Inf(1)), float32(math.Inf(-1))
		for _, p := range hull {
			dx, dy := p.X-p1.X, p.Y-p1.Y
			u := dx*ux + dy*uy
			v := dx*vx + dy*vy
			if u < minU {
				minU = u
			}
			if u > maxU {
				maxU = u
			}
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			width = maxU - minU
			height = maxV - minV
			corner := func(u, v float32) geometry.Point2f {
				return geometry.Point2f{X: p1.X + u*ux + v*vx, Y: p1.Y + u*uy + v*vy}
			}
			rect = [4]geometry.Point2f{
				corner(minU, minV),
				corner(maxU, minV),
				corner(maxU, maxV),
				corner(minU, maxV),
			}
		}
	}
	return
}
