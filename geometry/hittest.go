package geometry

import "math"

// PointInPolygon uses the even-odd ray casting rule over a flat outline.
func PointInPolygon(points []float64, p Point) bool {
	n := len(points) / 2
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := points[2*i], points[2*i+1]
		xj, yj := points[2*j], points[2*j+1]
		if (yi > p.Y) != (yj > p.Y) && p.X < (xj-xi)*(p.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// segmentDistance is the distance from p to the segment a-b.
func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// PolygonIntersectsDisc reports whether the closed outline and the disc of
// radius r around c share any area.
func PolygonIntersectsDisc(points []float64, c Point, r float64) bool {
	verts := Vertices(points)
	if len(verts) == 0 {
		return false
	}
	if PointInPolygon(points, c) {
		return true
	}
	for i := range verts {
		a := verts[i]
		b := verts[(i+1)%len(verts)]
		if segmentDistance(c, a, b) <= r {
			return true
		}
	}
	return false
}

// BoundingCircle returns the centroid of the outline's bounding rectangle and
// the radius that covers it.
func BoundingCircle(points []float64) (Point, float64) {
	verts := Vertices(points)
	if len(verts) == 0 {
		return Point{}, 0
	}
	minX, minY := verts[0].X, verts[0].Y
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}
	c := Point{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}
	return c, math.Hypot(maxX-c.X, maxY-c.Y)
}

// HitTest finds the topmost shape under p. Polygons render above boxes and
// boxes above masks; within a collection the last one drawn wins.
func (b *Bundle) HitTest(p Point) (Kind, string, bool) {
	if b == nil {
		return "", "", false
	}
	for i := len(b.Polygons) - 1; i >= 0; i-- {
		if PointInPolygon(b.Polygons[i].Points, p) {
			return KindPolygon, b.Polygons[i].ID, true
		}
	}
	for i := len(b.BoundingBoxes) - 1; i >= 0; i-- {
		if b.BoundingBoxes[i].Contains(p) {
			return KindBoundingBox, b.BoundingBoxes[i].ID, true
		}
	}
	for i := len(b.Masks) - 1; i >= 0; i-- {
		if PointInPolygon(b.Masks[i].Points, p) {
			return KindMask, b.Masks[i].ID, true
		}
	}
	return "", "", false
}
