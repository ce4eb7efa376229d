// Package geometry defines the annotation shapes attached to an image and the
// per-image bundle that groups them. Shapes are value objects: every operation
// that changes a shape returns a new value and never touches the points slice
// of the receiver.
package geometry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MinPolygonPoints is the number of flat coordinates (3 vertices) a committed
// mask or polygon needs.
const MinPolygonPoints = 6

var (
	ErrOddPointCount = errors.New("point sequence has odd length")
	ErrTooFewPoints  = errors.New("point sequence has fewer than 3 vertices")
	ErrNegativeSize  = errors.New("bounding box has negative width or height")
)

// Kind names one of the three shape collections of a bundle. The values match
// the JSON field names of the bundle.
type Kind string

const (
	KindMask        Kind = "masks"
	KindBoundingBox Kind = "boundingBoxes"
	KindPolygon     Kind = "polygons"
)

// ParseKind accepts the bundle field names plus a few short aliases used by
// the editor API.
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindMask), "mask":
		return KindMask, nil
	case string(KindBoundingBox), "bbox", "bboxes", "boundingBox":
		return KindBoundingBox, nil
	case string(KindPolygon), "polygon":
		return KindPolygon, nil
	default:
		return "", fmt.Errorf("unknown shape kind %q", s)
	}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mask is a closed freehand region.
type Mask struct {
	ID      string    `json:"id"`
	Points  []float64 `json:"points"` // flat [x0, y0, x1, y1, ...]
	Label   string    `json:"label"`
	Color   string    `json:"color,omitempty"`
	Opacity *float64  `json:"opacity,omitempty"`
}

// BoundingBox is an axis-aligned rectangle anchored at its top-left corner.
type BoundingBox struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label"`
	Color  string  `json:"color,omitempty"`
}

// Polygon is a closed polygon drawn vertex by vertex.
type Polygon struct {
	ID       string    `json:"id"`
	Points   []float64 `json:"points"` // flat [x0, y0, x1, y1, ...]
	Label    string    `json:"label"`
	Color    string    `json:"color,omitempty"`
	Editable *bool     `json:"editable,omitempty"`
}

// NewID returns a fresh shape identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidatePoints checks a flat point sequence is usable as a committed mask or
// polygon outline.
func ValidatePoints(points []float64) error {
	if len(points)%2 != 0 {
		return ErrOddPointCount
	}
	if len(points) < MinPolygonPoints {
		return ErrTooFewPoints
	}
	return nil
}

// TranslatePoints returns a copy of points shifted by (dx, dy). Ordering and
// the flat encoding are preserved.
func TranslatePoints(points []float64, dx, dy float64) []float64 {
	out := make([]float64, len(points))
	for i, v := range points {
		if i%2 == 0 {
			out[i] = v + dx
		} else {
			out[i] = v + dy
		}
	}
	return out
}

// Vertices converts a flat sequence into points. A trailing odd coordinate is
// ignored.
func Vertices(points []float64) []Point {
	out := make([]Point, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		out = append(out, Point{X: points[i], Y: points[i+1]})
	}
	return out
}

func clonePoints(points []float64) []float64 {
	if points == nil {
		return nil
	}
	out := make([]float64, len(points))
	copy(out, points)
	return out
}

// NewMask validates points and builds a mask with a fresh id.
func NewMask(points []float64, label, color string) (Mask, error) {
	if err := ValidatePoints(points); err != nil {
		return Mask{}, err
	}
	return Mask{ID: NewID(), Points: clonePoints(points), Label: label, Color: color}, nil
}

func (m Mask) Validate() error {
	if m.ID == "" {
		return errors.New("mask has empty id")
	}
	return ValidatePoints(m.Points)
}

func (m Mask) Translate(dx, dy float64) Mask {
	out := m.Clone()
	out.Points = TranslatePoints(m.Points, dx, dy)
	return out
}

// Clone returns a copy that shares no memory with m.
func (m Mask) Clone() Mask {
	out := m
	out.Points = clonePoints(m.Points)
	if m.Opacity != nil {
		v := *m.Opacity
		out.Opacity = &v
	}
	return out
}

// NewPolygon validates points and builds a polygon with a fresh id.
func NewPolygon(points []float64, label, color string) (Polygon, error) {
	if err := ValidatePoints(points); err != nil {
		return Polygon{}, err
	}
	return Polygon{ID: NewID(), Points: clonePoints(points), Label: label, Color: color}, nil
}

func (p Polygon) Validate() error {
	if p.ID == "" {
		return errors.New("polygon has empty id")
	}
	return ValidatePoints(p.Points)
}

func (p Polygon) Translate(dx, dy float64) Polygon {
	out := p.Clone()
	out.Points = TranslatePoints(p.Points, dx, dy)
	return out
}

func (p Polygon) Clone() Polygon {
	out := p
	out.Points = clonePoints(p.Points)
	if p.Editable != nil {
		v := *p.Editable
		out.Editable = &v
	}
	return out
}

// RectFromCorners normalises two opposite corners into origin and size.
func RectFromCorners(a, b Point) (x, y, width, height float64) {
	x, width = a.X, b.X-a.X
	if width < 0 {
		x, width = b.X, -width
	}
	y, height = a.Y, b.Y-a.Y
	if height < 0 {
		y, height = b.Y, -height
	}
	return x, y, width, height
}

// NewBoundingBox builds a box with a fresh id. Zero-area boxes are accepted
// here; the bbox tool is what refuses them.
func NewBoundingBox(x, y, width, height float64, label, color string) (BoundingBox, error) {
	b := BoundingBox{ID: NewID(), X: x, Y: y, Width: width, Height: height, Label: label, Color: color}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

func (b BoundingBox) Validate() error {
	if b.ID == "" {
		return errors.New("bounding box has empty id")
	}
	if b.Width < 0 || b.Height < 0 {
		return ErrNegativeSize
	}
	return nil
}

func (b BoundingBox) Translate(dx, dy float64) BoundingBox {
	b.X += dx
	b.Y += dy
	return b
}

// Degenerate reports a zero-area box.
func (b BoundingBox) Degenerate() bool {
	return b.Width == 0 || b.Height == 0
}

func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}
