package media

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/camden-git/annotationsys/geometry"
)

const overlayThickness = 2

var (
	defaultMaskColor    = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	defaultPolygonColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	defaultBoxColor     = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
)

// RenderOverlay returns a copy of img with the outlines of every shape in b
// drawn on top: masks first, then boxes, then polygons.
func RenderOverlay(img image.Image, b *geometry.Bundle) *image.NRGBA {
	dst := imaging.Clone(img)
	if b == nil {
		return dst
	}
	for _, m := range b.Masks {
		drawOutline(dst, m.Points, parseColor(m.Color, defaultMaskColor))
	}
	for _, bb := range b.BoundingBoxes {
		pts := []float64{bb.X, bb.Y, bb.X + bb.Width, bb.Y, bb.X + bb.Width, bb.Y + bb.Height, bb.X, bb.Y + bb.Height}
		drawOutline(dst, pts, parseColor(bb.Color, defaultBoxColor))
	}
	for _, p := range b.Polygons {
		drawOutline(dst, p.Points, parseColor(p.Color, defaultPolygonColor))
	}
	return dst
}

// parseColor reads "#rgb" or "#rrggbb"; anything else yields fallback.
func parseColor(s string, fallback color.NRGBA) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// drawOutline strokes the closed path through the flat point list.
func drawOutline(dst *image.NRGBA, points []float64, c color.NRGBA) {
	vs := geometry.Vertices(points)
	if len(vs) < 2 {
		return
	}
	for i := range vs {
		a, b := vs[i], vs[(i+1)%len(vs)]
		drawLine(dst, a, b, c)
	}
}

func drawLine(dst *image.NRGBA, a, b geometry.Point, c color.NRGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	if steps == 0 {
		plot(dst, a.X, a.Y, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plot(dst, a.X+(b.X-a.X)*t, a.Y+(b.Y-a.Y)*t, c)
	}
}

func plot(dst *image.NRGBA, x, y float64, c color.NRGBA) {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	for dy := 0; dy < overlayThickness; dy++ {
		for dx := 0; dx < overlayThickness; dx++ {
			p := image.Pt(cx+dx, cy+dy)
			if p.In(dst.Rect) {
				dst.SetNRGBA(p.X, p.Y, c)
			}
		}
	}
}

// Preview decodes a stored original, applies its EXIF orientation, draws the
// bundle onto it and scales it so its longest side is at most maxSize
// (0 keeps the full size).
func (p *Processor) Preview(originalRelPath string, b *geometry.Bundle, maxSize int) (*image.NRGBA, error) {
	rc, _, err := p.store.Get(originalRelPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", originalRelPath, err)
	}
	out := RenderOverlay(img, b)
	if maxSize > 0 {
		w, h := out.Rect.Dx(), out.Rect.Dy()
		if maxInt(w, h) > maxSize {
			nw, nh := thumbnailSize(w, h, maxSize)
			out = imaging.Resize(out, nw, nh, imaging.Lanczos)
		}
	}
	return out, nil
}
