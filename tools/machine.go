package tools

import (
	"github.com/camden-git/annotationsys/geometry"
)

// Edit is a committed change to one shape collection. It carries the whole
// updated collection of Kind; the other two fields are nil.
type Edit struct {
	Kind          geometry.Kind
	Masks         []geometry.Mask
	BoundingBoxes []geometry.BoundingBox
	Polygons      []geometry.Polygon
}

// Preview describes the uncommitted state of the gesture in progress so a
// renderer can draw it on top of the committed bundle.
type Preview struct {
	Mode        Mode           `json:"mode"`
	Active      bool           `json:"active"`
	Rect        *Rect          `json:"rect,omitempty"`
	DraftPoints []float64      `json:"draftPoints,omitempty"`
	DragID      string         `json:"dragId,omitempty"`
	DragOffset  geometry.Point `json:"dragOffset"`
	ErasedIDs   []string       `json:"erasedIds,omitempty"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Option func(*Machine)

// WithBrushSize sets the initial brush radius (clamped).
func WithBrushSize(size float64) Option {
	return func(m *Machine) { m.brushSize = ClampBrushSize(size) }
}

// WithLabel sets the label given to newly drawn shapes.
func WithLabel(label string) Option { return func(m *Machine) { m.label = label } }

// Machine interprets pointer gestures against the active mode.
type Machine struct {
	mode      Mode
	brushSize float64
	label     string
	selected  string

	// gesture state, discarded on mode change or gesture completion
	pressed    bool
	anchor     geometry.Point
	cursor     geometry.Point
	draft      []float64 // polygon vertices accumulated so far
	dragKind   geometry.Kind
	dragID     string
	strikeHits []string // ids of masks erased by the current strike
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		mode:      ModeSelect,
		brushSize: DefaultBrushSize,
		label:     DefaultLabel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Mode() Mode         { return m.mode }
func (m *Machine) BrushSize() float64 { return m.brushSize }

// Selected is the id of the shape picked by the last select gesture.
func (m *Machine) Selected() string { return m.selected }

func (m *Machine) SetSelected(id string) { m.selected = id }

// SetMode switches tools and drops any uncommitted draft.
func (m *Machine) SetMode(mode Mode) {
	if mode == m.mode {
		return
	}
	m.Cancel()
	m.mode = mode
}

// SetBrushSize stores the clamped radius. One value is shared by every mode.
func (m *Machine) SetBrushSize(size float64) float64 {
	m.brushSize = ClampBrushSize(size)
	return m.brushSize
}

// Cancel discards the gesture in progress without producing an edit.
func (m *Machine) Cancel() {
	m.pressed = false
	m.anchor = geometry.Point{}
	m.cursor = geometry.Point{}
	m.draft = nil
	m.dragKind = ""
	m.dragID = ""
	m.strikeHits = nil
}

// PointerDown starts a gesture. In polygon mode every press adds a vertex.
func (m *Machine) PointerDown(b *geometry.Bundle, p geometry.Point) *Edit {
	m.pressed = true
	m.anchor = p
	m.cursor = p

	switch m.mode {
	case ModeSelect:
		kind, id, ok := b.HitTest(p)
		if !ok {
			m.dragKind, m.dragID = "", ""
			return nil
		}
		m.dragKind, m.dragID = kind, id
		m.selected = id
	case ModePolygon:
		// a double click delivers the closing vertex twice
		if n := len(m.draft); n >= 2 && m.draft[n-2] == p.X && m.draft[n-1] == p.Y {
			return nil
		}
		m.draft = append(m.draft, p.X, p.Y)
	case ModeEraser:
		m.strikeHits = nil
		m.erase(b, p)
	}
	return nil
}

// PointerMove updates previews; only the eraser changes its working set.
func (m *Machine) PointerMove(b *geometry.Bundle, p geometry.Point) *Edit {
	m.cursor = p
	if !m.pressed {
		return nil
	}
	if m.mode == ModeEraser {
		m.erase(b, p)
	}
	return nil
}

// PointerUp completes the gesture and returns the committed edit, if any.
func (m *Machine) PointerUp(b *geometry.Bundle) *Edit {
	if !m.pressed {
		return nil
	}
	m.pressed = false

	switch m.mode {
	case ModeSelect:
		return m.finishDrag(b)
	case ModeBBox:
		return m.finishBox(b)
	case ModeEraser:
		return m.finishStrike(b)
	}
	// polygon vertices stay in the draft until ClosePolygon
	return nil
}

// ClosePolygon commits the draft polygon when it has at least three vertices.
// Shorter drafts are dropped without an edit.
func (m *Machine) ClosePolygon(b *geometry.Bundle) *Edit {
	if m.mode != ModePolygon {
		return nil
	}
	draft := m.draft
	m.Cancel()

	poly, err := geometry.NewPolygon(draft, m.label, DefaultPolygonColor)
	if err != nil {
		return nil
	}
	var existing []geometry.Polygon
	if b != nil {
		existing = b.Polygons
	}
	polys := append(geometry.ClonePolygons(existing), poly)
	return &Edit{Kind: geometry.KindPolygon, Polygons: polys}
}

func (m *Machine) finishDrag(b *geometry.Bundle) *Edit {
	kind, id := m.dragKind, m.dragID
	dx, dy := m.cursor.X-m.anchor.X, m.cursor.Y-m.anchor.Y
	m.dragKind, m.dragID = "", ""
	if id == "" || b == nil || (dx == 0 && dy == 0) {
		return nil
	}

	switch kind {
	case geometry.KindMask:
		masks := geometry.CloneMasks(b.Masks)
		for i := range masks {
			if masks[i].ID == id {
				masks[i] = masks[i].Translate(dx, dy)
				return &Edit{Kind: kind, Masks: masks}
			}
		}
	case geometry.KindBoundingBox:
		boxes := geometry.CloneBoundingBoxes(b.BoundingBoxes)
		for i := range boxes {
			if boxes[i].ID == id {
				boxes[i] = boxes[i].Translate(dx, dy)
				return &Edit{Kind: kind, BoundingBoxes: boxes}
			}
		}
	case geometry.KindPolygon:
		polys := geometry.ClonePolygons(b.Polygons)
		for i := range polys {
			if polys[i].ID == id {
				polys[i] = polys[i].Translate(dx, dy)
				return &Edit{Kind: kind, Polygons: polys}
			}
		}
	}
	// the shape went away while it was being dragged
	return nil
}

func (m *Machine) finishBox(b *geometry.Bundle) *Edit {
	x, y, w, h := geometry.RectFromCorners(m.anchor, m.cursor)
	if w == 0 || h == 0 {
		return nil
	}
	box, err := geometry.NewBoundingBox(x, y, w, h, m.label, DefaultBoxColor)
	if err != nil {
		return nil
	}
	var existing []geometry.BoundingBox
	if b != nil {
		existing = b.BoundingBoxes
	}
	boxes := append(geometry.CloneBoundingBoxes(existing), box)
	return &Edit{Kind: geometry.KindBoundingBox, BoundingBoxes: boxes}
}

// erase marks every mask of b whose region meets the brush disc. The bundle
// is only read; the strike keeps ids, never shapes.
func (m *Machine) erase(b *geometry.Bundle, p geometry.Point) {
	if b == nil {
		return
	}
	r := m.brushSize
	for _, mask := range b.Masks {
		if m.erased(mask.ID) {
			continue
		}
		c, radius := geometry.BoundingCircle(mask.Points)
		near := (c.X-p.X)*(c.X-p.X)+(c.Y-p.Y)*(c.Y-p.Y) <= (radius+r)*(radius+r)
		if near && geometry.PolygonIntersectsDisc(mask.Points, p, r) {
			m.strikeHits = append(m.strikeHits, mask.ID)
		}
	}
}

func (m *Machine) erased(id string) bool {
	for _, hit := range m.strikeHits {
		if hit == id {
			return true
		}
	}
	return false
}

// finishStrike removes the erased ids from the masks b holds at release.
// Masks that disappeared during the strike are ignored.
func (m *Machine) finishStrike(b *geometry.Bundle) *Edit {
	defer func() { m.strikeHits = nil }()
	if b == nil || len(m.strikeHits) == 0 {
		return nil
	}
	masks := []geometry.Mask{}
	for _, mask := range b.Masks {
		if !m.erased(mask.ID) {
			masks = append(masks, mask)
		}
	}
	if len(masks) == len(b.Masks) {
		return nil
	}
	return &Edit{Kind: geometry.KindMask, Masks: geometry.CloneMasks(masks)}
}

// Preview reports the draft of the gesture in progress.
func (m *Machine) Preview() Preview {
	pv := Preview{Mode: m.mode, Active: m.pressed || len(m.draft) > 0}
	switch m.mode {
	case ModeBBox:
		if m.pressed {
			x, y, w, h := geometry.RectFromCorners(m.anchor, m.cursor)
			pv.Rect = &Rect{X: x, Y: y, Width: w, Height: h}
		}
	case ModePolygon:
		if len(m.draft) > 0 {
			pv.DraftPoints = append([]float64(nil), m.draft...)
		}
	case ModeSelect:
		if m.pressed && m.dragID != "" {
			pv.DragID = m.dragID
			pv.DragOffset = geometry.Point{X: m.cursor.X - m.anchor.X, Y: m.cursor.Y - m.anchor.Y}
		}
	case ModeEraser:
		if len(m.strikeHits) > 0 {
			pv.ErasedIDs = append([]string(nil), m.strikeHits...)
		}
	}
	return pv
}
