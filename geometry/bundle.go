package geometry

import (
	"fmt"
	"sort"
	"time"
)

// Bundle is the complete set of shapes attached to one image.
type Bundle struct {
	ImageID       string        `json:"imageId"`
	Masks         []Mask        `json:"masks"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes"`
	Polygons      []Polygon     `json:"polygons"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// NewBundle returns an empty bundle for imageID.
func NewBundle(imageID string, now time.Time) *Bundle {
	return &Bundle{
		ImageID:       imageID,
		Masks:         []Mask{},
		BoundingBoxes: []BoundingBox{},
		Polygons:      []Polygon{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone copies the bundle field by field. Nil collections come back as empty
// slices so a clone always encodes the same way.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	out := &Bundle{
		ImageID:       b.ImageID,
		Masks:         CloneMasks(b.Masks),
		BoundingBoxes: CloneBoundingBoxes(b.BoundingBoxes),
		Polygons:      ClonePolygons(b.Polygons),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	return out
}

func CloneMasks(in []Mask) []Mask {
	out := make([]Mask, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

func CloneBoundingBoxes(in []BoundingBox) []BoundingBox {
	out := make([]BoundingBox, len(in))
	copy(out, in)
	return out
}

func ClonePolygons(in []Polygon) []Polygon {
	out := make([]Polygon, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func (b *Bundle) IsEmpty() bool {
	return b == nil || len(b.Masks)+len(b.BoundingBoxes)+len(b.Polygons) == 0
}

// Count returns the number of shapes in the collection of the given kind.
func (b *Bundle) Count(kind Kind) int {
	if b == nil {
		return 0
	}
	switch kind {
	case KindMask:
		return len(b.Masks)
	case KindBoundingBox:
		return len(b.BoundingBoxes)
	case KindPolygon:
		return len(b.Polygons)
	}
	return 0
}

// Find reports which collection holds the shape with the given id.
func (b *Bundle) Find(id string) (Kind, bool) {
	if b == nil || id == "" {
		return "", false
	}
	for _, m := range b.Masks {
		if m.ID == id {
			return KindMask, true
		}
	}
	for _, bb := range b.BoundingBoxes {
		if bb.ID == id {
			return KindBoundingBox, true
		}
	}
	for _, p := range b.Polygons {
		if p.ID == id {
			return KindPolygon, true
		}
	}
	return "", false
}

// Remove drops the shape with the given id. The affected collection is
// rebuilt so earlier snapshots sharing the old backing array stay intact.
func (b *Bundle) Remove(id string) bool {
	kind, ok := b.Find(id)
	if !ok {
		return false
	}
	switch kind {
	case KindMask:
		out := make([]Mask, 0, len(b.Masks)-1)
		for _, m := range b.Masks {
			if m.ID != id {
				out = append(out, m)
			}
		}
		b.Masks = out
	case KindBoundingBox:
		out := make([]BoundingBox, 0, len(b.BoundingBoxes)-1)
		for _, bb := range b.BoundingBoxes {
			if bb.ID != id {
				out = append(out, bb)
			}
		}
		b.BoundingBoxes = out
	case KindPolygon:
		out := make([]Polygon, 0, len(b.Polygons)-1)
		for _, p := range b.Polygons {
			if p.ID != id {
				out = append(out, p)
			}
		}
		b.Polygons = out
	}
	return true
}

// Labels returns the distinct non-empty labels used in the bundle, sorted.
func (b *Bundle) Labels() []string {
	seen := make(map[string]struct{})
	add := func(label string) {
		if label != "" {
			seen[label] = struct{}{}
		}
	}
	if b != nil {
		for _, m := range b.Masks {
			add(m.Label)
		}
		for _, bb := range b.BoundingBoxes {
			add(bb.Label)
		}
		for _, p := range b.Polygons {
			add(p.Label)
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Validate checks every shape and rejects duplicate ids across collections.
func (b *Bundle) Validate() error {
	ids := make(map[string]struct{})
	check := func(id string, err error) error {
		if err != nil {
			return fmt.Errorf("shape %q: %w", id, err)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("duplicate shape id %q", id)
		}
		ids[id] = struct{}{}
		return nil
	}
	for _, m := range b.Masks {
		if err := check(m.ID, m.Validate()); err != nil {
			return err
		}
	}
	for _, bb := range b.BoundingBoxes {
		if err := check(bb.ID, bb.Validate()); err != nil {
			return err
		}
	}
	for _, p := range b.Polygons {
		if err := check(p.ID, p.Validate()); err != nil {
			return err
		}
	}
	return nil
}
