package geometry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Columns is the persisted form of a bundle: each collection is encoded on its
// own as a JSON array, matching the mask_data, bbox_data, polygon_data and
// labels columns of the annotations table.
type Columns struct {
	MaskData    []byte
	BBoxData    []byte
	PolygonData []byte
	Labels      []byte
}

// EncodeColumns serialises a bundle. Nil collections are written as [].
func EncodeColumns(b *Bundle) (Columns, error) {
	if b == nil {
		b = &Bundle{}
	}
	var (
		cols Columns
		err  error
	)
	if cols.MaskData, err = json.Marshal(nonNilMasks(b.Masks)); err != nil {
		return Columns{}, fmt.Errorf("failed to encode masks: %w", err)
	}
	if cols.BBoxData, err = json.Marshal(nonNilBoxes(b.BoundingBoxes)); err != nil {
		return Columns{}, fmt.Errorf("failed to encode bounding boxes: %w", err)
	}
	if cols.PolygonData, err = json.Marshal(nonNilPolygons(b.Polygons)); err != nil {
		return Columns{}, fmt.Errorf("failed to encode polygons: %w", err)
	}
	if cols.Labels, err = json.Marshal(b.Labels()); err != nil {
		return Columns{}, fmt.Errorf("failed to encode labels: %w", err)
	}
	return cols, nil
}

// DecodeColumns rebuilds a bundle from its persisted columns. Empty or NULL
// columns decode to empty collections. The labels column is derived data and
// is not read back.
func DecodeColumns(imageID string, cols Columns, createdAt, updatedAt time.Time) (*Bundle, error) {
	b := NewBundle(imageID, createdAt)
	b.UpdatedAt = updatedAt
	if err := decodeColumn(cols.MaskData, &b.Masks); err != nil {
		return nil, fmt.Errorf("failed to decode mask_data for image %s: %w", imageID, err)
	}
	if err := decodeColumn(cols.BBoxData, &b.BoundingBoxes); err != nil {
		return nil, fmt.Errorf("failed to decode bbox_data for image %s: %w", imageID, err)
	}
	if err := decodeColumn(cols.PolygonData, &b.Polygons); err != nil {
		return nil, fmt.Errorf("failed to decode polygon_data for image %s: %w", imageID, err)
	}
	b.Masks = nonNilMasks(b.Masks)
	b.BoundingBoxes = nonNilBoxes(b.BoundingBoxes)
	b.Polygons = nonNilPolygons(b.Polygons)
	return b, nil
}

func decodeColumn(data []byte, dst interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func nonNilMasks(in []Mask) []Mask {
	if in == nil {
		return []Mask{}
	}
	return in
}

func nonNilBoxes(in []BoundingBox) []BoundingBox {
	if in == nil {
		return []BoundingBox{}
	}
	return in
}

func nonNilPolygons(in []Polygon) []Polygon {
	if in == nil {
		return []Polygon{}
	}
	return in
}
