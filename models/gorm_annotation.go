package models

import "gorm.io/datatypes"

// Annotation is the persisted bundle of one image. Each shape collection is
// kept in its own JSON column; Labels is derived from the shapes on save.
// It corresponds to the 'annotations' table.
type Annotation struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ImageID     string         `gorm:"not null;uniqueIndex" json:"imageId"`
	MaskData    datatypes.JSON `gorm:"column:mask_data" json:"maskData"`
	BBoxData    datatypes.JSON `gorm:"column:bbox_data" json:"bboxData"`
	PolygonData datatypes.JSON `gorm:"column:polygon_data" json:"polygonData"`
	Labels      datatypes.JSON `gorm:"column:labels" json:"labels"`
	CreatedAt   int64          `gorm:"not null;autoCreateTime:milli" json:"createdAt"` // Unix milliseconds
	UpdatedAt   int64          `gorm:"not null;autoUpdateTime:milli" json:"updatedAt"` // Unix milliseconds
}

// TableName explicitly sets the table name for GORM.
func (Annotation) TableName() string {
	return "annotations"
}
