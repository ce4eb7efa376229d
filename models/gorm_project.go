package models

import "gorm.io/gorm"

// Project groups images for annotation work.
// It corresponds to the 'projects' table.
type Project struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description *string        `gorm:"" json:"description,omitempty"` // Nullable
	CreatedAt   int64          `gorm:"not null" json:"createdAt"`     // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt   int64          `gorm:"not null" json:"updatedAt"`     // Stored as INTEGER in SQLite, Unix timestamp
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                // For soft deletes

	ImageCount int64 `gorm:"-" json:"imageCount"`
}

// TableName explicitly sets the table name for GORM.
func (Project) TableName() string {
	return "projects"
}

// ProjectImage links an image to a project. An image may belong to several
// projects; removing the link never removes the image.
type ProjectImage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID uint   `gorm:"not null;uniqueIndex:idx_project_image" json:"projectId"`
	ImageID   string `gorm:"not null;uniqueIndex:idx_project_image;index" json:"imageId"`
	CreatedAt int64  `gorm:"not null" json:"createdAt"`
}

func (ProjectImage) TableName() string {
	return "project_images"
}
