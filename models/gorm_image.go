package models

import (
	"net/url"
	"path"
	"time"

	"gorm.io/gorm"
)

// Thumbnail processing states.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Image represents an uploaded image in the database using GORM.
// It corresponds to the 'images' table.
type Image struct {
	ID           string    `gorm:"primaryKey" json:"id"` // random UUID assigned at upload
	Filename     string    `gorm:"not null;unique" json:"filename"`
	OriginalName string    `gorm:"not null" json:"originalName"`
	FilePath     string    `gorm:"not null" json:"-"` // path relative to the storage root
	Size         int64     `gorm:"not null" json:"size"`
	MimeType     string    `gorm:"" json:"mimeType,omitempty"`
	Width        *int      `gorm:"" json:"width,omitempty"`  // Nullable
	Height       *int      `gorm:"" json:"height,omitempty"` // Nullable
	UploadTime   time.Time `gorm:"not null;index" json:"uploadTime"`

	ThumbnailPath        *string `gorm:"" json:"-"` // Nullable, relative to the storage root
	ThumbnailStatus      string  `gorm:"not null;default:pending" json:"thumbnailStatus"`
	ThumbnailProcessedAt *int64  `gorm:"" json:"-"`                         // Nullable, Unix timestamp
	ThumbnailError       *string `gorm:"" json:"thumbnailError,omitempty"` // Nullable

	URL          string `gorm:"-" json:"url"`
	ThumbnailURL string `gorm:"-" json:"thumbnailUrl,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// AfterFind fills the public URLs, which are derived from the stored paths.
func (img *Image) AfterFind(tx *gorm.DB) error {
	img.FillURLs()
	return nil
}

// FillURLs derives URL and ThumbnailURL from the stored file names.
func (img *Image) FillURLs() {
	img.URL = "/uploads/" + url.PathEscape(img.Filename)
	img.ThumbnailURL = ""
	if img.ThumbnailPath != nil && *img.ThumbnailPath != "" {
		img.ThumbnailURL = "/thumbnails/" + url.PathEscape(path.Base(*img.ThumbnailPath))
	}
}
