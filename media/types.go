package media

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeThumbnail AssetType = "thumbnail"
)

// Metadata holds what is read from an uploaded image at upload time.
type Metadata struct {
	Format      string `json:"format,omitempty"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
	Orientation int    `json:"orientation,omitempty"` // EXIF orientation, 0 when absent
}
