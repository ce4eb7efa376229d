package media

import (
	"fmt"
	"image"
	"io"

	"github.com/rwcarlsen/goexif/exif"
	log "github.com/sirupsen/logrus"
)

// ReadMetadata decodes the header of an image and reports its displayed
// size. EXIF orientations 5 to 8 rotate the picture by 90 degrees, so width
// and height are swapped for them.
func ReadMetadata(r io.ReadSeeker) (*Metadata, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to decode image header: %w", err)
	}
	w, h := config.Width, config.Height
	meta := &Metadata{Format: format}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to rewind image: %w", err)
	}
	if orientation, ok := readOrientation(r); ok {
		meta.Orientation = orientation
		if orientation >= 5 && orientation <= 8 {
			w, h = h, w
		}
	}

	meta.Width = &w
	meta.Height = &h
	return meta, nil
}

func readOrientation(r io.Reader) (int, bool) {
	exifData, err := exif.Decode(r)
	if err != nil {
		// most PNG and GIF uploads carry no EXIF block
		log.Debugf("metadata: no EXIF data: %v", err)
		return 0, false
	}
	tag, err := exifData.Get(exif.Orientation)
	if err != nil || tag == nil {
		return 0, false
	}
	val, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return val, true
}
