package media

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	ThumbnailJpegQuality   = 90
	ThumbnailFileExtension = ".jpg"
)

// Processor handles media transformations like thumbnailing. It relies on a
// Store implementation for reading originals and saving the results.
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// ThumbnailFromFile opens a stored original, applies its EXIF orientation and
// generates its thumbnail.
func (p *Processor) ThumbnailFromFile(originalRelPath string, maxSize int) (string, error) {
	rc, _, err := p.store.Get(originalRelPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", originalRelPath, err)
	}
	return p.GenerateThumbnail(img, originalRelPath, maxSize)
}

// GenerateThumbnail creates a thumbnail where the longest side matches maxSize.
// saves the result using the Store. returns relative path to saved thumb or error.
func (p *Processor) GenerateThumbnail(originalImg image.Image, originalRelPath string, maxSize int) (string, error) {
	origBounds := originalImg.Bounds()
	origWidth := origBounds.Dx()
	origHeight := origBounds.Dy()
	if origWidth <= 0 || origHeight <= 0 {
		return "", fmt.Errorf("invalid original image dimensions: %dx%d", origWidth, origHeight)
	}

	newWidth, newHeight := thumbnailSize(origWidth, origHeight, maxSize)
	thumb := imaging.Resize(originalImg, newWidth, newHeight, imaging.Lanczos)

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality))
		if err != nil {
			log.Errorf("processor: failed to encode thumbnail: %v", err)
			writer.CloseWithError(fmt.Errorf("thumbnail encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	targetFilename := uuid.New().String() + ThumbnailFileExtension
	savedRelPath, _, err := p.store.Save(AssetTypeThumbnail, targetFilename, reader)
	if err != nil {
		reader.CloseWithError(err)
		return "", fmt.Errorf("failed to save thumbnail via store: %w", err)
	}

	log.Debugf("processor: generated thumbnail for %s at %s", originalRelPath, savedRelPath)
	return savedRelPath, nil
}

// thumbnailSize scales w x h so the longest side is at most maxSize. Images
// already small enough keep their size.
func thumbnailSize(w, h, maxSize int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxSize {
		return w, h
	}
	scale := float64(maxSize) / float64(longest)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return maxInt(1, nw), maxInt(1, nh)
}
