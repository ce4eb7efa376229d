// Package store holds the editing state of the annotation tool: the image
// list, the active image, one bundle and one history per image, and the tool
// machine. It performs no I/O; the editor session feeds gateway results in.
//
// A Store is not safe for concurrent use. Callers serialise access so every
// event runs to completion before the next one starts.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/history"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/tools"
)

var (
	ErrNoActiveImage = errors.New("no active image")
	ErrUnknownEntity = errors.New("unknown entity")
)

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithHistoryLimit bounds every per-image history (0 = unbounded).
func WithHistoryLimit(limit int) Option { return func(s *Store) { s.historyLimit = limit } }

// WithMachine injects a preconfigured tool machine.
func WithMachine(m *tools.Machine) Option { return func(s *Store) { s.machine = m } }

type Store struct {
	activeImage *models.Image
	images      []models.Image
	bundles     map[string]*geometry.Bundle
	histories   map[string]*history.History
	machine     *tools.Machine

	// generation changes whenever the active image does; requests carry the
	// generation they started in so late answers can be recognised.
	generation uint64
	pending    int
	err        string

	historyLimit int
	now          func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		bundles:   make(map[string]*geometry.Bundle),
		histories: make(map[string]*history.History),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.machine == nil {
		s.machine = tools.NewMachine()
	}
	return s
}

// SetActiveImage switches the image being edited. Nothing is loaded or saved;
// the bundle and history of the previous image stay in memory. Any draft of
// the previous image is dropped.
func (s *Store) SetActiveImage(img *models.Image) {
	if img != nil {
		cp := *img
		s.activeImage = &cp
	} else {
		s.activeImage = nil
	}
	s.generation++
	s.machine.Cancel()
	s.machine.SetSelected("")
}

func (s *Store) ActiveImage() *models.Image {
	if s.activeImage == nil {
		return nil
	}
	cp := *s.activeImage
	return &cp
}

func (s *Store) activeID() string {
	if s.activeImage == nil {
		return ""
	}
	return s.activeImage.ID
}

// SetImages replaces the image list, most recent upload first.
func (s *Store) SetImages(images []models.Image) {
	s.images = append([]models.Image(nil), images...)
	sortRecentFirst(s.images)
}

// AddImages merges freshly uploaded images into the list.
func (s *Store) AddImages(images ...models.Image) {
	byID := make(map[string]int, len(s.images))
	for i, img := range s.images {
		byID[img.ID] = i
	}
	for _, img := range images {
		if i, ok := byID[img.ID]; ok {
			s.images[i] = img
			continue
		}
		byID[img.ID] = len(s.images)
		s.images = append(s.images, img)
	}
	sortRecentFirst(s.images)
}

func sortRecentFirst(images []models.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].UploadTime.After(images[j].UploadTime)
	})
}

func (s *Store) Images() []models.Image {
	return append([]models.Image(nil), s.images...)
}

// Image looks an image up in the current list.
func (s *Store) Image(id string) (models.Image, bool) {
	for _, img := range s.images {
		if img.ID == id {
			return img, true
		}
	}
	return models.Image{}, false
}

// RemoveImage forgets an image together with its bundle and history.
func (s *Store) RemoveImage(id string) {
	out := s.images[:0]
	for _, img := range s.images {
		if img.ID != id {
			out = append(out, img)
		}
	}
	s.images = out
	delete(s.bundles, id)
	if h, ok := s.histories[id]; ok {
		h.Clear()
		delete(s.histories, id)
	}
	if s.activeID() == id {
		s.SetActiveImage(nil)
	}
}

// Bundle returns a copy of the bundle of imageID, or an empty bundle when the
// image has none yet.
func (s *Store) Bundle(imageID string) *geometry.Bundle {
	if b, ok := s.bundles[imageID]; ok {
		return b.Clone()
	}
	return geometry.NewBundle(imageID, s.now())
}

// ActiveBundle returns a copy of the active image's bundle, nil without one.
func (s *Store) ActiveBundle() *geometry.Bundle {
	if s.activeImage == nil {
		return nil
	}
	return s.Bundle(s.activeImage.ID)
}

// ensure returns the live bundle of imageID, creating it and seeding its
// history with the empty baseline on first use.
func (s *Store) ensure(imageID string) *geometry.Bundle {
	b, ok := s.bundles[imageID]
	if !ok {
		b = geometry.NewBundle(imageID, s.now())
		s.bundles[imageID] = b
	}
	if _, ok := s.histories[imageID]; !ok {
		h := history.NewWithLimit(s.historyLimit)
		h.Record(b)
		s.histories[imageID] = h
	}
	return b
}

// commit stamps the bundle and records it as a new history entry.
func (s *Store) commit(imageID string, b *geometry.Bundle) {
	b.UpdatedAt = s.now()
	s.histories[imageID].Record(b)
}

// UpsertEntities replaces the collection named by the edit in the active
// bundle and records the result as one history entry.
func (s *Store) UpsertEntities(edit tools.Edit) error {
	switch edit.Kind {
	case geometry.KindMask:
		return s.ReplaceMasks(edit.Masks)
	case geometry.KindBoundingBox:
		return s.ReplaceBoundingBoxes(edit.BoundingBoxes)
	case geometry.KindPolygon:
		return s.ReplacePolygons(edit.Polygons)
	default:
		return fmt.Errorf("unknown shape kind %q", edit.Kind)
	}
}

func (s *Store) ReplaceMasks(masks []geometry.Mask) error {
	return s.replace(func(b *geometry.Bundle) { b.Masks = geometry.CloneMasks(masks) })
}

func (s *Store) ReplaceBoundingBoxes(boxes []geometry.BoundingBox) error {
	return s.replace(func(b *geometry.Bundle) { b.BoundingBoxes = geometry.CloneBoundingBoxes(boxes) })
}

func (s *Store) ReplacePolygons(polygons []geometry.Polygon) error {
	return s.replace(func(b *geometry.Bundle) { b.Polygons = geometry.ClonePolygons(polygons) })
}

// replace applies set to a copy of the active bundle and commits it only when
// the whole bundle is still valid, ids unique across all three collections.
func (s *Store) replace(set func(b *geometry.Bundle)) error {
	id := s.activeID()
	if id == "" {
		return ErrNoActiveImage
	}
	base, ok := s.bundles[id]
	if !ok {
		base = geometry.NewBundle(id, s.now())
	}
	candidate := base.Clone()
	set(candidate)
	if err := candidate.Validate(); err != nil {
		return err
	}
	if !ok {
		s.bundles[id] = base
	}
	s.ensure(id)
	s.bundles[id] = candidate
	s.commit(id, candidate)
	return nil
}

// RemoveEntity deletes one shape of the active bundle by id.
func (s *Store) RemoveEntity(entityID string) error {
	id := s.activeID()
	if id == "" {
		return ErrNoActiveImage
	}
	b := s.ensure(id)
	if !b.Remove(entityID) {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	if s.machine.Selected() == entityID {
		s.machine.SetSelected("")
	}
	s.commit(id, b)
	return nil
}

// Loaded reports whether imageID already has a bundle and history in memory,
// either loaded from storage or created by an edit.
func (s *Store) Loaded(imageID string) bool {
	_, ok := s.histories[imageID]
	return ok
}

// LoadBundle installs a bundle fetched from storage as the new baseline of
// its image: the previous history of that image is replaced.
func (s *Store) LoadBundle(imageID string, b *geometry.Bundle) {
	if b == nil {
		b = geometry.NewBundle(imageID, s.now())
	} else {
		b = b.Clone()
		b.ImageID = imageID
	}
	s.bundles[imageID] = b
	h := history.NewWithLimit(s.historyLimit)
	h.Record(b)
	s.histories[imageID] = h
}

// apply commits an edit produced by the machine. Machine edits are valid by
// construction and an active image is checked by the caller.
func (s *Store) apply(edit *tools.Edit) {
	if edit != nil {
		_ = s.UpsertEntities(*edit)
	}
}

func (s *Store) Undo() bool {
	h, ok := s.histories[s.activeID()]
	if !ok {
		return false
	}
	snap, ok := h.Undo()
	if !ok {
		return false
	}
	s.bundles[s.activeID()] = snap
	return true
}

func (s *Store) Redo() bool {
	h, ok := s.histories[s.activeID()]
	if !ok {
		return false
	}
	snap, ok := h.Redo()
	if !ok {
		return false
	}
	s.bundles[s.activeID()] = snap
	return true
}

func (s *Store) CanUndo() bool {
	h, ok := s.histories[s.activeID()]
	return ok && h.CanUndo()
}

func (s *Store) CanRedo() bool {
	h, ok := s.histories[s.activeID()]
	return ok && h.CanRedo()
}

// HistoryPointer reports the history position of an image, -1 without one.
func (s *Store) HistoryPointer(imageID string) int {
	if h, ok := s.histories[imageID]; ok {
		return h.Pointer()
	}
	return -1
}

func (s *Store) HistoryLen(imageID string) int {
	if h, ok := s.histories[imageID]; ok {
		return h.Len()
	}
	return 0
}

// HistorySnapshot returns the snapshot under the pointer of an image.
func (s *Store) HistorySnapshot(imageID string) (*geometry.Bundle, bool) {
	h, ok := s.histories[imageID]
	if !ok {
		return nil, false
	}
	return h.Current()
}

func (s *Store) ToolMode() tools.Mode { return s.machine.Mode() }

func (s *Store) SetToolMode(mode tools.Mode) { s.machine.SetMode(mode) }

func (s *Store) BrushSize() float64 { return s.machine.BrushSize() }

func (s *Store) SetBrushSize(size float64) float64 { return s.machine.SetBrushSize(size) }

func (s *Store) SelectedEntityID() string { return s.machine.Selected() }

func (s *Store) SetSelectedEntityID(id string) { s.machine.SetSelected(id) }

// PointerDown and friends feed a gesture to the tool machine against the
// active bundle and apply whatever edit it commits. Without an active image
// gestures are ignored.
func (s *Store) PointerDown(p geometry.Point) {
	if b := s.live(); b != nil {
		s.apply(s.machine.PointerDown(b, p))
	}
}

func (s *Store) PointerMove(p geometry.Point) {
	if b := s.live(); b != nil {
		s.apply(s.machine.PointerMove(b, p))
	}
}

func (s *Store) PointerUp() {
	if b := s.live(); b != nil {
		s.apply(s.machine.PointerUp(b))
	}
}

func (s *Store) ClosePolygon() {
	if b := s.live(); b != nil {
		s.apply(s.machine.ClosePolygon(b))
	}
}

// CancelGesture drops the draft in progress.
func (s *Store) CancelGesture() { s.machine.Cancel() }

func (s *Store) Preview() tools.Preview { return s.machine.Preview() }

// live is the active bundle as the machine sees it. The machine only reads
// it, so no copy is taken; an image without a bundle gets an empty one.
func (s *Store) live() *geometry.Bundle {
	id := s.activeID()
	if id == "" {
		return nil
	}
	if b, ok := s.bundles[id]; ok {
		return b
	}
	return geometry.NewBundle(id, s.now())
}
