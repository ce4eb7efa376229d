// Package editor runs the annotation store as a single editing session. Every
// event takes the session lock and runs to completion before the next one
// starts. Gateway calls run outside the lock; their responses are applied
// afterwards if the request is still current.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/realtime"
	"github.com/camden-git/annotationsys/store"
)

var ErrUnknownImage = errors.New("unknown image")

// Publisher receives an event after every change of the session state.
// Broadcast is called with the session lock held, so events arrive in the
// order the changes happened; it must not block.
type Publisher interface {
	Broadcast(event realtime.Event)
}

type Option func(*Session)

// WithTimeout bounds every gateway call (0 = no bound).
func WithTimeout(d time.Duration) Option { return func(s *Session) { s.timeout = d } }

func WithPublisher(p Publisher) Option { return func(s *Session) { s.pub = p } }

type Session struct {
	mu      sync.Mutex
	store   *store.Store
	gw      gateway.Gateway
	pub     Publisher
	timeout time.Duration
}

func NewSession(st *store.Store, gw gateway.Gateway, opts ...Option) *Session {
	s := &Session{store: st, gw: gw}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the session for rendering.
func (s *Session) State() store.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.State()
}

// Do runs one synchronous event against the store and publishes the result.
func (s *Session) Do(fn func(st *store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.store)
	s.publish(realtime.EventState, s.store.State())
	return err
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// begin starts a gateway request under the lock.
func (s *Session) begin() store.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.BeginRequest()
}

// finish completes a request: the pending count drops and a failure is
// recorded. apply runs only when err is nil; its result is published.
func (s *Session) finish(err error, apply func(st *store.Store)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.FinishRequest(err)
	if err == nil && apply != nil {
		apply(s.store)
	}
	if err != nil {
		s.pubEvent(realtime.Event{Type: realtime.EventError, Error: err.Error()})
	}
	s.publish(realtime.EventState, s.store.State())
}

// Refresh reloads the image list, optionally restricted to one project.
func (s *Session) Refresh(ctx context.Context, projectID *uint) error {
	s.begin()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	images, err := s.gw.ListImages(ctx, projectID)
	if err != nil {
		err = fmt.Errorf("failed to load images: %w", err)
	}
	s.finish(err, func(st *store.Store) { st.SetImages(images) })
	return err
}

// Upload stores new images and adds them to the list.
func (s *Session) Upload(ctx context.Context, files []gateway.UploadFile, projectID *uint) ([]models.Image, error) {
	s.begin()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	images, err := s.gw.UploadImages(ctx, files, projectID)
	if err != nil {
		err = fmt.Errorf("upload failed: %w", err)
	}
	s.finish(err, func(st *store.Store) { st.AddImages(images...) })
	return images, err
}

// DeleteImage deletes an image from storage and forgets it locally.
func (s *Session) DeleteImage(ctx context.Context, id string) error {
	s.begin()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.gw.DeleteImage(ctx, id)
	if err != nil {
		err = fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	s.finish(err, func(st *store.Store) { st.RemoveImage(id) })
	return err
}

// Activate makes imageID the image being edited; an empty id clears the
// selection. The stored bundle is fetched the first time an image is opened.
// A response that arrives after the user moved on is dropped, as is one for
// an image that was edited while the fetch was in flight.
func (s *Session) Activate(ctx context.Context, imageID string) error {
	s.mu.Lock()
	if imageID == "" {
		s.store.SetActiveImage(nil)
		s.publish(realtime.EventState, s.store.State())
		s.mu.Unlock()
		return nil
	}
	img, ok := s.store.Image(imageID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	s.store.SetActiveImage(&img)
	if s.store.Loaded(imageID) {
		s.publish(realtime.EventState, s.store.State())
		s.mu.Unlock()
		return nil
	}
	ticket := s.store.BeginRequest()
	s.publish(realtime.EventState, s.store.State())
	s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	bundle, err := s.gw.GetAnnotation(ctx, imageID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.FinishRequest(nil)
	if !s.store.IsCurrent(ticket) {
		log.WithField("image", imageID).Debug("editor: dropping stale annotation response")
		s.publish(realtime.EventState, s.store.State())
		return nil
	}
	if err != nil {
		err = fmt.Errorf("failed to load annotations: %w", err)
		s.store.SetError(err.Error())
		s.pubEvent(realtime.Event{Type: realtime.EventError, ImageID: imageID, Error: err.Error()})
	} else if s.store.Loaded(imageID) {
		log.WithField("image", imageID).Warn("editor: image edited while loading, keeping local edits")
	} else {
		s.store.LoadBundle(imageID, bundle)
	}
	s.publish(realtime.EventState, s.store.State())
	return err
}

// Save persists the bundle of the active image. Concurrent saves are not
// coalesced; the last one to reach storage wins.
func (s *Session) Save(ctx context.Context) (string, error) {
	s.mu.Lock()
	active := s.store.ActiveImage()
	if active == nil {
		s.mu.Unlock()
		return "", store.ErrNoActiveImage
	}
	bundle := s.store.ActiveBundle()
	s.store.BeginRequest()
	s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	id, err := s.gw.SaveAnnotation(ctx, active.ID, bundle)
	if err != nil {
		err = fmt.Errorf("failed to save annotations: %w", err)
	}
	s.finish(err, nil)
	if err == nil {
		log.WithFields(log.Fields{"image": active.ID, "annotation": id}).Info("editor: annotations saved")
		s.pubEvent(realtime.Event{Type: realtime.EventSaved, ImageID: active.ID, Status: id})
	}
	return id, err
}

// UpdateImage replaces the list entry of an image that is already known,
// for example when its thumbnail becomes available.
func (s *Session) UpdateImage(img models.Image) {
	s.Do(func(st *store.Store) error {
		if _, ok := st.Image(img.ID); ok {
			st.AddImages(img)
		}
		return nil
	})
}

func (s *Session) publish(eventType string, state store.State) {
	ev := realtime.Event{Type: eventType, Payload: state}
	if state.ActiveImage != nil {
		ev.ImageID = state.ActiveImage.ID
	}
	s.pubEvent(ev)
}

func (s *Session) pubEvent(ev realtime.Event) {
	if s.pub != nil {
		s.pub.Broadcast(ev)
	}
}
