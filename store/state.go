package store

import (
	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/tools"
)

// Ticket identifies a request started against the store. A response is only
// applied while its ticket is still current.
type Ticket struct {
	ImageID    string
	Generation uint64
}

// BeginRequest marks a gateway request as in flight and returns its ticket.
// The error of an earlier request is cleared.
func (s *Store) BeginRequest() Ticket {
	s.pending++
	s.err = ""
	return Ticket{ImageID: s.activeID(), Generation: s.generation}
}

// IsCurrent reports whether the active image is still the one the ticket was
// issued for.
func (s *Store) IsCurrent(t Ticket) bool {
	return t.Generation == s.generation && t.ImageID == s.activeID()
}

// FinishRequest marks a request as done. A non-nil err is recorded as the
// user-visible error; success leaves any earlier error in place.
func (s *Store) FinishRequest(err error) {
	if s.pending > 0 {
		s.pending--
	}
	if err != nil {
		s.err = err.Error()
	}
}

func (s *Store) Loading() bool { return s.pending > 0 }

func (s *Store) Error() string { return s.err }

func (s *Store) SetError(msg string) { s.err = msg }

func (s *Store) ClearError() { s.err = "" }

// State is a read-only snapshot of everything a view needs to render.
type State struct {
	ActiveImage      *models.Image    `json:"activeImage"`
	Images           []models.Image   `json:"images"`
	ToolMode         tools.Mode       `json:"toolMode"`
	BrushSize        float64          `json:"brushSize"`
	SelectedEntityID string           `json:"selectedEntityId,omitempty"`
	Loading          bool             `json:"loading"`
	Error            string           `json:"error,omitempty"`
	CanUndo          bool             `json:"canUndo"`
	CanRedo          bool             `json:"canRedo"`
	HistoryPointer   int              `json:"historyPointer"`
	HistoryLength    int              `json:"historyLength"`
	Bundle           *geometry.Bundle `json:"annotations,omitempty"`
	Preview          tools.Preview    `json:"preview"`
}

func (s *Store) State() State {
	st := State{
		ActiveImage:      s.ActiveImage(),
		Images:           s.Images(),
		ToolMode:         s.ToolMode(),
		BrushSize:        s.BrushSize(),
		SelectedEntityID: s.SelectedEntityID(),
		Loading:          s.Loading(),
		Error:            s.err,
		CanUndo:          s.CanUndo(),
		CanRedo:          s.CanRedo(),
		HistoryPointer:   -1,
		Bundle:           s.ActiveBundle(),
		Preview:          s.Preview(),
	}
	if id := s.activeID(); id != "" {
		st.HistoryPointer = s.HistoryPointer(id)
		st.HistoryLength = s.HistoryLen(id)
	}
	if st.Images == nil {
		st.Images = []models.Image{}
	}
	return st
}
