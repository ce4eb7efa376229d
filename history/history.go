// Package history keeps the linear undo/redo sequence of bundle snapshots for
// a single image.
package history

import "github.com/camden-git/annotationsys/geometry"

// History is a linear sequence of snapshots with a pointer at the active one.
// Committing after an undo discards the redo tail; there is no branching.
type History struct {
	sequence []*geometry.Bundle
	pointer  int
	limit    int // 0 means unbounded
}

func New() *History {
	return &History{pointer: -1}
}

// NewWithLimit keeps at most limit snapshots, dropping the oldest first.
func NewWithLimit(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{pointer: -1, limit: limit}
}

// Record truncates the redo tail, stores a copy of b and makes it current.
func (h *History) Record(b *geometry.Bundle) {
	h.sequence = h.sequence[:h.pointer+1]
	h.sequence = append(h.sequence, b.Clone())
	if h.limit > 0 && len(h.sequence) > h.limit {
		drop := len(h.sequence) - h.limit
		// clear the dropped slots so the snapshots can be collected
		for i := 0; i < drop; i++ {
			h.sequence[i] = nil
		}
		h.sequence = append([]*geometry.Bundle(nil), h.sequence[drop:]...)
	}
	h.pointer = len(h.sequence) - 1
}

// Undo steps back one snapshot and returns a copy of it. It is a no-op at the
// first snapshot.
func (h *History) Undo() (*geometry.Bundle, bool) {
	if h.pointer <= 0 {
		return nil, false
	}
	h.pointer--
	return h.sequence[h.pointer].Clone(), true
}

// Redo steps forward one snapshot and returns a copy of it.
func (h *History) Redo() (*geometry.Bundle, bool) {
	if h.pointer >= len(h.sequence)-1 {
		return nil, false
	}
	h.pointer++
	return h.sequence[h.pointer].Clone(), true
}

func (h *History) Clear() {
	h.sequence = nil
	h.pointer = -1
}

// Current returns a copy of the snapshot under the pointer.
func (h *History) Current() (*geometry.Bundle, bool) {
	if h.pointer < 0 {
		return nil, false
	}
	return h.sequence[h.pointer].Clone(), true
}

func (h *History) Pointer() int  { return h.pointer }
func (h *History) Len() int      { return len(h.sequence) }
func (h *History) CanUndo() bool { return h.pointer > 0 }
func (h *History) CanRedo() bool { return h.pointer < len(h.sequence)-1 }
