// Package tools turns pointer gestures into shape edits. The machine never
// owns shape data between calls beyond the draft of the gesture in progress.
package tools

import "fmt"

type Mode string

const (
	ModeSelect  Mode = "select"
	ModeEraser  Mode = "eraser"
	ModePolygon Mode = "polygon"
	ModeBBox    Mode = "bbox"
)

const (
	DefaultBrushSize = 10
	MinBrushSize     = 1
	MaxBrushSize     = 50
)

// Default label and colour given to shapes drawn with the tools.
const (
	DefaultLabel        = "new_object"
	DefaultPolygonColor = "#ff0000"
	DefaultBoxColor     = "#00ff00"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSelect, ModeEraser, ModePolygon, ModeBBox:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown tool mode %q", s)
	}
}

// ClampBrushSize keeps a brush radius inside [MinBrushSize, MaxBrushSize].
func ClampBrushSize(size float64) float64 {
	if size < MinBrushSize {
		return MinBrushSize
	}
	if size > MaxBrushSize {
		return MaxBrushSize
	}
	return size
}
