package document

import (
	"github.com/inamate/nestbox/internal/typeid"
)

// NewSampleDocument returns a small nested layout: a frame holding a panel
// that holds two buttons, plus a free-standing note.
func NewSampleDocument() *InDocument {
	frameID := typeid.NewRectID()
	panelID := typeid.NewRectID()
	okID := typeid.NewRectID()
	cancelID := typeid.NewRectID()
	noteID := typeid.NewRectID()

	frame := Rectangle{ID: frameID, Top: 40, Left: 40, Width: 640, Height: 480}
	panel := Rectangle{ID: panelID, Top: 80, Left: 80, Width: 400, Height: 300}.WithParent(frameID)
	ok := Rectangle{ID: okID, Top: 300, Left: 120, Width: 120, Height: 40}.WithParent(panelID)
	cancel := Rectangle{ID: cancelID, Top: 300, Left: 300, Width: 120, Height: 40}.WithParent(panelID)
	note := Rectangle{ID: noteID, Top: 80, Left: 760, Width: 200, Height: 160}

	return &InDocument{
		Rectangles: map[string]Rectangle{
			frameID:  frame,
			panelID:  panel,
			okID:     ok,
			cancelID: cancel,
			noteID:   note,
		},
		Order: []string{frameID, panelID, okID, cancelID, noteID},
	}
}
