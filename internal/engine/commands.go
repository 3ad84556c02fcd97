package engine

import (
	"encoding/json"

	"github.com/inamate/nestbox/internal/document"
)

// DrawCommand represents a single drawing operation for the frontend to execute.
// The frontend receives a list of these and executes them on a Canvas2D context.
type DrawCommand struct {
	Op        string  `json:"op"`                  // Operation: "rect" or "lasso"
	ObjectID  string  `json:"objectId,omitempty"`  // For hit correlation
	Top       float64 `json:"top"`                 // Canvas-local
	Left      float64 `json:"left"`                // Canvas-local
	Width     float64 `json:"width"`               // Canvas-local
	Height    float64 `json:"height"`              // Canvas-local
	Depth     int     `json:"depth"`               // Nesting depth, 0 for roots
	Selected  bool    `json:"selected,omitempty"`  // Part of the selected subtree
	Highlight string  `json:"highlight,omitempty"` // "parent" or "child" during a gesture
}

// CompileDrawCommands generates a draw command buffer from a store.
// Commands are in painter's order: every parent comes before its children,
// and an in-progress lasso is drawn last. The candidate parent of a lasso
// or a move is highlighted as "parent".
func CompileDrawCommands(s *document.Store, selection string, lasso *LassoView, move *MoveView) []DrawCommand {
	if s == nil {
		return nil
	}

	highlight := make(map[string]string)
	if lasso != nil {
		if lasso.Parent != "" {
			highlight[lasso.Parent] = "parent"
		}
		for _, c := range lasso.Children {
			highlight[c] = "child"
		}
	}
	if move != nil && move.Parent != "" {
		highlight[move.Parent] = "parent"
	}

	c := &compiler{
		store:     s,
		children:  ChildrenIndex(s),
		visited:   make(map[string]bool, s.Len()),
		selection: selection,
		highlight: highlight,
		commands:  make([]DrawCommand, 0, s.Len()+1),
	}
	for _, id := range c.children[""] {
		c.compileNode(id, 0, false)
	}

	// Rectangles on a parent cycle are unreachable from any root; draw them
	// anyway so nothing silently disappears.
	for _, id := range s.IDs() {
		if !c.visited[id] {
			c.compileNode(id, 0, false)
		}
	}

	if lasso != nil {
		c.commands = append(c.commands, DrawCommand{
			Op:     "lasso",
			Top:    lasso.Box.Top,
			Left:   lasso.Box.Left,
			Width:  lasso.Box.Width,
			Height: lasso.Box.Height,
		})
	}
	return c.commands
}

type compiler struct {
	store     *document.Store
	children  map[string][]string
	visited   map[string]bool
	selection string
	highlight map[string]string
	commands  []DrawCommand
}

// compileNode recursively generates draw commands for a rectangle and its
// children. Everything below the selection is marked selected.
func (c *compiler) compileNode(id string, depth int, selected bool) {
	if c.visited[id] {
		return
	}
	c.visited[id] = true
	selected = selected || id == c.selection

	r, ok := c.store.Get(id)
	if !ok {
		return
	}
	c.commands = append(c.commands, DrawCommand{
		Op:        "rect",
		ObjectID:  r.ID,
		Top:       r.Top,
		Left:      r.Left,
		Width:     r.Width,
		Height:    r.Height,
		Depth:     depth,
		Selected:  selected,
		Highlight: c.highlight[r.ID],
	})

	for _, child := range c.children[id] {
		c.compileNode(child, depth+1, selected)
	}
}

// DrawCommandsToJSON serializes draw commands to JSON.
func DrawCommandsToJSON(commands []DrawCommand) (string, error) {
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

// HitTest returns the leaf-most rectangle containing the canvas-local point,
// which is the frontmost one in painter's order, or "".
func HitTest(s *document.Store, x, y float64) string {
	if s == nil {
		return ""
	}
	return LeafMost(s, document.Point(x, y))
}
