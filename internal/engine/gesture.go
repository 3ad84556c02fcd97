package engine

import (
	"log/slog"

	"github.com/inamate/nestbox/internal/document"
)

// Point is a pointer position in surface coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Offset is the canvas position inside the surface, captured when a
// gesture starts.
type Offset struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

func (o Offset) local(p Point) (float64, float64) {
	return p.X - o.Left, p.Y - o.Top
}

// LassoView is the renderer-facing copy of an in-progress lasso.
type LassoView struct {
	Box      document.Bounds `json:"box"`
	Parent   string          `json:"parent,omitempty"`
	Children []string        `json:"children"`
}

// lassoGesture lives between pointer-down and pointer-up in draw mode. The
// store is not touched until release.
type lassoGesture struct {
	origin   Point
	offset   Offset
	box      document.Bounds
	parent   string
	children []string
}

// MoveView is the renderer-facing copy of an in-progress move. Parent is
// the rectangle the moved one would be dropped into, "" for the canvas.
type MoveView struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
}

// moveGesture lives between pointer-down and pointer-up in select mode.
type moveGesture struct {
	origin  Point
	base    *document.Store // store at pointer-down, restored on cancel
	rootID  string
	ids     []string // rootID first, then its descendants in store order
	initial map[string]document.Bounds
	parent  string
	moved   bool
}

func (e *Engine) startMove(p Point, x, y float64) {
	id := LeafMost(e.store, document.Point(x, y))
	e.selection = id
	if id == "" {
		return
	}

	sub, err := Subtree(e.store, id)
	e.fault(err, "subtree of selection")

	ids := make([]string, 0, len(sub))
	ids = append(ids, id)
	initial := make(map[string]document.Bounds, len(sub))
	for _, sid := range sub {
		r, _ := e.store.Get(sid)
		initial[sid] = r.Bounds()
		if sid != id {
			ids = append(ids, sid)
		}
	}

	root, _ := e.store.Get(id)
	e.move = &moveGesture{
		origin:  p,
		base:    e.store,
		rootID:  id,
		ids:     ids,
		initial: initial,
		parent:  root.ParentID(),
	}
}

func (e *Engine) updateMove(p Point) {
	m := e.move
	dx, dy := p.X-m.origin.X, p.Y-m.origin.Y

	b := m.base.Edit()
	for _, id := range m.ids {
		b.Move(id, m.initial[id].Translate(dx, dy))
	}

	// The pointer sits inside the moving rectangle, so anything enclosing
	// its moved bounds also encloses the pointer. Excluding the whole moving
	// subtree keeps descendants from being picked as the new parent.
	moved := m.initial[m.rootID].Translate(dx, dy)
	m.parent = LeafMost(m.base, moved, m.ids...)
	b.SetParent(m.rootID, m.parent)
	m.moved = true

	e.store = b.Commit()
}

func (m *moveGesture) view() *MoveView {
	return &MoveView{ID: m.rootID, Parent: m.parent}
}

func (e *Engine) commitMove() {
	m := e.move
	e.move = nil
	if !m.moved {
		return
	}

	if err := CanReparent(e.store, m.rootID, m.parent); err != nil {
		e.fault(err, "reject parent after move", "rect", m.rootID, "parent", m.parent)
		b := e.store.Edit()
		b.SetParent(m.rootID, "")
		e.store = b.Commit()
	}
	slog.Debug("move committed", "rect", m.rootID, "parent", m.parent, "affected", len(m.ids))
}

func (e *Engine) startLasso(p Point, offset Offset, x, y float64) {
	e.selection = ""
	box := document.Point(x, y)
	e.lasso = &lassoGesture{
		origin: p,
		offset: offset,
		box:    box,
		parent: LeafMost(e.store, box),
	}
}

func (e *Engine) updateLasso(p Point) {
	l := e.lasso
	x0, y0 := l.offset.local(l.origin)
	x1, y1 := l.offset.local(p)
	l.box = document.BoundsFromCorners(x0, y0, x1, y1)
	l.parent = LeafMost(e.store, l.box)

	children, err := RootMost(e.store, l.box)
	e.fault(err, "root-most under lasso")
	l.children = children
}

func (e *Engine) commitLasso() error {
	l := e.lasso
	e.lasso = nil

	id, err := e.freshID()
	if err != nil {
		return err
	}

	created := document.Rectangle{ID: id}.WithBounds(l.box)
	b := e.store.Edit()
	b.Put(created)
	withRect := b.Commit()

	parent := l.parent
	if err := CanReparent(withRect, id, parent); err != nil {
		e.fault(err, "reject lasso parent", "rect", id, "parent", parent)
		parent = ""
	}

	b = withRect.Edit()
	b.SetParent(id, parent)
	withParent := b.Commit()

	b = withParent.Edit()
	adopted := 0
	for _, c := range l.children {
		if err := CanReparent(withParent, c, id); err != nil {
			e.fault(err, "reject lasso child", "rect", c, "parent", id)
			continue
		}
		b.SetParent(c, id)
		adopted++
	}
	e.store = b.Commit()

	slog.Debug("lasso committed", "rect", id, "parent", parent, "children", adopted)
	return nil
}

func (l *lassoGesture) view() *LassoView {
	children := make([]string, len(l.children))
	copy(children, l.children)
	return &LassoView{Box: l.box, Parent: l.parent, Children: children}
}
