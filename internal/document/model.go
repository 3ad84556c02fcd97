package document

// InDocument is the plain keyed form of a rectangle store, used for
// persistence and for syncing the editor state to renderers.
type InDocument struct {
	Rectangles map[string]Rectangle `json:"rectangles"`
	Order      []string             `json:"order"`
}

// Rectangle is a single axis-aligned box on the canvas. Coordinates are
// canvas-local. Parent is nil for root rectangles.
type Rectangle struct {
	ID     string  `json:"id"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Parent *string `json:"parent"`
}

// Bounds returns the geometry of the rectangle.
func (r Rectangle) Bounds() Bounds {
	return Bounds{Top: r.Top, Left: r.Left, Width: r.Width, Height: r.Height}
}

// WithBounds returns a copy of r positioned at b.
func (r Rectangle) WithBounds(b Bounds) Rectangle {
	r.Top, r.Left, r.Width, r.Height = b.Top, b.Left, b.Width, b.Height
	return r
}

// ParentID returns the parent identifier or "" for a root rectangle.
func (r Rectangle) ParentID() string {
	if r.Parent == nil {
		return ""
	}
	return *r.Parent
}

// WithParent returns a copy of r pointing at parentID. An empty parentID
// makes the copy a root.
func (r Rectangle) WithParent(parentID string) Rectangle {
	if parentID == "" {
		r.Parent = nil
		return r
	}
	r.Parent = &parentID
	return r
}

// IsRoot reports whether r has no parent.
func (r Rectangle) IsRoot() bool {
	return r.Parent == nil
}

// Bounds is an axis-aligned region in canvas-local coordinates. A zero
// Width and Height describes a point.
type Bounds struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point returns the zero-size region at (x, y).
func Point(x, y float64) Bounds {
	return Bounds{Top: y, Left: x}
}

// BoundsFromCorners returns the box spanned by two opposite corners given
// in any order.
func BoundsFromCorners(x0, y0, x1, y1 float64) Bounds {
	left, right := min(x0, x1), max(x0, x1)
	top, bottom := min(y0, y1), max(y0, y1)
	return Bounds{Top: top, Left: left, Width: right - left, Height: bottom - top}
}

func (b Bounds) Right() float64  { return b.Left + b.Width }
func (b Bounds) Bottom() float64 { return b.Top + b.Height }

// Contains reports whether b strictly encloses other on all four sides.
// A shared edge means not contained, so Contains is irreflexive.
func (b Bounds) Contains(other Bounds) bool {
	return b.Left < other.Left &&
		b.Top < other.Top &&
		b.Right() > other.Right() &&
		b.Bottom() > other.Bottom()
}

// Translate returns b shifted by (dx, dy).
func (b Bounds) Translate(dx, dy float64) Bounds {
	b.Left += dx
	b.Top += dy
	return b
}

// IsEmpty reports whether b has zero area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// NewEmptyDocument creates a document with no rectangles.
func NewEmptyDocument() *InDocument {
	return &InDocument{
		Rectangles: map[string]Rectangle{},
		Order:      []string{},
	}
}
