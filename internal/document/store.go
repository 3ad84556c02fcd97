package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrIDMismatch     = errors.New("rectangle id does not match its key")
	ErrDuplicateID    = errors.New("duplicate rectangle id")
	ErrOrderMismatch  = errors.New("order does not list every rectangle exactly once")
	ErrNegativeSize   = errors.New("rectangle has negative size")
	ErrDanglingParent = errors.New("parent does not exist")
	ErrEmptyID        = errors.New("rectangle id is empty")
)

// Store is an immutable snapshot of every rectangle on the canvas. It is the
// single source of truth for geometry and parent links. Mutations go through
// a Builder and produce a new Store; a Store handed out is never modified.
type Store struct {
	rects map[string]Rectangle
	order []string // insertion order, drives every scan
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rects: map[string]Rectangle{}}
}

// Len returns the number of rectangles.
func (s *Store) Len() int {
	return len(s.order)
}

// Get returns the rectangle with the given id.
func (s *Store) Get(id string) (Rectangle, bool) {
	r, ok := s.rects[id]
	return r, ok
}

// Has reports whether id is in the store.
func (s *Store) Has(id string) bool {
	_, ok := s.rects[id]
	return ok
}

// IDs returns the identifiers in store order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Rectangles returns every rectangle in store order.
func (s *Store) Rectangles() []Rectangle {
	out := make([]Rectangle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rects[id])
	}
	return out
}

// Edit starts a batch of mutations against a copy of s.
func (s *Store) Edit() *Builder {
	rects := make(map[string]Rectangle, len(s.rects))
	for id, r := range s.rects {
		rects[id] = r
	}
	order := make([]string, len(s.order))
	copy(order, s.order)
	return &Builder{rects: rects, order: order}
}

// Document returns the keyed form of the store.
func (s *Store) Document() *InDocument {
	doc := &InDocument{
		Rectangles: make(map[string]Rectangle, len(s.rects)),
		Order:      s.IDs(),
	}
	for id, r := range s.rects {
		r.Parent = clonePtr(r.Parent)
		doc.Rectangles[id] = r
	}
	return doc
}

// MarshalJSON encodes the store as its InDocument.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// UnmarshalJSON replaces s with the decoded document.
func (s *Store) UnmarshalJSON(data []byte) error {
	var doc InDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	restored, err := FromDocument(&doc)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}

// FromDocument builds a store from its keyed form. It checks the structure
// of the document (ids, order, sizes, parent references); cycle and
// enclosure checks live with the hierarchy code. A document without an
// order is accepted and ordered by id.
func FromDocument(doc *InDocument) (*Store, error) {
	s := NewStore()
	if doc == nil {
		return s, nil
	}

	order := doc.Order
	if len(order) == 0 && len(doc.Rectangles) > 0 {
		order = make([]string, 0, len(doc.Rectangles))
		for id := range doc.Rectangles {
			order = append(order, id)
		}
		sort.Strings(order)
	}
	if len(order) != len(doc.Rectangles) {
		return nil, fmt.Errorf("load document: %w", ErrOrderMismatch)
	}

	for _, id := range order {
		r, ok := doc.Rectangles[id]
		if !ok {
			return nil, fmt.Errorf("load document: %q: %w", id, ErrOrderMismatch)
		}
		if _, dup := s.rects[id]; dup {
			return nil, fmt.Errorf("load document: %q: %w", id, ErrDuplicateID)
		}
		if id == "" {
			return nil, fmt.Errorf("load document: %w", ErrEmptyID)
		}
		if r.ID != id {
			return nil, fmt.Errorf("load document: key %q holds %q: %w", id, r.ID, ErrIDMismatch)
		}
		if r.Width < 0 || r.Height < 0 {
			return nil, fmt.Errorf("load document: %q: %w", id, ErrNegativeSize)
		}
		r.Parent = clonePtr(r.Parent)
		s.rects[id] = r
		s.order = append(s.order, id)
	}

	for _, id := range s.order {
		r := s.rects[id]
		if r.Parent != nil && !s.Has(*r.Parent) {
			return nil, fmt.Errorf("load document: %q points at %q: %w", id, *r.Parent, ErrDanglingParent)
		}
	}

	return s, nil
}

// Builder accumulates mutations on a private copy of a store.
type Builder struct {
	rects   map[string]Rectangle
	order   []string
	removed bool
}

// Get returns the pending state of a rectangle.
func (b *Builder) Get(id string) (Rectangle, bool) {
	r, ok := b.rects[id]
	return r, ok
}

// Put inserts r or replaces the rectangle with the same id. New
// rectangles go to the end of the store order.
func (b *Builder) Put(r Rectangle) {
	if _, ok := b.rects[r.ID]; !ok {
		b.order = append(b.order, r.ID)
	}
	r.Parent = clonePtr(r.Parent)
	b.rects[r.ID] = r
}

// Delete removes the given ids. Unknown ids are ignored.
func (b *Builder) Delete(ids ...string) {
	for _, id := range ids {
		if _, ok := b.rects[id]; ok {
			delete(b.rects, id)
			b.removed = true
		}
	}
}

// Move repositions a rectangle. It returns false if id is unknown.
func (b *Builder) Move(id string, bounds Bounds) bool {
	r, ok := b.rects[id]
	if !ok {
		return false
	}
	b.rects[id] = r.WithBounds(bounds)
	return true
}

// SetParent points id at parentID ("" for root). It returns false if id
// is unknown. Callers validate the assignment first.
func (b *Builder) SetParent(id, parentID string) bool {
	r, ok := b.rects[id]
	if !ok {
		return false
	}
	b.rects[id] = r.WithParent(parentID)
	return true
}

// Commit returns the resulting store. The builder must not be used after.
func (b *Builder) Commit() *Store {
	order := b.order
	if b.removed {
		// a deleted id that was put back appears twice; keep its last slot
		last := make(map[string]int, len(b.order))
		for i, id := range b.order {
			last[id] = i
		}
		order = make([]string, 0, len(b.rects))
		for i, id := range b.order {
			if _, ok := b.rects[id]; ok && last[id] == i {
				order = append(order, id)
			}
		}
	}
	s := &Store{rects: b.rects, order: order}
	b.rects, b.order = nil, nil
	return s
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
