package engine

import (
	"errors"
	"fmt"

	"github.com/inamate/nestbox/internal/document"
)

var (
	ErrCycle            = errors.New("parent chain forms a cycle")
	ErrNotEnclosing     = errors.New("parent does not strictly enclose child")
	ErrUnknownRectangle = errors.New("unknown rectangle")
)

// Subtree returns rootID and every rectangle whose parent chain passes
// through it, in store order. Each rectangle's chain is walked upward once;
// results are memoised so shared prefixes are not walked again.
//
// A chain that revisits a rectangle is a cycle: the rectangles on it are
// left out and the cycle is reported in the returned error. The id list is
// valid even when the error is not nil.
func Subtree(s *document.Store, rootID string) ([]string, error) {
	if !s.Has(rootID) {
		return nil, fmt.Errorf("subtree of %q: %w", rootID, ErrUnknownRectangle)
	}

	member := map[string]bool{rootID: true}
	var faults []error

	for _, r := range s.Rectangles() {
		if _, known := member[r.ID]; known {
			continue
		}

		var chain []string
		seen := make(map[string]bool)
		in := false
		id := r.ID
		for {
			if v, known := member[id]; known {
				in = v
				break
			}
			if seen[id] {
				faults = append(faults, fmt.Errorf("rectangle %q: %w", r.ID, ErrCycle))
				break
			}
			seen[id] = true
			chain = append(chain, id)

			cur, ok := s.Get(id)
			if !ok {
				faults = append(faults, fmt.Errorf("rectangle %q: %w", r.ID, document.ErrDanglingParent))
				break
			}
			if cur.Parent == nil {
				break
			}
			id = *cur.Parent
		}

		for _, c := range chain {
			member[c] = in
		}
	}

	ids := make([]string, 0, len(member))
	for _, id := range s.IDs() {
		if member[id] {
			ids = append(ids, id)
		}
	}
	return ids, errors.Join(faults...)
}

// Ancestors returns the parent chain of id, nearest first. On a cycle the
// chain walked so far is returned together with ErrCycle.
func Ancestors(s *document.Store, id string) ([]string, error) {
	r, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("ancestors of %q: %w", id, ErrUnknownRectangle)
	}

	var chain []string
	seen := map[string]bool{id: true}
	for r.Parent != nil {
		pid := *r.Parent
		if seen[pid] {
			return chain, fmt.Errorf("ancestors of %q: %w", id, ErrCycle)
		}
		seen[pid] = true
		chain = append(chain, pid)

		r, ok = s.Get(pid)
		if !ok {
			return chain, fmt.Errorf("ancestors of %q: %w", id, document.ErrDanglingParent)
		}
	}
	return chain, nil
}

// ChildrenIndex builds the parent -> children adjacency of s. Roots are
// listed under the empty key. Children keep store order.
func ChildrenIndex(s *document.Store) map[string][]string {
	index := make(map[string][]string)
	for _, r := range s.Rectangles() {
		pid := r.ParentID()
		index[pid] = append(index[pid], r.ID)
	}
	return index
}

// CanReparent reports whether id may point at parentID. An empty parentID
// (root) is always allowed for a known rectangle.
func CanReparent(s *document.Store, id, parentID string) error {
	child, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("reparent %q: %w", id, ErrUnknownRectangle)
	}
	if parentID == "" {
		return nil
	}
	parent, ok := s.Get(parentID)
	if !ok {
		return fmt.Errorf("reparent %q to %q: %w", id, parentID, ErrUnknownRectangle)
	}
	if parentID == id {
		return fmt.Errorf("reparent %q to itself: %w", id, ErrCycle)
	}

	chain, err := Ancestors(s, parentID)
	if err != nil {
		return fmt.Errorf("reparent %q to %q: %w", id, parentID, err)
	}
	for _, a := range chain {
		if a == id {
			return fmt.Errorf("reparent %q under its descendant %q: %w", id, parentID, ErrCycle)
		}
	}

	if !Contains(parent.Bounds(), child.Bounds()) {
		return fmt.Errorf("reparent %q to %q: %w", id, parentID, ErrNotEnclosing)
	}
	return nil
}

// Validate checks every invariant of a committed store: sizes are
// non-negative, parents exist and strictly enclose their children, and no
// parent chain cycles.
func Validate(s *document.Store) error {
	var faults []error
	for _, r := range s.Rectangles() {
		if r.Width < 0 || r.Height < 0 {
			faults = append(faults, fmt.Errorf("rectangle %q: %w", r.ID, document.ErrNegativeSize))
		}
		if r.Parent == nil {
			continue
		}
		parent, ok := s.Get(*r.Parent)
		if !ok {
			faults = append(faults, fmt.Errorf("rectangle %q: %w", r.ID, document.ErrDanglingParent))
			continue
		}
		if _, err := Ancestors(s, r.ID); errors.Is(err, ErrCycle) {
			faults = append(faults, fmt.Errorf("rectangle %q: %w", r.ID, ErrCycle))
		}
		if !Contains(parent.Bounds(), r.Bounds()) {
			faults = append(faults, fmt.Errorf("rectangle %q in %q: %w", r.ID, parent.ID, ErrNotEnclosing))
		}
	}
	return errors.Join(faults...)
}
