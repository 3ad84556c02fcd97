package engine

import (
	"errors"

	"github.com/inamate/nestbox/internal/document"
)

// Contains reports whether a strictly encloses b on all four sides.
func Contains(a, b document.Bounds) bool {
	return a.Contains(b)
}

// LeafMost returns the most deeply nested rectangle that contains region,
// or "" if none does. Rectangles listed in exclude are skipped.
//
// The scan keeps a running candidate and only replaces it with a match that
// the candidate itself contains. When the containing rectangles form a
// chain the answer is the innermost one. When two unrelated rectangles both
// contain region the earlier one in store order wins unless a later match
// nests inside it; callers must not depend on that choice.
func LeafMost(s *document.Store, region document.Bounds, exclude ...string) string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var best document.Rectangle
	found := false
	for _, r := range s.Rectangles() {
		if skip[r.ID] || !Contains(r.Bounds(), region) {
			continue
		}
		if !found || Contains(best.Bounds(), r.Bounds()) {
			best = r
			found = true
		}
	}

	if !found {
		return ""
	}
	return best.ID
}

// RootMost returns the outermost rectangles enclosed by region, in store
// order.
//
// A geometric pass keeps one rectangle per nesting island: a match inside an
// already kept rectangle is skipped, and a match enclosing kept rectangles
// replaces them. A second pass walks each kept rectangle's parent chain and
// drops it if another kept rectangle is among its ancestors, which covers
// parent links the geometry does not show. Chain faults are returned; the
// ids are valid either way.
func RootMost(s *document.Store, region document.Bounds) ([]string, error) {
	var kept []document.Rectangle
	for _, r := range s.Rectangles() {
		b := r.Bounds()
		if !Contains(region, b) {
			continue
		}

		inside := false
		for _, k := range kept {
			if Contains(k.Bounds(), b) {
				inside = true
				break
			}
		}
		if inside {
			continue
		}

		next := make([]document.Rectangle, 0, len(kept)+1)
		for _, k := range kept {
			if !Contains(b, k.Bounds()) {
				next = append(next, k)
			}
		}
		kept = append(next, r)
	}

	keptSet := make(map[string]bool, len(kept))
	for _, k := range kept {
		keptSet[k.ID] = true
	}

	var faults []error
	roots := make(map[string]bool, len(kept))
	for _, k := range kept {
		chain, err := Ancestors(s, k.ID)
		if err != nil {
			faults = append(faults, err)
		}
		nested := false
		for _, a := range chain {
			if keptSet[a] {
				nested = true
				break
			}
		}
		if !nested {
			roots[k.ID] = true
		}
	}

	ids := make([]string, 0, len(roots))
	for _, id := range s.IDs() {
		if roots[id] {
			ids = append(ids, id)
		}
	}
	return ids, errors.Join(faults...)
}
