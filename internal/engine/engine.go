package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/inamate/nestbox/internal/document"
)

var (
	ErrNoSurfaceOffset   = errors.New("canvas offset is required to start a gesture")
	ErrGestureInProgress = errors.New("a gesture is in progress")
	ErrInvalidCount      = errors.New("count must be positive")
	ErrInvalidMode       = errors.New("unknown mode")
	ErrIDExhausted       = errors.New("identifier generator keeps returning ids in use")
)

// Mode decides which gesture a pointer-down starts.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeDraw   Mode = "draw"
)

// State is the gesture the engine is in.
type State string

const (
	StateIdle     State = "idle"
	StateMoving   State = "moving"
	StateLassoing State = "lassoing"
)

const maxIDAttempts = 8

// Engine is the interaction controller. It owns the rectangle store and
// is its only writer: every gesture and command replaces the store with a
// new snapshot. An Engine is not safe for concurrent use; callers serialize
// events.
type Engine struct {
	store     *document.Store
	selection string
	mode      Mode

	// At most one of these is set.
	lasso *lassoGesture
	move  *moveGesture

	newID        func() string
	rng          *rand.Rand
	canvasWidth  float64
	canvasHeight float64
	rectSize     float64
	maxAddRandom int

	// Data-integrity faults met by the last operation.
	faults []error
}

// View is everything a renderer needs for one frame.
type View struct {
	Document  *document.InDocument `json:"document"`
	Selection string               `json:"selection"`
	State     State                `json:"state"`
	Mode      Mode                 `json:"mode"`
	Lasso     *LassoView           `json:"lasso,omitempty"`
	Move      *MoveView            `json:"move,omitempty"`
}

// NewEngine creates an engine with an empty store in select mode.
func NewEngine(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Engine{
		store:        document.NewStore(),
		mode:         ModeSelect,
		newID:        o.newID,
		rng:          o.rng,
		canvasWidth:  o.canvasWidth,
		canvasHeight: o.canvasHeight,
		rectSize:     o.rectSize,
		maxAddRandom: o.maxAddRandom,
	}
}

// --- Commands ---

// LoadDocument replaces the store with doc. The document must satisfy every
// store invariant; on error the engine is unchanged.
func (e *Engine) LoadDocument(doc *document.InDocument) error {
	e.begin()
	if e.State() != StateIdle {
		return ErrGestureInProgress
	}

	s, err := document.FromDocument(doc)
	if err != nil {
		return err
	}
	if err := Validate(s); err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	e.store = s
	e.selection = ""
	return nil
}

// LoadJSON decodes and loads a document.
func (e *Engine) LoadJSON(data []byte) error {
	var doc document.InDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return e.LoadDocument(&doc)
}

// LoadSampleDocument loads the built-in sample layout.
func (e *Engine) LoadSampleDocument() error {
	return e.LoadDocument(document.NewSampleDocument())
}

// SetMode chooses the gesture the next pointer-down starts. A gesture in
// progress is not affected.
func (e *Engine) SetMode(m Mode) error {
	switch m {
	case ModeSelect, ModeDraw:
		e.mode = m
		return nil
	default:
		return fmt.Errorf("set mode %q: %w", m, ErrInvalidMode)
	}
}

// PointerDown starts a move in select mode or a lasso in draw mode. p is in
// surface coordinates and offset is where the canvas sits in the surface.
//
// In select mode a press outside every rectangle clears the selection and
// leaves the engine idle.
func (e *Engine) PointerDown(p Point, offset *Offset) error {
	e.begin()
	if e.State() != StateIdle {
		return ErrGestureInProgress
	}
	if offset == nil {
		return ErrNoSurfaceOffset
	}

	x, y := offset.local(p)
	if e.mode == ModeDraw {
		e.startLasso(p, *offset, x, y)
	} else {
		e.startMove(p, x, y)
	}
	return nil
}

// PointerMove updates the gesture in progress. It is a no-op when idle.
func (e *Engine) PointerMove(p Point) {
	e.begin()
	switch {
	case e.move != nil:
		e.updateMove(p)
	case e.lasso != nil:
		e.updateLasso(p)
	}
}

// PointerUp commits the gesture in progress using the geometry of the last
// PointerMove. It is a no-op when idle.
func (e *Engine) PointerUp() error {
	e.begin()
	switch {
	case e.move != nil:
		e.commitMove()
	case e.lasso != nil:
		return e.commitLasso()
	}
	return nil
}

// Cancel discards the gesture in progress and restores the store it
// started from.
func (e *Engine) Cancel() {
	e.begin()
	if e.move != nil {
		e.store = e.move.base
		e.move = nil
	}
	e.lasso = nil
}

// DeleteSelected removes the selected rectangle and all of its descendants
// and clears the selection. It returns the removed ids, or nil when nothing
// is selected.
func (e *Engine) DeleteSelected() ([]string, error) {
	e.begin()
	if e.State() != StateIdle {
		return nil, ErrGestureInProgress
	}
	if e.selection == "" {
		return nil, nil
	}

	ids, err := Subtree(e.store, e.selection)
	e.fault(err, "subtree of deleted selection")
	if errors.Is(err, ErrUnknownRectangle) {
		e.selection = ""
		return nil, nil
	}

	b := e.store.Edit()
	b.Delete(ids...)
	remaining := b.Commit()

	// Rectangles left out of the subtree by a broken chain may still point
	// into it.
	var dangling []string
	for _, r := range remaining.Rectangles() {
		if r.Parent != nil && !remaining.Has(*r.Parent) {
			dangling = append(dangling, r.ID)
		}
	}
	if len(dangling) > 0 {
		b = remaining.Edit()
		for _, id := range dangling {
			b.SetParent(id, "")
			e.fault(fmt.Errorf("rectangle %q: %w", id, document.ErrDanglingParent), "detach after delete", "rect", id)
		}
		remaining = b.Commit()
	}

	e.store = remaining
	e.selection = ""
	slog.Debug("deleted subtree", "count", len(ids))
	return ids, nil
}

// AddRandom creates count root rectangles of the configured size at random
// positions within the canvas and clears the selection. count must be in
// [1, max] where max is set by WithMaxAddRandom.
func (e *Engine) AddRandom(count int) ([]string, error) {
	e.begin()
	if count <= 0 || count > e.maxAddRandom {
		return nil, fmt.Errorf("add %d rectangles (max %d): %w", count, e.maxAddRandom, ErrInvalidCount)
	}
	if e.State() != StateIdle {
		return nil, ErrGestureInProgress
	}

	maxLeft := max(e.canvasWidth-e.rectSize, 0)
	maxTop := max(e.canvasHeight-e.rectSize, 0)

	b := e.store.Edit()
	ids := make([]string, 0, count)
	for range count {
		id, err := e.freshIDIn(b)
		if err != nil {
			return nil, err
		}
		b.Put(document.Rectangle{
			ID:     id,
			Top:    e.rng.Float64() * maxTop,
			Left:   e.rng.Float64() * maxLeft,
			Width:  e.rectSize,
			Height: e.rectSize,
		})
		ids = append(ids, id)
	}

	e.store = b.Commit()
	e.selection = ""
	return ids, nil
}

// --- Queries ---

// Store returns the current store. During a move it includes the
// tentative geometry.
func (e *Engine) Store() *document.Store {
	return e.store
}

// Document returns the keyed form of the current store.
func (e *Engine) Document() *document.InDocument {
	return e.store.Document()
}

// Selection returns the selected id or "".
func (e *Engine) Selection() string {
	return e.selection
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// State returns the gesture in progress.
func (e *Engine) State() State {
	switch {
	case e.move != nil:
		return StateMoving
	case e.lasso != nil:
		return StateLassoing
	default:
		return StateIdle
	}
}

// Lasso returns a copy of the lasso in progress, or nil.
func (e *Engine) Lasso() *LassoView {
	if e.lasso == nil {
		return nil
	}
	return e.lasso.view()
}

// Move returns the move in progress, or nil.
func (e *Engine) Move() *MoveView {
	if e.move == nil {
		return nil
	}
	return e.move.view()
}

// View returns a snapshot for rendering.
func (e *Engine) View() View {
	return View{
		Document:  e.store.Document(),
		Selection: e.selection,
		State:     e.State(),
		Mode:      e.mode,
		Lasso:     e.Lasso(),
		Move:      e.Move(),
	}
}

// Faults returns the data-integrity faults met by the last operation.
func (e *Engine) Faults() []error {
	out := make([]error, len(e.faults))
	copy(out, e.faults)
	return out
}

// Render compiles the current frame to draw commands as JSON.
func (e *Engine) Render() string {
	commands := CompileDrawCommands(e.store, e.selection, e.Lasso(), e.Move())
	result, err := DrawCommandsToJSON(commands)
	if err != nil {
		slog.Warn("encode draw commands", "count", len(commands), "error", err)
	}
	return result
}

// HitTest returns the leaf-most rectangle at canvas-local (x, y), or "".
func (e *Engine) HitTest(x, y float64) string {
	return HitTest(e.store, x, y)
}

// --- internal ---

func (e *Engine) begin() {
	e.faults = nil
}

func (e *Engine) fault(err error, msg string, args ...any) {
	if err == nil {
		return
	}
	slog.Warn(msg, append(args, "error", err)...)
	e.faults = append(e.faults, err)
}

func (e *Engine) freshID() (string, error) {
	for range maxIDAttempts {
		if id := e.newID(); id != "" && !e.store.Has(id) {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func (e *Engine) freshIDIn(b *document.Builder) (string, error) {
	for range maxIDAttempts {
		id := e.newID()
		if _, taken := b.Get(id); id != "" && !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}
