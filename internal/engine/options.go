package engine

import (
	"math/rand/v2"

	"github.com/inamate/nestbox/internal/typeid"
)

// Option configures an Engine during creation.
//
// Example:
//
//	eng := engine.NewEngine(
//		engine.WithCanvas(1920, 1080),
//		engine.WithRectSize(64),
//	)
type Option func(*options)

type options struct {
	newID        func() string
	rng          *rand.Rand
	canvasWidth  float64
	canvasHeight float64
	rectSize     float64
	maxAddRandom int
}

func defaultOptions() options {
	return options{
		newID:        typeid.NewRectID,
		canvasWidth:  1280,
		canvasHeight: 720,
		rectSize:     100,
		maxAddRandom: 1000,
	}
}

// WithIDGenerator replaces the identifier source for new rectangles.
// The generator must not repeat values.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithRand sets the random source used by AddRandom.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rng = r
	}
}

// WithCanvas sets the area AddRandom places rectangles in.
func WithCanvas(width, height float64) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.canvasWidth, o.canvasHeight = width, height
		}
	}
}

// WithRectSize sets the side length of rectangles created by AddRandom.
func WithRectSize(size float64) Option {
	return func(o *options) {
		if size > 0 {
			o.rectSize = size
		}
	}
}

// WithMaxAddRandom caps how many rectangles one AddRandom call may create.
func WithMaxAddRandom(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAddRandom = n
		}
	}
}
