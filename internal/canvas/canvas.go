// internal/canvas/canvas.go
package canvas

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotOpen is returned by drawing operations before Open.
	ErrNotOpen = errors.New("canvas is not open")
	// ErrOutOfBounds is returned when a point lies outside the canvas.
	ErrOutOfBounds = errors.New("point outside canvas")
)

// Point is a pixel position; the origin is the top-left corner.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rectangle is an axis-aligned rectangle normalized so Min is top-left.
type Rectangle struct {
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

// Contains reports whether p lies inside r, edges included.
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Label is text anchored at a point.
type Label struct {
	Text string `json:"text" yaml:"text"`
	At   Point  `json:"at" yaml:"at"`
}

// Fill is a flood fill seeded at a point. Target is the index of the
// innermost rectangle containing the seed, or -1 for the background.
type Fill struct {
	At     Point `json:"at" yaml:"at"`
	Target int   `json:"target" yaml:"target"`
}

// Snapshot is a copy of the canvas contents.
type Snapshot struct {
	Width      int         `json:"width" yaml:"width"`
	Height     int         `json:"height" yaml:"height"`
	Open       bool        `json:"open" yaml:"open"`
	Rectangles []Rectangle `json:"rectangles" yaml:"rectangles"`
	Labels     []Label     `json:"labels" yaml:"labels"`
	Fills      []Fill      `json:"fills" yaml:"fills"`
}

// Canvas is an in-memory drawing surface. It is safe for concurrent use.
type Canvas struct {
	mu     sync.Mutex
	width  int
	height int
	open   bool

	rectangles []Rectangle
	labels     []Label
	fills      []Fill
}

// New returns a closed, empty canvas of the given size.
func New(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	return &Canvas{width: width, height: height}, nil
}

// Open makes the canvas drawable. It reports whether it was already open.
func (c *Canvas) Open() (alreadyOpen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	alreadyOpen = c.open
	c.open = true
	return alreadyOpen
}

// IsOpen reports whether Open has been called.
func (c *Canvas) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// DrawRectangle draws the rectangle spanned by two corners in any order.
func (c *Canvas) DrawRectangle(a, b Point) (Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(a, b); err != nil {
		return Rectangle{}, err
	}
	r := Rectangle{
		Min: Point{X: min(a.X, b.X), Y: min(a.Y, b.Y)},
		Max: Point{X: max(a.X, b.X), Y: max(a.Y, b.Y)},
	}
	c.rectangles = append(c.rectangles, r)
	return r, nil
}

// AddText places a label at p.
func (c *Canvas) AddText(text string, p Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(p); err != nil {
		return err
	}
	c.labels = append(c.labels, Label{Text: text, At: p})
	return nil
}

// FillAt flood-fills the region containing p.
func (c *Canvas) FillAt(p Point) (Fill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(p); err != nil {
		return Fill{}, err
	}
	f := Fill{At: p, Target: c.innermostLocked(p)}
	c.fills = append(c.fills, f)
	return f, nil
}

// Snapshot copies the current contents.
func (c *Canvas) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Width:      c.width,
		Height:     c.height,
		Open:       c.open,
		Rectangles: append([]Rectangle(nil), c.rectangles...),
		Labels:     append([]Label(nil), c.labels...),
		Fills:      append([]Fill(nil), c.fills...),
	}
}

func (c *Canvas) checkLocked(points ...Point) error {
	if !c.open {
		return ErrNotOpen
	}
	for _, p := range points {
		if p.X < 0 || p.Y < 0 || p.X >= c.width || p.Y >= c.height {
			return fmt.Errorf("%w: (%d,%d) on a %dx%d canvas", ErrOutOfBounds, p.X, p.Y, c.width, c.height)
		}
	}
	return nil
}

// innermostLocked picks the smallest rectangle containing p; later
// rectangles win ties.
func (c *Canvas) innermostLocked(p Point) int {
	best, bestArea := -1, 0
	for i, r := range c.rectangles {
		if !r.Contains(p) {
			continue
		}
		area := (r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y)
		if best == -1 || area <= bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
