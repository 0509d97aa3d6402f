// Package spatial provides a bounded region quadtree for proximity queries
// over moving points.
package spatial

import (
	"errors"
	"fmt"

	"github.com/skylane/utm/internal/geo"
)

// ErrOutOfBounds indicates a point lies outside the tree's region.
var ErrOutOfBounds = errors.New("position outside index bounds")

const (
	// DefaultNodeCapacity is the number of entries a leaf holds before splitting.
	DefaultNodeCapacity = 8
	// DefaultMaxDepth bounds subdivision so clustered points cannot recurse forever.
	DefaultMaxDepth = 16
)

// Tree is a region quadtree keyed by string id. It is not safe for
// concurrent use; callers serialize access.
type Tree[T any] struct {
	bounds   geo.Bounds
	capacity int
	maxDepth int
	root     *node[T]
	index    map[string]*node[T]
}

type entry[T any] struct {
	id    string
	pos   geo.Position
	value T
}

type node[T any] struct {
	bounds   geo.Bounds
	depth    int
	parent   *node[T]
	entries  []entry[T]
	children *[4]*node[T]
}

// Option configures a Tree.
type Option func(*options)

type options struct {
	capacity int
	maxDepth int
}

// WithNodeCapacity overrides DefaultNodeCapacity.
func WithNodeCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(d int) Option {
	return func(o *options) {
		if d > 0 {
			o.maxDepth = d
		}
	}
}

// New creates an empty tree covering bounds.
func New[T any](bounds geo.Bounds, opts ...Option) (*Tree[T], error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("invalid index bounds: %+v", bounds)
	}
	o := options{capacity: DefaultNodeCapacity, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tree[T]{
		bounds:   bounds,
		capacity: o.capacity,
		maxDepth: o.maxDepth,
		root:     &node[T]{bounds: bounds},
		index:    make(map[string]*node[T]),
	}, nil
}

// Bounds returns the indexed region.
func (t *Tree[T]) Bounds() geo.Bounds { return t.bounds }

// Len returns the number of indexed entries.
func (t *Tree[T]) Len() int { return len(t.index) }

// Contains reports whether id is indexed.
func (t *Tree[T]) Contains(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Get returns the indexed position and value for id.
func (t *Tree[T]) Get(id string) (geo.Position, T, bool) {
	n, ok := t.index[id]
	if !ok {
		var zero T
		return geo.Position{}, zero, false
	}
	i := n.find(id)
	return n.entries[i].pos, n.entries[i].value, true
}

// Insert indexes value at pos under id. An existing entry with the same id
// is replaced. Points outside the tree bounds are rejected with
// ErrOutOfBounds and leave the tree unchanged.
func (t *Tree[T]) Insert(id string, pos geo.Position, value T) error {
	if !t.bounds.Contains(pos.Lat, pos.Lon) {
		return fmt.Errorf("%w: %s at (%.6f, %.6f)", ErrOutOfBounds, id, pos.Lat, pos.Lon)
	}
	if _, ok := t.index[id]; ok {
		t.Remove(id)
	}
	t.insert(t.root, entry[T]{id: id, pos: pos, value: value})
	return nil
}

// Update moves id to pos. It is equivalent to Remove followed by Insert,
// except that an out-of-bounds position leaves the old entry in place.
func (t *Tree[T]) Update(id string, pos geo.Position, value T) error {
	return t.Insert(id, pos, value)
}

// Remove drops id from the tree and reports whether it was present.
func (t *Tree[T]) Remove(id string) bool {
	n, ok := t.index[id]
	if !ok {
		return false
	}
	i := n.find(id)
	last := len(n.entries) - 1
	n.entries[i] = n.entries[last]
	n.entries[last] = entry[T]{}
	n.entries = n.entries[:last]
	delete(t.index, id)
	t.collapse(n.parent)
	return true
}

// Query returns the values of every entry within radius meters
// (great-circle) of center.
func (t *Tree[T]) Query(center geo.Position, radius float64) []T {
	var out []T
	t.Visit(center, radius, func(_ string, _ geo.Position, v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Visit calls fn for every entry within radius meters of center until fn
// returns false.
func (t *Tree[T]) Visit(center geo.Position, radius float64, fn func(id string, pos geo.Position, value T) bool) {
	if radius < 0 {
		return
	}
	box := geo.Around(center.Lat, center.Lon, radius)
	t.visit(t.root, box, center, radius, fn)
}

// All calls fn for every entry until fn returns false.
func (t *Tree[T]) All(fn func(id string, pos geo.Position, value T) bool) {
	t.walk(t.root, fn)
}

// Depth returns the depth of the deepest node.
func (t *Tree[T]) Depth() int {
	var deepest func(n *node[T]) int
	deepest = func(n *node[T]) int {
		if n.children == nil {
			return n.depth
		}
		d := n.depth
		for _, c := range n.children {
			d = max(d, deepest(c))
		}
		return d
	}
	return deepest(t.root)
}

func (t *Tree[T]) insert(n *node[T], e entry[T]) {
	for n.children != nil {
		n = n.children[n.quadrant(e.pos)]
	}
	n.entries = append(n.entries, e)
	t.index[e.id] = n
	if len(n.entries) > t.capacity && n.depth < t.maxDepth {
		t.split(n)
	}
}

func (t *Tree[T]) split(n *node[T]) {
	mid := n.bounds.Center()
	b := n.bounds
	quads := [4]geo.Bounds{
		{MinLat: mid.Lat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: mid.Lon}, // NW
		{MinLat: mid.Lat, MinLon: mid.Lon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}, // NE
		{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: mid.Lat, MaxLon: mid.Lon}, // SW
		{MinLat: b.MinLat, MinLon: mid.Lon, MaxLat: mid.Lat, MaxLon: b.MaxLon}, // SE
	}
	var children [4]*node[T]
	for i := range children {
		children[i] = &node[T]{bounds: quads[i], depth: n.depth + 1, parent: n}
	}
	n.children = &children

	entries := n.entries
	n.entries = nil
	for _, e := range entries {
		t.insert(n, e)
	}
}

// collapse merges the children of n back into n once they are all leaves
// holding no more than capacity entries in total.
func (t *Tree[T]) collapse(n *node[T]) {
	for ; n != nil; n = n.parent {
		if n.children == nil {
			continue
		}
		total := 0
		for _, c := range n.children {
			if c.children != nil {
				return
			}
			total += len(c.entries)
		}
		if total > t.capacity {
			return
		}
		merged := make([]entry[T], 0, total)
		for _, c := range n.children {
			merged = append(merged, c.entries...)
		}
		n.children = nil
		n.entries = merged
		for _, e := range merged {
			t.index[e.id] = n
		}
	}
}

func (t *Tree[T]) visit(n *node[T], box geo.Bounds, center geo.Position, radius float64, fn func(string, geo.Position, T) bool) bool {
	if !n.bounds.Intersects(box) {
		return true
	}
	if n.children != nil {
		for _, c := range n.children {
			if !t.visit(c, box, center, radius, fn) {
				return false
			}
		}
		return true
	}
	for _, e := range n.entries {
		if center.HorizontalDistance(e.pos) > radius {
			continue
		}
		if !fn(e.id, e.pos, e.value) {
			return false
		}
	}
	return true
}

func (t *Tree[T]) walk(n *node[T], fn func(string, geo.Position, T) bool) bool {
	if n.children != nil {
		for _, c := range n.children {
			if !t.walk(c, fn) {
				return false
			}
		}
		return true
	}
	for _, e := range n.entries {
		if !fn(e.id, e.pos, e.value) {
			return false
		}
	}
	return true
}

func (n *node[T]) quadrant(p geo.Position) int {
	mid := n.bounds.Center()
	q := 0
	if p.Lat < mid.Lat {
		q = 2
	}
	if p.Lon >= mid.Lon {
		q++
	}
	return q
}

func (n *node[T]) find(id string) int {
	for i, e := range n.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}
