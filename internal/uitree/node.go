// Package uitree provides a minimal retained element tree that gaze
// pointers can hit test against. Daemons without a real GUI describe their
// screen in a YAML layout; the demo window draws one.
package uitree

import (
	"strings"

	"gazeinput/internal/gaze"
)

// Rect is an axis-aligned rectangle. Min is inclusive, Max exclusive.
type Rect struct {
	Min, Max gaze.Point
}

// XYWH builds a Rect from an origin and a size.
func XYWH(x, y, w, h float64) Rect {
	return Rect{Min: gaze.Point{X: x, Y: y}, Max: gaze.Point{X: x + w, Y: y + h}}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p gaze.Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y
}

// Node is an element of the tree. Children are kept in paint order, so
// later children are drawn over earlier ones.
type Node struct {
	Name   string
	Bounds Rect

	// Action names what the node does when invoked. Nodes without an
	// action are not invokable.
	Action string

	// OnInvoke is called when the node is invoked.
	OnInvoke func(n *Node)

	parent   *Node
	children []*Node
	invoked  int
}

// NewNode creates a detached node.
func NewNode(name string, bounds Rect) *Node {
	return &Node{Name: name, Bounds: bounds}
}

// Add appends child on top of the existing children and returns it.
func (n *Node) Add(child *Node) *Node {
	if child.parent != nil {
		child.parent.Remove(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// Remove detaches child. It reports whether child was a child of n.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Parent implements gaze.Element.
func (n *Node) Parent() gaze.Element {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Children returns the children in paint order.
func (n *Node) Children() []*Node {
	return n.children
}

// CanInvoke implements gaze.Invoker.
func (n *Node) CanInvoke() bool {
	return n.Action != ""
}

// Invoke implements gaze.Invoker.
func (n *Node) Invoke() {
	n.invoked++
	if n.OnInvoke != nil {
		n.OnInvoke(n)
	}
}

// Invocations returns how often the node has been invoked.
func (n *Node) Invocations() int {
	return n.invoked
}

// Path returns the slash separated names from the root to n.
func (n *Node) Path() string {
	var parts []string
	for w := n; w != nil; w = w.parent {
		parts = append(parts, w.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// String returns the node path.
func (n *Node) String() string {
	return n.Path()
}

// Walk visits n and its descendants depth first in paint order. Returning
// false from fn skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Find returns the first node named name in the subtree of n.
func (n *Node) Find(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Name == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// HitTester hit tests Node trees front to back. Children are clipped to
// their parent's bounds.
type HitTester struct{}

// ElementsAt implements gaze.HitTester. The topmost node comes first and
// every node is followed by its ancestors up to root.
func (HitTester) ElementsAt(root gaze.Element, p gaze.Point) []gaze.Element {
	n, ok := root.(*Node)
	if !ok {
		return nil
	}
	return appendHits(nil, n, p)
}

func appendHits(out []gaze.Element, n *Node, p gaze.Point) []gaze.Element {
	if !n.Bounds.Contains(p) {
		return out
	}
	for i := len(n.children) - 1; i >= 0; i-- {
		before := len(out)
		out = appendHits(out, n.children[i], p)
		if len(out) > before {
			// siblings underneath are covered
			break
		}
	}
	return append(out, n)
}

var (
	_ gaze.Element   = (*Node)(nil)
	_ gaze.Invoker   = (*Node)(nil)
	_ gaze.HitTester = HitTester{}
)
