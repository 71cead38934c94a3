package uitree

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gazeinput/internal/gaze"
)

// ErrEmptyLayout is returned for a layout without a root node.
var ErrEmptyLayout = errors.New("uitree: layout has no root")

// NodeSpec is the YAML form of a node.
//
//	name: toolbar
//	bounds: [0, 0, 1920, 120]   # x, y, width, height
//	gaze: enabled               # enabled | disabled | inherited
//	delays: {dwell: 600}        # milliseconds per state
//	max_repeat: 2
//	children: [...]
type NodeSpec struct {
	Name      string           `yaml:"name"`
	Bounds    []float64        `yaml:"bounds"`
	Action    string           `yaml:"action,omitempty"`
	Gaze      string           `yaml:"gaze,omitempty"`
	Delays    map[string]int64 `yaml:"delays,omitempty"`
	MaxRepeat *int             `yaml:"max_repeat,omitempty"`
	Cursor    *CursorSpec      `yaml:"cursor,omitempty"`
	Children  []NodeSpec       `yaml:"children,omitempty"`
}

// CursorSpec sets cursor attributes on a node.
type CursorSpec struct {
	Visible *bool `yaml:"visible,omitempty"`
	Radius  *int  `yaml:"radius,omitempty"`
}

// delayStates maps layout delay keys to states.
var delayStates = map[string]gaze.PointerState{
	"enter":        gaze.Enter,
	"fixation":     gaze.Fixation,
	"dwell":        gaze.Dwell,
	"dwell_repeat": gaze.DwellRepeat,
	"exit":         gaze.Exit,
}

// Layout is a decoded node tree together with the gaze attributes its
// spec asks for.
type Layout struct {
	Root  *Node
	specs map[*Node]*NodeSpec
}

// LoadLayoutFile reads a layout from a YAML file.
func LoadLayoutFile(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()
	return LoadLayout(f)
}

// LoadLayout decodes and validates a YAML layout.
func LoadLayout(r io.Reader) (*Layout, error) {
	var spec NodeSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyLayout
		}
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return BuildLayout(&spec)
}

// BuildLayout turns a spec into a node tree.
func BuildLayout(spec *NodeSpec) (*Layout, error) {
	if spec == nil || spec.Name == "" {
		return nil, ErrEmptyLayout
	}
	l := &Layout{specs: make(map[*Node]*NodeSpec)}
	seen := make(map[string]bool)
	root, err := l.build(spec, seen)
	if err != nil {
		return nil, err
	}
	l.Root = root
	return l, nil
}

func (l *Layout) build(spec *NodeSpec, seen map[string]bool) (*Node, error) {
	if spec.Name == "" {
		return nil, errors.New("uitree: node without name")
	}
	if seen[spec.Name] {
		return nil, fmt.Errorf("uitree: duplicate node name %q", spec.Name)
	}
	seen[spec.Name] = true

	if len(spec.Bounds) != 4 {
		return nil, fmt.Errorf("uitree: node %q: bounds need 4 values, got %d", spec.Name, len(spec.Bounds))
	}
	if spec.Bounds[2] < 0 || spec.Bounds[3] < 0 {
		return nil, fmt.Errorf("uitree: node %q: negative size", spec.Name)
	}
	if _, err := gaze.ParseEnablement(spec.Gaze); err != nil {
		return nil, fmt.Errorf("uitree: node %q: %w", spec.Name, err)
	}
	for key, ms := range spec.Delays {
		if _, ok := delayStates[key]; !ok {
			return nil, fmt.Errorf("uitree: node %q: unknown delay %q", spec.Name, key)
		}
		if ms < 0 {
			return nil, fmt.Errorf("uitree: node %q: negative %s delay", spec.Name, key)
		}
	}
	if spec.MaxRepeat != nil && *spec.MaxRepeat < 0 {
		return nil, fmt.Errorf("uitree: node %q: negative max_repeat", spec.Name)
	}

	n := NewNode(spec.Name, XYWH(spec.Bounds[0], spec.Bounds[1], spec.Bounds[2], spec.Bounds[3]))
	n.Action = spec.Action
	l.specs[n] = spec
	for i := range spec.Children {
		child, err := l.build(&spec.Children[i], seen)
		if err != nil {
			return nil, err
		}
		n.Add(child)
	}
	return n, nil
}

// Apply attaches the gaze attributes of the layout to its nodes. Delays
// go through the pointer so its history window follows them.
func (l *Layout) Apply(p *gaze.Pointer) {
	store := p.Store()
	l.Root.Walk(func(n *Node) bool {
		spec := l.specs[n]
		if en, _ := gaze.ParseEnablement(spec.Gaze); en != gaze.Inherited {
			gaze.SetGazeEnabled(store, n, en)
		}
		for key, ms := range spec.Delays {
			p.SetElementStateDelay(n, delayStates[key], time.Duration(ms)*time.Millisecond)
		}
		if spec.MaxRepeat != nil {
			gaze.SetMaxRepeatCount(store, n, *spec.MaxRepeat)
		}
		if c := spec.Cursor; c != nil {
			if c.Visible != nil {
				p.SetCursorVisible(n, *c.Visible)
			}
			if c.Radius != nil {
				p.SetCursorRadius(n, *c.Radius)
			}
		}
		return true
	})
}

// OnInvoke installs fn on every invokable node.
func (l *Layout) OnInvoke(fn func(*Node)) {
	l.Root.Walk(func(n *Node) bool {
		if n.CanInvoke() {
			n.OnInvoke = fn
		}
		return true
	})
}

// DefaultMaxRepeat allows n repeat invocations on every invokable node
// whose spec leaves max_repeat unset.
func (l *Layout) DefaultMaxRepeat(p *gaze.Pointer, n int) {
	store := p.Store()
	l.Root.Walk(func(node *Node) bool {
		if node.CanInvoke() && l.specs[node].MaxRepeat == nil {
			gaze.SetMaxRepeatCount(store, node, n)
		}
		return true
	})
}

// Nodes returns the number of nodes in the layout.
func (l *Layout) Nodes() int {
	return len(l.specs)
}
