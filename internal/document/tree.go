package document

import (
	"fmt"
	"strings"

	"github.com/starford/feathernotes/internal/apperr"
)

// DefaultNodeName is the label given to freshly inserted nodes.
const DefaultNodeName = "New Node"

type slot struct {
	gen      uint32
	alive    bool
	parent   Handle
	children []Handle

	name    string
	tag     string
	icon    string
	text    string
	hasText bool
}

// Node is a read-only copy of one node's attributes.
type Node struct {
	Handle  Handle
	Name    string
	Tag     string
	Icon    string
	Text    string
	HasText bool
}

// Tree is an ordered tree of notes stored in an arena. Slot 0 is the root
// sentinel; every other live slot is a node element.
type Tree struct {
	slots   []slot
	free    []uint32
	count   int
	subs    []subscription
	nextSub int
}

// NewTree returns an empty tree holding only the root sentinel.
func NewTree() *Tree {
	return &Tree{slots: []slot{{alive: true}}}
}

func (t *Tree) resolve(h Handle) (*slot, error) {
	if int(h.index) >= len(t.slots) {
		return nil, apperr.ErrStaleHandle
	}
	s := &t.slots[h.index]
	if !s.alive || s.gen != h.gen {
		return nil, apperr.ErrStaleHandle
	}
	return s, nil
}

// Contains reports whether h resolves to a live node or the root.
func (t *Tree) Contains(h Handle) bool {
	_, err := t.resolve(h)
	return err == nil
}

// Len returns the number of nodes, not counting the root sentinel.
func (t *Tree) Len() int { return t.count }

// ChildCount returns the number of direct children of parent.
func (t *Tree) ChildCount(parent Handle) (int, error) {
	s, err := t.resolve(parent)
	if err != nil {
		return 0, err
	}
	return len(s.children), nil
}

// TopLevelCount returns the number of top-level nodes.
func (t *Tree) TopLevelCount() int {
	return len(t.slots[0].children)
}

// Parent returns the parent of h, which is Root for top-level nodes.
func (t *Tree) Parent(h Handle) (Handle, error) {
	if h.IsRoot() {
		return Root, fmt.Errorf("document: root has no parent: %w", apperr.ErrInvalidPosition)
	}
	s, err := t.resolve(h)
	if err != nil {
		return Root, err
	}
	return s.parent, nil
}

// Child returns the node at row under parent.
func (t *Tree) Child(parent Handle, row int) (Handle, error) {
	s, err := t.resolve(parent)
	if err != nil {
		return Root, err
	}
	if row < 0 || row >= len(s.children) {
		return Root, fmt.Errorf("document: child row %d of %d: %w", row, len(s.children), apperr.ErrInvalidPosition)
	}
	return s.children[row], nil
}

// Children returns a copy of parent's child handles in display order.
func (t *Tree) Children(parent Handle) ([]Handle, error) {
	s, err := t.resolve(parent)
	if err != nil {
		return nil, err
	}
	return append([]Handle(nil), s.children...), nil
}

// Row returns the position of h within its parent.
func (t *Tree) Row(h Handle) (int, error) {
	if h.IsRoot() {
		return 0, nil
	}
	s, err := t.resolve(h)
	if err != nil {
		return 0, err
	}
	p := &t.slots[s.parent.index]
	for i, c := range p.children {
		if c == h {
			return i, nil
		}
	}
	return 0, fmt.Errorf("document: node %s missing from its parent", h)
}

// Get returns a copy of the node's attributes.
func (t *Tree) Get(h Handle) (Node, error) {
	if h.IsRoot() {
		return Node{}, fmt.Errorf("document: root is not a node: %w", apperr.ErrInvalidPosition)
	}
	s, err := t.resolve(h)
	if err != nil {
		return Node{}, err
	}
	return Node{
		Handle:  h,
		Name:    s.name,
		Tag:     s.tag,
		Icon:    s.icon,
		Text:    s.text,
		HasText: s.hasText,
	}, nil
}

func (t *Tree) alloc() Handle {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		s := &t.slots[idx]
		s.alive = true
		return Handle{index: idx, gen: s.gen}
	}
	t.slots = append(t.slots, slot{gen: 1, alive: true})
	return Handle{index: uint32(len(t.slots) - 1), gen: 1}
}

func (t *Tree) release(h Handle) {
	s := &t.slots[h.index]
	gen := s.gen + 1
	if gen == 0 {
		gen = 1
	}
	*s = slot{gen: gen}
	t.free = append(t.free, h.index)
}

// Insert creates a node named DefaultNodeName at row under parent.
// row may equal the child count (append).
func (t *Tree) Insert(row int, parent Handle) (Handle, error) {
	p, err := t.resolve(parent)
	if err != nil {
		return Root, err
	}
	if row < 0 || row > len(p.children) {
		return Root, fmt.Errorf("document: insert at row %d of %d: %w", row, len(p.children), apperr.ErrInvalidPosition)
	}

	h := t.alloc()
	// alloc may grow the arena; re-resolve the parent.
	p = &t.slots[parent.index]
	s := &t.slots[h.index]
	s.parent = parent
	s.name = DefaultNodeName

	p.children = append(p.children, Root)
	copy(p.children[row+1:], p.children[row:])
	p.children[row] = h
	t.count++

	t.emit(Event{Kind: EventInserted, Node: h, Parent: parent, Row: row})
	return h, nil
}

// Append inserts a new node as the last child of parent.
func (t *Tree) Append(parent Handle) (Handle, error) {
	n, err := t.ChildCount(parent)
	if err != nil {
		return Root, err
	}
	return t.Insert(n, parent)
}

// Remove deletes the node at row under parent together with its subtree.
// Observers see EventRemoving before anything is changed.
func (t *Tree) Remove(row int, parent Handle) error {
	h, err := t.Child(parent, row)
	if err != nil {
		return err
	}
	subtree := append([]Handle{h}, t.descendants(h)...)
	t.emit(Event{Kind: EventRemoving, Node: h, Parent: parent, Row: row, Subtree: subtree})

	p := &t.slots[parent.index]
	p.children = append(p.children[:row], p.children[row+1:]...)
	for _, d := range subtree {
		t.release(d)
	}
	t.count -= len(subtree)

	t.emit(Event{Kind: EventRemoved, Node: h, Parent: parent, Row: row, Subtree: subtree})
	return nil
}

func (t *Tree) checkRow(row int, parent Handle) (*slot, error) {
	p, err := t.resolve(parent)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(p.children) {
		return nil, fmt.Errorf("document: row %d of %d: %w", row, len(p.children), apperr.ErrInvalidPosition)
	}
	return p, nil
}

// MoveUp swaps the node at row with its previous sibling.
// It reports false when the node is already first.
func (t *Tree) MoveUp(row int, parent Handle) (bool, error) {
	p, err := t.checkRow(row, parent)
	if err != nil {
		return false, err
	}
	if row == 0 {
		return false, nil
	}
	h := p.children[row]
	p.children[row-1], p.children[row] = p.children[row], p.children[row-1]
	t.emit(Event{Kind: EventMoved, Node: h, Parent: parent, Row: row - 1, OldParent: parent, OldRow: row})
	return true, nil
}

// MoveDown swaps the node at row with its next sibling.
// It reports false when the node is already last.
func (t *Tree) MoveDown(row int, parent Handle) (bool, error) {
	p, err := t.checkRow(row, parent)
	if err != nil {
		return false, err
	}
	if row == len(p.children)-1 {
		return false, nil
	}
	h := p.children[row]
	p.children[row], p.children[row+1] = p.children[row+1], p.children[row]
	t.emit(Event{Kind: EventMoved, Node: h, Parent: parent, Row: row + 1, OldParent: parent, OldRow: row})
	return true, nil
}

// MoveLeft promotes the node at row to the sibling right after its parent.
// It reports false for top-level nodes.
func (t *Tree) MoveLeft(row int, parent Handle) (bool, error) {
	p, err := t.checkRow(row, parent)
	if err != nil {
		return false, err
	}
	if parent.IsRoot() {
		return false, nil
	}
	grand := p.parent
	prow, err := t.Row(parent)
	if err != nil {
		return false, err
	}
	h := p.children[row]
	p.children = append(p.children[:row], p.children[row+1:]...)

	g := &t.slots[grand.index]
	at := prow + 1
	g.children = append(g.children, Root)
	copy(g.children[at+1:], g.children[at:])
	g.children[at] = h
	t.slots[h.index].parent = grand

	t.emit(Event{Kind: EventMoved, Node: h, Parent: grand, Row: at, OldParent: parent, OldRow: row})
	return true, nil
}

// MoveRight demotes the node at row to the last child of its previous sibling.
// It reports false for the first sibling.
func (t *Tree) MoveRight(row int, parent Handle) (bool, error) {
	p, err := t.checkRow(row, parent)
	if err != nil {
		return false, err
	}
	if row == 0 {
		return false, nil
	}
	h := p.children[row]
	prev := p.children[row-1]
	p.children = append(p.children[:row], p.children[row+1:]...)

	np := &t.slots[prev.index]
	np.children = append(np.children, h)
	t.slots[h.index].parent = prev

	t.emit(Event{Kind: EventMoved, Node: h, Parent: prev, Row: len(np.children) - 1, OldParent: parent, OldRow: row})
	return true, nil
}

// First returns the first node in pre-order.
func (t *Tree) First() (Handle, bool) {
	root := &t.slots[0]
	if len(root.children) == 0 {
		return Root, false
	}
	return root.children[0], true
}

// Last returns the last node in pre-order (the deepest last descendant).
func (t *Tree) Last() (Handle, bool) {
	root := &t.slots[0]
	if len(root.children) == 0 {
		return Root, false
	}
	return t.deepestLast(root.children[len(root.children)-1]), true
}

func (t *Tree) deepestLast(h Handle) Handle {
	for {
		s := &t.slots[h.index]
		if len(s.children) == 0 {
			return h
		}
		h = s.children[len(s.children)-1]
	}
}

// Adjacent returns the next (forward) or previous node in pre-order.
// It returns false past the first or last node; it never wraps.
// From Root, forward yields the first node.
func (t *Tree) Adjacent(h Handle, forward bool) (Handle, bool, error) {
	s, err := t.resolve(h)
	if err != nil {
		return Root, false, err
	}
	if h.IsRoot() {
		if !forward {
			return Root, false, nil
		}
		n, ok := t.First()
		return n, ok, nil
	}

	if forward {
		if len(s.children) > 0 {
			return s.children[0], true, nil
		}
		cur := h
		for !cur.IsRoot() {
			cs := &t.slots[cur.index]
			siblings := t.slots[cs.parent.index].children
			row := indexOf(siblings, cur)
			if row+1 < len(siblings) {
				return siblings[row+1], true, nil
			}
			cur = cs.parent
		}
		return Root, false, nil
	}

	siblings := t.slots[s.parent.index].children
	row := indexOf(siblings, h)
	if row > 0 {
		return t.deepestLast(siblings[row-1]), true, nil
	}
	if s.parent.IsRoot() {
		return Root, false, nil
	}
	return s.parent, true, nil
}

func indexOf(hs []Handle, h Handle) int {
	for i, c := range hs {
		if c == h {
			return i
		}
	}
	return -1
}

// AllDescendants lists every node strictly below h in pre-order.
func (t *Tree) AllDescendants(h Handle) ([]Handle, error) {
	if _, err := t.resolve(h); err != nil {
		return nil, err
	}
	return t.descendants(h), nil
}

func (t *Tree) descendants(h Handle) []Handle {
	var out []Handle
	var visit func(Handle)
	visit = func(n Handle) {
		for _, c := range t.slots[n.index].children {
			out = append(out, c)
			visit(c)
		}
	}
	visit(h)
	return out
}

// Walk visits every node in pre-order with its depth (top level is 0).
// Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(h Handle, depth int) bool) {
	var visit func(Handle, int) bool
	visit = func(n Handle, depth int) bool {
		for _, c := range t.slots[n.index].children {
			if !fn(c, depth) {
				return false
			}
			if !visit(c, depth+1) {
				return false
			}
		}
		return true
	}
	visit(Root, 0)
}

// Address returns the node's path of names, e.g. "Work > Plans > Q3".
func (t *Tree) Address(h Handle) (string, error) {
	if _, err := t.resolve(h); err != nil {
		return "", err
	}
	var parts []string
	for cur := h; !cur.IsRoot(); cur = t.slots[cur.index].parent {
		parts = append(parts, t.slots[cur.index].name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > "), nil
}

func (t *Tree) set(h Handle, field string, apply func(s *slot) bool) error {
	if h.IsRoot() {
		return fmt.Errorf("document: root is not a node: %w", apperr.ErrInvalidPosition)
	}
	s, err := t.resolve(h)
	if err != nil {
		return err
	}
	if apply(s) {
		t.emit(Event{Kind: EventChanged, Node: h, Parent: s.parent, Field: field})
	}
	return nil
}

// SetName changes the node's display label.
func (t *Tree) SetName(h Handle, name string) error {
	return t.set(h, "name", func(s *slot) bool {
		if s.name == name {
			return false
		}
		s.name = name
		return true
	})
}

// SetTag changes the node's tag string. An empty tag removes the attribute.
func (t *Tree) SetTag(h Handle, tag string) error {
	return t.set(h, "tag", func(s *slot) bool {
		if s.tag == tag {
			return false
		}
		s.tag = tag
		return true
	})
}

// SetIcon stores base64-encoded icon bytes. An empty value removes the icon.
func (t *Tree) SetIcon(h Handle, icon string) error {
	return t.set(h, "icon", func(s *slot) bool {
		if s.icon == icon {
			return false
		}
		s.icon = icon
		return true
	})
}

// SetText creates or replaces the node's text child.
func (t *Tree) SetText(h Handle, text string) error {
	return t.set(h, "text", func(s *slot) bool {
		if s.hasText && s.text == text {
			return false
		}
		s.text = text
		s.hasText = true
		return true
	})
}

// ClearText drops the node's text child.
func (t *Tree) ClearText(h Handle) error {
	return t.set(h, "text", func(s *slot) bool {
		if !s.hasText {
			return false
		}
		s.text = ""
		s.hasText = false
		return true
	})
}
