package session

import (
	"encoding/base64"
	"fmt"

	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/pane"
	"github.com/starford/feathernotes/internal/richtext"
)

// Position says where Insert puts a new node relative to its reference.
type Position int

const (
	// After inserts a sibling right after the reference node.
	After Position = iota
	// Before inserts a sibling right before the reference node.
	Before
	// Child appends a last child to the reference node.
	Child
)

// ParsePosition maps the wire names "sibling", "prepend" and "child".
func ParsePosition(s string) (Position, error) {
	switch s {
	case "", "sibling":
		return After, nil
	case "prepend":
		return Before, nil
	case "child":
		return Child, nil
	}
	return After, fmt.Errorf("session: unknown position %q", s)
}

// Direction of a move command.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// ParseDirection maps "up", "down", "left" and "right".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Up, fmt.Errorf("session: unknown direction %q", s)
}

// Insert creates a node next to or under ref and selects it. With ref set to
// document.Root the node is appended at the top level.
func (s *Session) Insert(ref document.Handle, pos Position) (document.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return document.Root, err
	}
	t := s.doc.Tree

	var (
		h   document.Handle
		err error
	)
	switch {
	case ref.IsRoot() || pos == Child:
		h, err = t.Append(ref)
	default:
		parent, perr := t.Parent(ref)
		if perr != nil {
			return document.Root, perr
		}
		row, rerr := t.Row(ref)
		if rerr != nil {
			return document.Root, rerr
		}
		if pos == After {
			row++
		}
		h, err = t.Insert(row, parent)
	}
	if err != nil {
		return document.Root, err
	}
	s.selectLocked(h)
	return h, nil
}

// Delete removes h with its subtree. The selection moves to the node that
// takes its place, its previous sibling or its parent.
func (s *Session) Delete(h document.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	t := s.doc.Tree
	parent, err := t.Parent(h)
	if err != nil {
		return err
	}
	row, err := t.Row(h)
	if err != nil {
		return err
	}
	if err := t.Remove(row, parent); err != nil {
		return err
	}

	n, _ := t.ChildCount(parent)
	switch {
	case row < n:
		next, _ := t.Child(parent, row)
		s.selectLocked(next)
	case row > 0:
		prev, _ := t.Child(parent, row-1)
		s.selectLocked(prev)
	case !parent.IsRoot():
		s.selectLocked(parent)
	default:
		s.current = document.Root
	}
	return nil
}

// Move moves h one step in dir. It reports false when h cannot go further.
func (s *Session) Move(h document.Handle, dir Direction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return false, err
	}
	t := s.doc.Tree
	parent, err := t.Parent(h)
	if err != nil {
		return false, err
	}
	row, err := t.Row(h)
	if err != nil {
		return false, err
	}
	switch dir {
	case Up:
		return t.MoveUp(row, parent)
	case Down:
		return t.MoveDown(row, parent)
	case Left:
		return t.MoveLeft(row, parent)
	default:
		return t.MoveRight(row, parent)
	}
}

// Selection is the state restored when a node is selected.
type Selection struct {
	Node       document.Handle
	SearchText string
}

// Select makes h the current node, binding a pane to it on first use.
func (s *Session) Select(h document.Handle) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return Selection{}, err
	}
	return s.selectLocked(h)
}

func (s *Session) selectLocked(h document.Handle) (Selection, error) {
	_, text, err := s.table.Select(h)
	if err != nil {
		return Selection{}, err
	}
	s.current = h
	return Selection{Node: h, SearchText: text}, nil
}

// Current returns the selected node, or document.Root when none is.
func (s *Session) Current() document.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Rename sets the display name of h.
func (s *Session) Rename(h document.Handle, name string) error {
	return s.withTree(func(t *document.Tree) error { return t.SetName(h, name) })
}

// SetTags sets the tag string of h.
func (s *Session) SetTags(h document.Handle, tags string) error {
	return s.withTree(func(t *document.Tree) error { return t.SetTag(h, tags) })
}

// SetIcon stores icon image bytes on h. Empty data removes the icon.
func (s *Session) SetIcon(h document.Handle, data []byte) error {
	return s.withTree(func(t *document.Tree) error {
		if len(data) == 0 {
			return t.SetIcon(h, "")
		}
		return t.SetIcon(h, base64.StdEncoding.EncodeToString(data))
	})
}

func (s *Session) withTree(fn func(t *document.Tree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	return fn(s.doc.Tree)
}

// withPane runs fn on the pane of h, binding one if needed.
func (s *Session) withPane(h document.Handle, fn func(p *pane.Pane) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	p, err := s.table.Materialize(h)
	if err != nil {
		return err
	}
	return fn(p)
}

// SetText replaces the body of h with HTML. The change stays in the pane
// until the next save.
func (s *Session) SetText(h document.Handle, html string) error {
	return s.withPane(h, func(p *pane.Pane) error { return p.SetHTML(html) })
}

// SetPlainText replaces the body of h with plain text.
func (s *Session) SetPlainText(h document.Handle, text string) error {
	return s.withPane(h, func(p *pane.Pane) error {
		return p.Edit(func(c *richtext.Content) error {
			*c = *richtext.FromPlainText(text)
			return nil
		})
	})
}

// Undo reverts the last edit of h's pane.
func (s *Session) Undo(h document.Handle) (bool, error) {
	var ok bool
	err := s.withPane(h, func(p *pane.Pane) error {
		ok = p.Undo()
		return nil
	})
	return ok, err
}

// Redo reapplies the last undone edit of h's pane.
func (s *Session) Redo(h document.Handle) (bool, error) {
	var ok bool
	err := s.withPane(h, func(p *pane.Pane) error {
		ok = p.Redo()
		return nil
	})
	return ok, err
}

// EmbedImage appends an image to the body of h and returns its position.
// Width or height of zero takes the image's own size.
func (s *Session) EmbedImage(h document.Handle, data []byte, mediaType string, width, height int) (int, error) {
	var i int
	err := s.withPane(h, func(p *pane.Pane) error {
		return p.Edit(func(c *richtext.Content) error {
			var err error
			i, err = c.EmbedImage(data, mediaType, width, height)
			return err
		})
	})
	return i, err
}

// ScaleImage scales image i of h's body to percent of its natural size.
func (s *Session) ScaleImage(h document.Handle, i, percent int) error {
	return s.withPane(h, func(p *pane.Pane) error {
		return p.Edit(func(c *richtext.Content) error { return c.ScaleImage(i, percent) })
	})
}

// Image returns image i of h's body.
func (s *Session) Image(h document.Handle, i int) (richtext.Image, error) {
	var img richtext.Image
	err := s.withPane(h, func(p *pane.Pane) error {
		imgs := p.Content().Images()
		if i < 0 || i >= len(imgs) {
			return fmt.Errorf("%w: %d", richtext.ErrNoImage, i)
		}
		img = imgs[i]
		return nil
	})
	return img, err
}

// SetTextFont changes the body font of the whole document.
func (s *Session) SetTextFont(f document.Font) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	if s.doc.TextFont.Equal(f) {
		return nil
	}
	s.doc.TextFont = f
	if err := s.table.ApplyFont(f); err != nil {
		return err
	}
	s.counter.MarkDirty()
	return nil
}

// SetNodeFont changes the font of the node names.
func (s *Session) SetNodeFont(f document.Font) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	if s.doc.NodeFont.Equal(f) {
		return nil
	}
	s.doc.NodeFont = f
	s.counter.MarkDirty()
	return nil
}

// Address returns the "A > B > C" path of h.
func (s *Session) Address(h document.Handle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return "", err
	}
	return s.doc.Tree.Address(h)
}
