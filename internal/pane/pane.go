// Package pane binds in-memory editing surfaces to document nodes. A pane is
// created the first time its node is selected, holds the node body while it
// is being edited, and writes it back on save.
package pane

import (
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/richtext"
)

// maxUndo bounds each pane's undo history.
const maxUndo = 100

// Listener receives pane state changes.
type Listener interface {
	Modified(p *Pane, modified bool)
	UndoAvailable(p *Pane, ok bool)
	RedoAvailable(p *Pane, ok bool)
}

// Pane is the editing surface of one node.
type Pane struct {
	node     document.Handle
	content  *richtext.Content
	modified bool
	undo     []*richtext.Content
	redo     []*richtext.Content
	// clean is the undo depth of the saved body, -1 when history no
	// longer reaches it.
	clean int

	font       document.Font
	tabStop    float64
	searchText string
	highlights []richtext.Span

	listener Listener
}

func newPane(h document.Handle, c *richtext.Content, font document.Font, l Listener) *Pane {
	return &Pane{
		node:     h,
		content:  c,
		font:     font,
		tabStop:  font.TabStopWidth(),
		listener: l,
	}
}

// Node returns the bound node.
func (p *Pane) Node() document.Handle { return p.node }

// HTML renders the pane body in storage form.
func (p *Pane) HTML() (string, error) { return p.content.Render() }

// PlainText returns the pane body as text.
func (p *Pane) PlainText() string { return p.content.PlainText() }

// Content returns a copy of the pane body.
func (p *Pane) Content() *richtext.Content { return p.content.Clone() }

// IsModified reports unsaved edits.
func (p *Pane) IsModified() bool { return p.modified }

// SetModified sets the modified flag and notifies the listener on change.
// Clearing it makes the current body the saved one.
func (p *Pane) SetModified(m bool) {
	switch {
	case !m:
		p.clean = len(p.undo)
	case p.clean == len(p.undo):
		p.clean = -1
	}
	p.setModified(m)
}

// syncModified derives the flag from the undo depth.
func (p *Pane) syncModified() {
	p.setModified(len(p.undo) != p.clean)
}

func (p *Pane) setModified(m bool) {
	if p.modified == m {
		return
	}
	p.modified = m
	if p.listener != nil {
		p.listener.Modified(p, m)
	}
}

// Edit applies fn to the pane body as one undoable step. A failing fn leaves
// the body unchanged.
func (p *Pane) Edit(fn func(c *richtext.Content) error) error {
	next := p.content.Clone()
	if err := fn(next); err != nil {
		return err
	}
	p.replace(next)
	return nil
}

func (p *Pane) replace(next *richtext.Content) {
	if p.clean > len(p.undo) {
		// the saved body was on the redo branch being dropped
		p.clean = -1
	}
	p.pushUndo(p.content)
	p.content = next
	p.setRedo(nil)
	p.syncModified()
}

// SetHTML replaces the whole body.
func (p *Pane) SetHTML(s string) error {
	c, err := richtext.Parse(s)
	if err != nil {
		return err
	}
	p.replace(c)
	return nil
}

// CanUndo reports whether Undo has a step to revert.
func (p *Pane) CanUndo() bool { return len(p.undo) > 0 }

// CanRedo reports whether Redo has a step to reapply.
func (p *Pane) CanRedo() bool { return len(p.redo) > 0 }

// Undo reverts the last edit. It returns false when there is nothing to undo.
func (p *Pane) Undo() bool {
	n := len(p.undo)
	if n == 0 {
		return false
	}
	prev := p.undo[n-1]
	p.setUndo(p.undo[:n-1])
	p.setRedo(append(p.redo, p.content))
	p.content = prev
	p.syncModified()
	return true
}

// Redo reapplies the last undone edit.
func (p *Pane) Redo() bool {
	n := len(p.redo)
	if n == 0 {
		return false
	}
	next := p.redo[n-1]
	p.setRedo(p.redo[:n-1])
	p.pushUndo(p.content)
	p.content = next
	p.syncModified()
	return true
}

func (p *Pane) pushUndo(c *richtext.Content) {
	u := append(p.undo, c)
	if drop := len(u) - maxUndo; drop > 0 {
		u = u[drop:]
		if p.clean >= 0 {
			p.clean -= drop
		}
	}
	p.setUndo(u)
}

func (p *Pane) setUndo(u []*richtext.Content) {
	had := len(p.undo) > 0
	p.undo = u
	if has := len(u) > 0; has != had && p.listener != nil {
		p.listener.UndoAvailable(p, has)
	}
}

func (p *Pane) setRedo(r []*richtext.Content) {
	had := len(p.redo) > 0
	p.redo = r
	if has := len(r) > 0; has != had && p.listener != nil {
		p.listener.RedoAvailable(p, has)
	}
}

// Font returns the pane's default font.
func (p *Pane) Font() document.Font { return p.font }

// TabStop returns the tab stop distance in device pixels.
func (p *Pane) TabStop() float64 { return p.tabStop }

// SetFont changes the default font and recomputes the tab stop. The body
// itself is not modified.
func (p *Pane) SetFont(f document.Font) {
	p.font = f
	p.tabStop = f.TabStopWidth()
}

// SearchText returns the text last typed into this pane's search box.
func (p *Pane) SearchText() string { return p.searchText }

// SetSearchText remembers the search box text for this pane.
func (p *Pane) SetSearchText(s string) { p.searchText = s }

// Highlights returns the transient match spans.
func (p *Pane) Highlights() []richtext.Span {
	return append([]richtext.Span(nil), p.highlights...)
}

// SetHighlights replaces the transient match spans.
func (p *Pane) SetHighlights(spans []richtext.Span) {
	p.highlights = append([]richtext.Span(nil), spans...)
}
