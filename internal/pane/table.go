package pane

import (
	"fmt"

	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/richtext"
)

// Table owns the panes of one document, at most one per node.
type Table struct {
	doc         *document.Document
	panes       map[document.Handle]*Pane
	current     document.Handle
	counter     *Counter
	listener    Listener
	unsubscribe func()
}

// NewTable binds a table to doc. Modified panes are counted in counter and
// pane notifications are forwarded to l, which may be nil.
func NewTable(doc *document.Document, counter *Counter, l Listener) *Table {
	t := &Table{
		doc:      doc,
		panes:    make(map[document.Handle]*Pane),
		current:  document.Root,
		counter:  counter,
		listener: l,
	}
	t.unsubscribe = doc.Tree.Subscribe(t)
	return t
}

// Close detaches the table from the document and drops every pane.
func (t *Table) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.panes = make(map[document.Handle]*Pane)
	t.current = document.Root
}

// Len returns the number of bound panes.
func (t *Table) Len() int { return len(t.panes) }

// Lookup returns the pane bound to h, if any.
func (t *Table) Lookup(h document.Handle) (*Pane, bool) {
	p, ok := t.panes[h]
	return p, ok
}

// Current returns the active pane.
func (t *Table) Current() (*Pane, bool) {
	return t.Lookup(t.current)
}

// Select activates the pane of h, creating it on first use, and returns it
// together with its remembered search text.
func (t *Table) Select(h document.Handle) (*Pane, string, error) {
	p, err := t.Materialize(h)
	if err != nil {
		return nil, "", err
	}
	t.current = h
	return p, p.SearchText(), nil
}

// Materialize returns the pane of h, creating it from the stored body if
// needed. It does not change the active pane.
func (t *Table) Materialize(h document.Handle) (*Pane, error) {
	if p, ok := t.panes[h]; ok {
		return p, nil
	}
	n, err := t.doc.Tree.Get(h)
	if err != nil {
		return nil, err
	}
	c, err := richtext.Parse(n.Text)
	if err != nil {
		return nil, fmt.Errorf("pane: load node %s: %w", h, err)
	}
	p := newPane(h, c, t.doc.TextFont, t)
	t.panes[h] = p
	return p, nil
}

// Bound lists bound nodes in document order.
func (t *Table) Bound() []document.Handle {
	var out []document.Handle
	t.doc.Tree.Walk(func(h document.Handle, _ int) bool {
		if _, ok := t.panes[h]; ok {
			out = append(out, h)
		}
		return true
	})
	return out
}

// Flush writes every modified pane back into its node and clears the
// modified flags. A pane without visible text stores nothing.
func (t *Table) Flush() error {
	for _, h := range t.Bound() {
		p := t.panes[h]
		if !p.IsModified() {
			continue
		}
		if p.content.IsEmpty() {
			if err := t.doc.Tree.ClearText(h); err != nil {
				return err
			}
		} else {
			s, err := p.HTML()
			if err != nil {
				return fmt.Errorf("pane: flush node %s: %w", h, err)
			}
			if err := t.doc.Tree.SetText(h, s); err != nil {
				return err
			}
		}
		p.SetModified(false)
	}
	return nil
}

// ApplyFont sets f as the default font of every bound pane and merges it
// into the stored bodies of nodes that have no pane.
func (t *Table) ApplyFont(f document.Font) error {
	for _, p := range t.panes {
		p.SetFont(f)
	}
	var handles []document.Handle
	t.doc.Tree.Walk(func(h document.Handle, _ int) bool {
		if _, ok := t.panes[h]; !ok {
			handles = append(handles, h)
		}
		return true
	})
	for _, h := range handles {
		n, err := t.doc.Tree.Get(h)
		if err != nil {
			return err
		}
		if !n.HasText || !richtext.IsRichDocument(n.Text) {
			continue
		}
		merged, err := richtext.MergeFont(n.Text, f)
		if err != nil {
			return fmt.Errorf("pane: font for node %s: %w", h, err)
		}
		if err := t.doc.Tree.SetText(h, merged); err != nil {
			return err
		}
	}
	return nil
}

// TreeChanged tears down the panes of a subtree before it is removed.
func (t *Table) TreeChanged(ev document.Event) {
	if ev.Kind != document.EventRemoving {
		return
	}
	for _, h := range ev.Subtree {
		p, ok := t.panes[h]
		if !ok {
			continue
		}
		if p.IsModified() {
			t.counter.Dec()
		}
		p.listener = nil
		delete(t.panes, h)
		if t.current == h {
			t.current = document.Root
		}
	}
}

// Modified keeps the counter in step with pane flags.
func (t *Table) Modified(p *Pane, modified bool) {
	if modified {
		t.counter.Inc()
	} else {
		t.counter.Dec()
	}
	if t.listener != nil {
		t.listener.Modified(p, modified)
	}
}

// UndoAvailable forwards to the table's listener.
func (t *Table) UndoAvailable(p *Pane, ok bool) {
	if t.listener != nil {
		t.listener.UndoAvailable(p, ok)
	}
}

// RedoAvailable forwards to the table's listener.
func (t *Table) RedoAvailable(p *Pane, ok bool) {
	if t.listener != nil {
		t.listener.RedoAvailable(p, ok)
	}
}
