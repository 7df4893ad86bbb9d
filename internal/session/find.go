package session

import (
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/pane"
	"github.com/starford/feathernotes/internal/richtext"
	"github.com/starford/feathernotes/internal/search"
)

// Domain selects what FindNext compares.
type Domain int

const (
	InNames Domain = iota
	InTags
	InText
)

// ParseDomain maps "names", "tags" and "text".
func ParseDomain(s string) (Domain, bool) {
	switch s {
	case "names":
		return InNames, true
	case "tags":
		return InTags, true
	case "text", "":
		return InText, true
	}
	return InText, false
}

// Hit is the node FindNext selected.
type Hit struct {
	Node  document.Handle `json:"-"`
	Spans []richtext.Span `json:"spans,omitempty"`
}

// FindNext looks for text starting after from (the current node when from is
// the root) and selects the node it finds. A text hit also becomes the
// pane's search text and highlights.
func (s *Session) FindNext(from document.Handle, d Domain, text string, opts search.Options) (Hit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return Hit{}, false, err
	}
	if from.IsRoot() {
		from = s.current
	}

	var (
		hit Hit
		ok  bool
		err error
	)
	switch d {
	case InNames:
		hit.Node, ok, err = search.FindName(s.doc, from, text, opts)
	case InTags:
		hit.Node, ok, err = search.FindTag(s.doc, from, text, opts)
	default:
		var m search.Match
		m, ok, err = search.FindText(s.doc, s.table, from, text, opts)
		hit = Hit{Node: m.Node, Spans: m.Spans}
	}
	if err != nil || !ok {
		return Hit{}, false, err
	}
	if _, err := s.selectLocked(hit.Node); err != nil {
		return Hit{}, false, err
	}
	if d == InText {
		if p, bound := s.table.Lookup(hit.Node); bound {
			p.SetSearchText(text)
			p.SetHighlights(hit.Spans)
		}
	}
	return hit, true, nil
}

// FindInNode highlights matches of text inside h's body and remembers text as
// the pane's search text.
func (s *Session) FindInNode(h document.Handle, text string, opts search.Options) ([]richtext.Span, error) {
	var spans []richtext.Span
	err := s.withPane(h, func(p *pane.Pane) error {
		p.SetSearchText(text)
		if text == "" {
			p.SetHighlights(nil)
			return nil
		}
		re, err := search.Pattern(text, opts)
		if err != nil {
			return err
		}
		spans = p.Content().Find(re)
		p.SetHighlights(spans)
		return nil
	})
	return spans, err
}

// TagMatches lists the nodes whose tags contain text.
func (s *Session) TagMatches(text string) ([]NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return nil, err
	}
	hs := search.ListTags(s.doc, text)
	out := make([]NodeRef, 0, len(hs))
	for _, h := range hs {
		out = append(out, s.refLocked(h))
	}
	return out, nil
}

// ReplaceAll replaces find with repl in the current node or, with
// search.Everywhere, in every node.
func (s *Session) ReplaceAll(scope search.Scope, find, repl string, opts search.Options) (search.Replacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return search.Replacement{}, err
	}
	from := s.current
	if from.IsRoot() && scope == search.Current {
		return search.Replacement{}, nil
	}
	return search.ReplaceAll(s.doc, s.table, scope, from, find, repl, opts)
}
