// Package search finds and replaces text across the nodes of a document:
// in node names, in tags and in node bodies.
package search

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/pane"
	"github.com/starford/feathernotes/internal/richtext"
)

// Options are the search toggles.
type Options struct {
	CaseSensitive bool `json:"case_sensitive"`
	WholeWord     bool `json:"whole_word"`
	Backward      bool `json:"backward"`
}

// Scope selects which nodes a replacement touches.
type Scope int

const (
	// Current limits a replacement to one node.
	Current Scope = iota
	// Everywhere replaces in every node, in pre-order from the first one.
	Everywhere
)

// ErrEmptyQuery is returned for an empty search text.
var ErrEmptyQuery = errors.New("search: empty query")

// Matcher finds a literal search text. In whole-word mode a match must not
// touch a letter, digit, mark or underscore on either side; unlike `\b` this
// holds for non-ASCII letters too.
type Matcher struct {
	re    *regexp.Regexp
	whole bool
}

// Pattern compiles text as a literal pattern honouring opts.
func Pattern(text string, opts Options) (*Matcher, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	expr := regexp.QuoteMeta(text)
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Matcher{re: re, whole: opts.WholeWord}, nil
}

func (m *Matcher) String() string {
	if m.whole {
		return "whole word " + m.re.String()
	}
	return m.re.String()
}

// MatchString reports whether s contains a match.
func (m *Matcher) MatchString(s string) bool {
	return len(m.FindAllStringIndex(s, 1)) > 0
}

// FindAllStringIndex returns the byte ranges of up to n successive
// non-overlapping matches; n < 0 means all.
func (m *Matcher) FindAllStringIndex(s string, n int) [][]int {
	if !m.whole {
		return m.re.FindAllStringIndex(s, n)
	}
	var out [][]int
	for pos := 0; pos <= len(s) && (n < 0 || len(out) < n); {
		loc := m.re.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if wordBoundary(s, start) && wordBoundary(s, end) {
			out = append(out, []int{start, end})
			pos = end
			continue
		}
		// retry one rune after this match's start
		_, size := utf8.DecodeRuneInString(s[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return out
}

// wordBoundary reports whether i does not split two word runes.
func wordBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(s[:i])
	after, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(before) || !isWordRune(after)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// scan walks the tree in pre-order from the node after from. At the end it
// wraps to the first (or, backward, last) node and stops on reaching from
// again. from itself is never tested.
func scan(t *document.Tree, from document.Handle, backward bool, match func(document.Handle) (bool, error)) (document.Handle, bool, error) {
	cur := from
	for {
		next, ok, err := t.Adjacent(cur, !backward)
		if err != nil {
			return document.Root, false, err
		}
		if !ok {
			break
		}
		if hit, err := match(next); err != nil || hit {
			return next, hit, err
		}
		cur = next
	}

	var start document.Handle
	var ok bool
	if backward {
		start, ok = t.Last()
	} else {
		start, ok = t.First()
	}
	if !ok || start == from {
		return document.Root, false, nil
	}
	for cur = start; ; {
		if hit, err := match(cur); err != nil || hit {
			return cur, hit, err
		}
		next, ok, err := t.Adjacent(cur, !backward)
		if err != nil {
			return document.Root, false, err
		}
		if !ok || next == from {
			return document.Root, false, nil
		}
		cur = next
	}
}

// FindName returns the next node whose name matches text.
func FindName(doc *document.Document, from document.Handle, text string, opts Options) (document.Handle, bool, error) {
	return findAttr(doc, from, text, opts, func(n document.Node) string { return n.Name })
}

// FindTag returns the next node whose tag matches text.
func FindTag(doc *document.Document, from document.Handle, text string, opts Options) (document.Handle, bool, error) {
	return findAttr(doc, from, text, opts, func(n document.Node) string { return n.Tag })
}

func findAttr(doc *document.Document, from document.Handle, text string, opts Options, field func(document.Node) string) (document.Handle, bool, error) {
	re, err := Pattern(text, opts)
	if err != nil {
		return document.Root, false, err
	}
	return scan(doc.Tree, from, opts.Backward, func(h document.Handle) (bool, error) {
		n, err := doc.Tree.Get(h)
		if err != nil {
			return false, err
		}
		return re.MatchString(field(n)), nil
	})
}

// ListTags returns every node whose tag contains text, ignoring case, in
// pre-order.
func ListTags(doc *document.Document, text string) []document.Handle {
	if text == "" {
		return nil
	}
	needle := strings.ToLower(text)
	var out []document.Handle
	doc.Tree.Walk(func(h document.Handle, _ int) bool {
		n, err := doc.Tree.Get(h)
		if err == nil && strings.Contains(strings.ToLower(n.Tag), needle) {
			out = append(out, h)
		}
		return true
	})
	return out
}

// bodyText returns a node's plain text, preferring the bound pane since it
// may hold unsaved edits.
func bodyText(doc *document.Document, tbl *pane.Table, h document.Handle) (string, error) {
	if tbl != nil {
		if p, ok := tbl.Lookup(h); ok {
			return p.PlainText(), nil
		}
	}
	n, err := doc.Tree.Get(h)
	if err != nil {
		return "", err
	}
	if !n.HasText {
		return "", nil
	}
	return richtext.PlainText(n.Text), nil
}

// Match is a node found by FindText with the spans that matched.
type Match struct {
	Node  document.Handle
	Spans []richtext.Span
}

// FindText returns the next node whose body text matches.
func FindText(doc *document.Document, tbl *pane.Table, from document.Handle, text string, opts Options) (Match, bool, error) {
	re, err := Pattern(text, opts)
	if err != nil {
		return Match{}, false, err
	}
	var spans []richtext.Span
	h, ok, err := scan(doc.Tree, from, opts.Backward, func(h document.Handle) (bool, error) {
		body, err := bodyText(doc, tbl, h)
		if err != nil {
			return false, err
		}
		spans = spans[:0]
		for _, m := range re.FindAllStringIndex(body, -1) {
			spans = append(spans, richtext.Span{Start: m[0], End: m[1]})
		}
		return len(spans) > 0, nil
	})
	if err != nil || !ok {
		return Match{}, false, err
	}
	return Match{Node: h, Spans: append([]richtext.Span(nil), spans...)}, true, nil
}

// Replacement reports what ReplaceAll changed.
type Replacement struct {
	Count int               `json:"count"`
	Nodes []document.Handle `json:"-"`
}

var errNoChange = errors.New("search: nothing replaced")

// ReplaceAll replaces every match of find with the literal repl. With scope
// Current only node from is edited; with Everywhere all nodes are edited in
// pre-order. Edited nodes get a pane, marked modified, whose highlights are
// the replaced spans.
func ReplaceAll(doc *document.Document, tbl *pane.Table, scope Scope, from document.Handle, find, repl string, opts Options) (Replacement, error) {
	re, err := Pattern(find, opts)
	if err != nil {
		return Replacement{}, err
	}

	var targets []document.Handle
	if scope == Current {
		targets = []document.Handle{from}
	} else {
		doc.Tree.Walk(func(h document.Handle, _ int) bool {
			targets = append(targets, h)
			return true
		})
	}

	var res Replacement
	for _, h := range targets {
		body, err := bodyText(doc, tbl, h)
		if err != nil {
			return res, err
		}
		if !re.MatchString(body) {
			continue
		}
		p, err := tbl.Materialize(h)
		if err != nil {
			return res, err
		}
		var spans []richtext.Span
		err = p.Edit(func(c *richtext.Content) error {
			var n int
			n, spans = c.ReplaceAll(re, repl)
			if n == 0 {
				return errNoChange
			}
			res.Count += n
			return nil
		})
		if errors.Is(err, errNoChange) {
			continue
		}
		if err != nil {
			return res, err
		}
		p.SetHighlights(spans)
		res.Nodes = append(res.Nodes, h)
	}
	return res, nil
}
