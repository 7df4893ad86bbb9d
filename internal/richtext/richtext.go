// Package richtext models the HTML body of a note. Stored bodies keep the
// rich-text serializer's markup; inline images are lifted out into Image
// values while the body is held in memory and written back as data URIs only
// when the body is rendered for storage.
package richtext

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Span is a byte range in a body's plain text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Content is a parsed note body.
type Content struct {
	doc    *html.Node
	images []Image
}

// Parse parses a stored body. Any input is accepted; plain text ends up in
// the generated <body>.
func Parse(s string) (*Content, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("richtext: parse: %w", err)
	}
	c := &Content{doc: doc}
	c.liftImages()
	return c, nil
}

// FromPlainText builds a body holding text as-is.
func FromPlainText(text string) *Content {
	c, _ := Parse("")
	body := findElement(c.doc, atom.Body)
	for _, line := range strings.Split(text, "\n") {
		p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		if line != "" {
			p.AppendChild(&html.Node{Type: html.TextNode, Data: line})
		}
		body.AppendChild(p)
	}
	return c
}

// Render serializes the body with its images inlined again.
func (c *Content) Render() (string, error) {
	return c.render(func(img Image) string { return img.dataURI() })
}

func (c *Content) render(uri func(Image) string) (string, error) {
	type saved struct {
		n     *html.Node
		attrs []html.Attribute
	}
	var restore []saved
	walk(c.doc, func(n *html.Node) bool {
		if idx, ok := imageRef(n); ok && idx < len(c.images) {
			restore = append(restore, saved{n: n, attrs: n.Attr})
			img := c.images[idx]
			n.Attr = withImageAttrs(n.Attr, uri(img), img.Width, img.Height)
		}
		return true
	})
	defer func() {
		for _, s := range restore {
			s.n.Attr = s.attrs
		}
	}()

	var buf bytes.Buffer
	if err := html.Render(&buf, c.doc); err != nil {
		return "", fmt.Errorf("richtext: render: %w", err)
	}
	return buf.String(), nil
}

// IsRichDocument reports whether s is a full document written by the
// rich-text serializer rather than bare text.
func IsRichDocument(s string) bool {
	s = strings.TrimSpace(s)
	const doctype = "<!DOCTYPE HTML PUBLIC"
	if len(s) >= len(doctype) && strings.EqualFold(s[:len(doctype)], doctype) {
		return true
	}
	head := s
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(strings.ToLower(head), "<html")
}

var (
	blockElements = map[atom.Atom]bool{
		atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true,
		atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
		atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
		atom.Hr: true, atom.Dd: true, atom.Dt: true,
	}
	skippedElements = map[atom.Atom]bool{
		atom.Head: true, atom.Style: true, atom.Script: true, atom.Title: true,
	}
	// Whitespace-only text directly under these is layout, not content.
	layoutElements = map[atom.Atom]bool{
		atom.Html: true, atom.Body: true, atom.Table: true, atom.Tbody: true, atom.Thead: true,
		atom.Tr: true, atom.Ul: true, atom.Ol: true,
	}
)

// segment is one piece of plain text: either a text node or a line break
// produced by the markup.
type segment struct {
	node *html.Node
	text string
}

func (c *Content) segments() []segment {
	var segs []segment
	endsWithBreak := true
	add := func(s segment) {
		if s.text == "" {
			return
		}
		segs = append(segs, s)
		endsWithBreak = strings.HasSuffix(s.text, "\n")
	}
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if n.Parent != nil && layoutElements[n.Parent.DataAtom] && strings.TrimSpace(n.Data) == "" {
				return
			}
			add(segment{node: n, text: n.Data})
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				add(segment{text: "\n"})
				return
			}
			if blockElements[n.DataAtom] && !endsWithBreak {
				add(segment{text: "\n"})
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			visit(ch)
		}
	}
	visit(c.doc)
	return segs
}

// PlainText returns the body's text with block boundaries as newlines.
func (c *Content) PlainText() string {
	var b strings.Builder
	for _, s := range c.segments() {
		b.WriteString(s.text)
	}
	return b.String()
}

// PlainText extracts the plain text of a stored body.
func PlainText(s string) string {
	c, err := Parse(s)
	if err != nil {
		return s
	}
	return c.PlainText()
}

// IsEmpty reports whether the body has no visible text and no images.
func (c *Content) IsEmpty() bool {
	return c.PlainText() == "" && len(c.images) == 0
}

// Matcher locates matches in a string, like *regexp.Regexp.
type Matcher interface {
	FindAllStringIndex(s string, n int) [][]int
}

// Find returns every match of re in the plain text.
func (c *Content) Find(re Matcher) []Span {
	var spans []Span
	for _, m := range re.FindAllStringIndex(c.PlainText(), -1) {
		spans = append(spans, Span{Start: m[0], End: m[1]})
	}
	return spans
}

// ReplaceAll replaces every match of re inside text nodes with the literal
// repl, leaving the surrounding markup untouched. It returns the number of
// replacements and their spans in the new plain text.
func (c *Content) ReplaceAll(re Matcher, repl string) (int, []Span) {
	var (
		n      int
		spans  []Span
		offset int
	)
	for _, s := range c.segments() {
		if s.node == nil {
			offset += len(s.text)
			continue
		}
		matches := re.FindAllStringIndex(s.text, -1)
		if len(matches) == 0 {
			offset += len(s.text)
			continue
		}
		var b strings.Builder
		last := 0
		for _, m := range matches {
			b.WriteString(s.text[last:m[0]])
			start := offset + b.Len()
			b.WriteString(repl)
			spans = append(spans, Span{Start: start, End: start + len(repl)})
			last = m[1]
			n++
		}
		b.WriteString(s.text[last:])
		s.node.Data = b.String()
		offset += len(s.node.Data)
	}
	return n, spans
}

// Clone returns a deep copy of c.
func (c *Content) Clone() *Content {
	out := &Content{doc: cloneNode(c.doc)}
	out.images = make([]Image, len(c.images))
	for i, img := range c.images {
		img.Data = append([]byte(nil), img.Data...)
		out.images[i] = img
	}
	return out
}

func cloneNode(n *html.Node) *html.Node {
	m := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		m.AppendChild(cloneNode(ch))
	}
	return m
}

// walk visits n and its descendants depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if !walk(ch, fn) {
			return false
		}
	}
	return true
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(m *html.Node) bool {
		if m.Type == html.ElementNode && m.DataAtom == a {
			found = m
			return false
		}
		return true
	})
	return found
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(attrs []html.Attribute, key, val string) []html.Attribute {
	for i, a := range attrs {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			attrs[i].Val = val
			return attrs
		}
	}
	return append(attrs, html.Attribute{Key: key, Val: val})
}

func removeAttr(attrs []html.Attribute, key string) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}
		out = append(out, a)
	}
	return out
}
