package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/document"
)

// Element and attribute names of the .fnx format.
const (
	rootElement = "feathernotes"
	nodeElement = "node"

	attrTextFont = "txtfont"
	attrNodeFont = "nodefont"
	attrPassword = "pswrd"
	attrName     = "name"
	attrTag      = "tag"
	attrIcon     = "icon"
)

const prolog = "<?xml version='1.0' encoding='utf-8'?>\n"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xd;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#xa;", "\r", "&#xd;", "\t", "&#x9;",
	)
)

// Marshal serializes doc as indented .fnx XML. A node's text is written
// right after its start tag so that indentation never leaks into it.
func Marshal(doc *document.Document) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(prolog)
	b.WriteString("<" + rootElement)
	writeAttr(&b, attrTextFont, doc.TextFont.String())
	writeAttr(&b, attrNodeFont, doc.NodeFont.String())
	if doc.Password != "" {
		writeAttr(&b, attrPassword, doc.Password)
	}

	top, err := doc.Tree.Children(document.Root)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	if len(top) == 0 {
		b.WriteString("/>\n")
		return b.Bytes(), nil
	}
	b.WriteString(">")
	for _, h := range top {
		b.WriteString("\n ")
		if err := writeNode(&b, doc.Tree, h, 1); err != nil {
			return nil, err
		}
	}
	b.WriteString("\n</" + rootElement + ">\n")
	return b.Bytes(), nil
}

func writeNode(b *bytes.Buffer, t *document.Tree, h document.Handle, depth int) error {
	n, err := t.Get(h)
	if err != nil {
		return fmt.Errorf("codec: marshal: %w", err)
	}
	children, err := t.Children(h)
	if err != nil {
		return fmt.Errorf("codec: marshal: %w", err)
	}

	b.WriteString("<" + nodeElement)
	writeAttr(b, attrName, n.Name)
	if n.Tag != "" {
		writeAttr(b, attrTag, n.Tag)
	}
	if n.Icon != "" {
		writeAttr(b, attrIcon, n.Icon)
	}
	text := n.HasText && n.Text != ""
	if !text && len(children) == 0 {
		b.WriteString("/>")
		return nil
	}
	b.WriteString(">")
	if text {
		textEscaper.WriteString(b, xmlSafe(n.Text))
	}
	indent := strings.Repeat(" ", depth+1)
	for i, c := range children {
		if i > 0 || !text {
			b.WriteString("\n" + indent)
		}
		if err := writeNode(b, t, c, depth+1); err != nil {
			return err
		}
	}
	if len(children) > 0 {
		b.WriteString("\n" + strings.Repeat(" ", depth))
	}
	b.WriteString("</" + nodeElement + ">")
	return nil
}

func writeAttr(b *bytes.Buffer, name, value string) {
	b.WriteString(" " + name + `="`)
	attrEscaper.WriteString(b, xmlSafe(value))
	b.WriteString(`"`)
}

// xmlSafe replaces invalid UTF-8 and runes XML 1.0 forbids with U+FFFD, as
// xml.EscapeText does, so that every saved file parses again.
func xmlSafe(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return '\uFFFD'
	}, s)
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

// Unmarshal parses .fnx XML. It fails with apperr.ErrMalformedDocument on a
// syntax error or when the feathernotes root element is missing.
func Unmarshal(data []byte) (*document.Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := findRoot(dec)
	if err != nil {
		return nil, err
	}

	doc := document.Empty(document.Font{}, document.Font{})
	for _, a := range root.Attr {
		switch a.Name.Local {
		case attrTextFont:
			if f, err := document.ParseFont(a.Value); err == nil {
				doc.TextFont = f
			}
		case attrNodeFont:
			if f, err := document.ParseFont(a.Value); err == nil {
				doc.NodeFont = f
			}
		case attrPassword:
			doc.Password = a.Value
		}
	}

	if err := readChildren(dec, doc.Tree, document.Root); err != nil {
		return nil, err
	}
	return doc, nil
}

func findRoot(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, malformed(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != rootElement {
				return xml.StartElement{}, fmt.Errorf("codec: root element %q: %w", se.Name.Local, apperr.ErrMalformedDocument)
			}
			return se, nil
		}
	}
}

// readChildren consumes the content of parent up to its end tag.
func readChildren(dec *xml.Decoder, t *document.Tree, parent document.Handle) error {
	var (
		text      strings.Builder
		textDone  bool
		sawChild  bool
		hasText   bool
		storeText = func() error {
			if textDone || parent.IsRoot() {
				return nil
			}
			textDone = true
			if s := text.String(); strings.TrimSpace(s) != "" {
				hasText = true
				return t.SetText(parent, s)
			}
			return nil
		}
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return malformed(err)
		}
		switch tok := tok.(type) {
		case xml.CharData:
			if !textDone && !sawChild {
				text.Write(tok)
			} else if !hasText && !parent.IsRoot() && len(bytes.TrimSpace(tok)) > 0 {
				// Text after child elements; keep the first run.
				hasText = true
				if err := t.SetText(parent, string(tok)); err != nil {
					return err
				}
			}
		case xml.StartElement:
			if err := storeText(); err != nil {
				return err
			}
			sawChild = true
			if tok.Name.Local != nodeElement {
				if err := dec.Skip(); err != nil {
					return malformed(err)
				}
				continue
			}
			h, err := t.Append(parent)
			if err != nil {
				return err
			}
			if err := applyNodeAttrs(t, h, tok.Attr); err != nil {
				return err
			}
			if err := readChildren(dec, t, h); err != nil {
				return err
			}
		case xml.EndElement:
			return storeText()
		}
	}
}

func applyNodeAttrs(t *document.Tree, h document.Handle, attrs []xml.Attr) error {
	// A node without a name attribute has an empty label.
	if err := t.SetName(h, ""); err != nil {
		return err
	}
	for _, a := range attrs {
		var err error
		switch a.Name.Local {
		case attrName:
			err = t.SetName(h, a.Value)
		case attrTag:
			err = t.SetTag(h, a.Value)
		case attrIcon:
			err = t.SetIcon(h, a.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func malformed(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("codec: unexpected end of document: %w", apperr.ErrMalformedDocument)
	}
	return fmt.Errorf("codec: %v: %w", err, apperr.ErrMalformedDocument)
}
