package richtext

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/feathernotes/internal/document"
)

// MergeFont applies f as the body font of a stored rich document and drops
// per-element font family and size overrides, so the whole body renders in
// f. Bare text is returned unchanged.
func MergeFont(s string, f document.Font) (string, error) {
	if !IsRichDocument(s) || f.IsZero() {
		return s, nil
	}
	c, err := Parse(s)
	if err != nil {
		return "", err
	}
	c.SetFont(f)
	return c.Render()
}

// SetFont is MergeFont on parsed content.
func (c *Content) SetFont(f document.Font) {
	body := findElement(c.doc, atom.Body)
	if body == nil {
		return
	}
	decls := parseStyle(attrValue(body, "style"))
	decls = setDecl(decls, "font-family", "'"+f.Family+"'")
	decls = setDecl(decls, "font-size", strconv.Itoa(f.PointSize)+"pt")
	body.Attr = setAttr(body.Attr, "style", formatStyle(decls))

	for n := body.FirstChild; n != nil; n = n.NextSibling {
		walk(n, func(m *html.Node) bool {
			if m.Type != html.ElementNode {
				return true
			}
			style, ok := getAttr(m, "style")
			if !ok {
				return true
			}
			decls := parseStyle(style)
			decls = dropDecl(decls, "font-family")
			decls = dropDecl(decls, "font-size")
			if len(decls) == 0 {
				m.Attr = removeAttr(m.Attr, "style")
			} else {
				m.Attr = setAttr(m.Attr, "style", formatStyle(decls))
			}
			return true
		})
	}
}

type decl struct{ prop, val string }

func attrValue(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func parseStyle(s string) []decl {
	var out []decl
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, decl{prop: prop, val: strings.TrimSpace(val)})
	}
	return out
}

func formatStyle(decls []decl) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.prop + ":" + d.val
	}
	return strings.Join(parts, "; ") + ";"
}

func setDecl(decls []decl, prop, val string) []decl {
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].val = val
			return decls
		}
	}
	return append(decls, decl{prop: prop, val: val})
}

func dropDecl(decls []decl, prop string) []decl {
	out := decls[:0]
	for _, d := range decls {
		if d.prop != prop {
			out = append(out, d)
		}
	}
	return out
}
