package search

import (
	"errors"
	"testing"

	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/pane"
)

type fixture struct {
	doc   *document.Document
	table *pane.Table
	count *pane.Counter
	h     map[string]document.Handle
}

// newFixture builds:
//
//	Alpha  (tag "work")
//	  Beta
//	    Gamma (tag "Work, later")
//	Delta
//	  Epsilon
func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc := document.Empty(document.DefaultTextFont, document.Font{})
	f := &fixture{doc: doc, h: map[string]document.Handle{}}
	add := func(parent document.Handle, name string) document.Handle {
		t.Helper()
		h, err := doc.Tree.Append(parent)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := doc.Tree.SetName(h, name); err != nil {
			t.Fatalf("SetName: %v", err)
		}
		f.h[name] = h
		return h
	}
	alpha := add(document.Root, "Alpha")
	beta := add(alpha, "Beta")
	add(beta, "Gamma")
	delta := add(document.Root, "Delta")
	add(delta, "Epsilon")

	_ = doc.Tree.SetTag(f.h["Alpha"], "work")
	_ = doc.Tree.SetTag(f.h["Gamma"], "Work, later")

	f.count = pane.NewCounter(nil)
	f.table = pane.NewTable(doc, f.count, nil)
	t.Cleanup(f.table.Close)
	return f
}

func (f *fixture) name(t *testing.T, h document.Handle) string {
	t.Helper()
	n, err := f.doc.Tree.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return n.Name
}

func TestPattern(t *testing.T) {
	if _, err := Pattern("", Options{}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("empty query: err = %v", err)
	}
	re, err := Pattern("a.b", Options{})
	if err != nil {
		t.Fatalf("Pattern: %v", err)
	}
	if re.MatchString("axb") || !re.MatchString("A.B") {
		t.Errorf("pattern %s is not a case-insensitive literal", re)
	}
	re, _ = Pattern("cat", Options{WholeWord: true, CaseSensitive: true})
	if re.MatchString("concatenate") || !re.MatchString("a cat sat") || re.MatchString("a Cat") {
		t.Errorf("pattern %s", re)
	}
}

func TestPatternWholeWordUnicode(t *testing.T) {
	tests := []struct {
		text, in string
		want     bool
	}{
		{"café", "café au lait", true},
		{"café", "un café", true},
		{"café", "cafés", false},
		{"caf", "café", false},
		{"über", "über alles", true},
		{"über", "Tüber", false},
		{"ber", "über", false},
		{"naïve", "(naïve)", true},
		{"a_b", "a_bc", false},
	}
	for _, tt := range tests {
		re, err := Pattern(tt.text, Options{WholeWord: true})
		if err != nil {
			t.Fatalf("Pattern(%q): %v", tt.text, err)
		}
		if got := re.MatchString(tt.in); got != tt.want {
			t.Errorf("whole word %q in %q = %v, want %v", tt.text, tt.in, got, tt.want)
		}
	}
}

func TestPatternWholeWordSkipsEmbeddedMatch(t *testing.T) {
	re, _ := Pattern("über", Options{WholeWord: true})
	got := re.FindAllStringIndex("Tüber über über", -1)
	if len(got) != 2 || got[0][0] != len("Tüber ") || got[1][0] != len("Tüber über ") {
		t.Errorf("matches = %v", got)
	}
}

func TestFindWholeWordNonASCII(t *testing.T) {
	f := newFixture(t)
	_ = f.doc.Tree.SetName(f.h["Beta"], "café au lait")
	_ = f.doc.Tree.SetText(f.h["Epsilon"], "<p>über alles</p>")

	h, ok, err := FindName(f.doc, f.h["Alpha"], "café", Options{WholeWord: true})
	if err != nil || !ok || h != f.h["Beta"] {
		t.Errorf("FindName café = %v %v %v", h, ok, err)
	}
	m, ok, err := FindText(f.doc, f.table, f.h["Alpha"], "über", Options{WholeWord: true})
	if err != nil || !ok || m.Node != f.h["Epsilon"] {
		t.Fatalf("FindText über = %+v %v %v", m, ok, err)
	}
	if len(m.Spans) != 1 || m.Spans[0].Start != 0 || m.Spans[0].End != len("über") {
		t.Errorf("spans = %v", m.Spans)
	}

	res, err := ReplaceAll(f.doc, f.table, Everywhere, f.h["Alpha"], "über", "over", Options{WholeWord: true})
	if err != nil || res.Count != 1 {
		t.Fatalf("ReplaceAll = %d, %v", res.Count, err)
	}
	p, _ := f.table.Lookup(f.h["Epsilon"])
	if p.PlainText() != "over alles" {
		t.Errorf("Epsilon = %q", p.PlainText())
	}
}

func TestFindNameForwardWraps(t *testing.T) {
	f := newFixture(t)

	h, ok, err := FindName(f.doc, f.h["Beta"], "a", Options{})
	if err != nil || !ok {
		t.Fatalf("FindName: %v, %v", ok, err)
	}
	if got := f.name(t, h); got != "Gamma" {
		t.Errorf("first hit = %q, want Gamma", got)
	}

	// Only Alpha contains "lph"; searching from Delta must wrap around.
	h, ok, _ = FindName(f.doc, f.h["Delta"], "LPH", Options{})
	if !ok || f.name(t, h) != "Alpha" {
		t.Errorf("wrap hit = %v %v", h, ok)
	}
}

func TestFindNameBackward(t *testing.T) {
	f := newFixture(t)
	h, ok, _ := FindName(f.doc, f.h["Beta"], "silon", Options{Backward: true})
	if !ok || f.name(t, h) != "Epsilon" {
		t.Errorf("backward wrap hit = %v %v", h, ok)
	}
	h, ok, _ = FindName(f.doc, f.h["Epsilon"], "a", Options{Backward: true})
	if !ok || f.name(t, h) != "Delta" {
		t.Errorf("backward hit = %q", f.name(t, h))
	}
}

func TestFindNameNoMatchStops(t *testing.T) {
	f := newFixture(t)
	// The only match is the starting node itself.
	if _, ok, err := FindName(f.doc, f.h["Gamma"], "gamma", Options{}); ok || err != nil {
		t.Errorf("found the starting node: %v %v", ok, err)
	}
	if _, ok, _ := FindName(f.doc, f.h["Alpha"], "zzz", Options{Backward: true}); ok {
		t.Error("found a missing name")
	}
}

func TestFindNameFromFirstAndLast(t *testing.T) {
	f := newFixture(t)
	first, _ := f.doc.Tree.First()
	last, _ := f.doc.Tree.Last()
	if _, ok, _ := FindName(f.doc, first, "Alpha", Options{}); ok {
		t.Error("wrap start equal to the starting node reported a match")
	}
	h, ok, _ := FindName(f.doc, last, "Epsilon", Options{Backward: true})
	if ok {
		t.Errorf("backward wrap from the last node found %q", f.name(t, h))
	}
}

func TestFindTag(t *testing.T) {
	f := newFixture(t)
	h, ok, _ := FindTag(f.doc, f.h["Alpha"], "work", Options{WholeWord: true})
	if !ok || h != f.h["Gamma"] {
		t.Errorf("FindTag = %v %v", h, ok)
	}
	if _, ok, _ := FindTag(f.doc, f.h["Alpha"], "work", Options{CaseSensitive: true}); ok {
		t.Error("case-sensitive search matched Work")
	}
}

func TestListTags(t *testing.T) {
	f := newFixture(t)
	got := ListTags(f.doc, "WORK")
	if len(got) != 2 || got[0] != f.h["Alpha"] || got[1] != f.h["Gamma"] {
		t.Errorf("ListTags = %v", got)
	}
	if ListTags(f.doc, "") != nil {
		t.Error("empty text listed nodes")
	}
}

func TestFindTextPrefersPane(t *testing.T) {
	f := newFixture(t)
	_ = f.doc.Tree.SetText(f.h["Gamma"], "<p>stored needle</p>")
	_ = f.doc.Tree.SetText(f.h["Epsilon"], "<p>nothing here</p>")

	m, ok, err := FindText(f.doc, f.table, f.h["Alpha"], "needle", Options{})
	if err != nil || !ok || m.Node != f.h["Gamma"] {
		t.Fatalf("FindText = %+v %v %v", m, ok, err)
	}
	if len(m.Spans) != 1 || m.Spans[0].Start != 7 || m.Spans[0].End != 13 {
		t.Errorf("spans = %v", m.Spans)
	}

	// An unsaved pane edit wins over the stored body.
	p, err := f.table.Materialize(f.h["Epsilon"])
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := p.SetHTML("<p>a needle in a pane</p>"); err != nil {
		t.Fatalf("SetHTML: %v", err)
	}
	m, ok, _ = FindText(f.doc, f.table, f.h["Gamma"], "needle", Options{})
	if !ok || m.Node != f.h["Epsilon"] {
		t.Errorf("pane text not searched: %+v", m)
	}
}

func TestReplaceAllEverywhere(t *testing.T) {
	f := newFixture(t)
	_ = f.doc.Tree.SetText(f.h["Beta"], "<p>hello world</p>")
	_ = f.doc.Tree.SetText(f.h["Epsilon"], "<p>Hello <b>hello</b></p>")

	res, err := ReplaceAll(f.doc, f.table, Everywhere, f.h["Delta"], "hello", "hi", Options{})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("count = %d, want 3", res.Count)
	}
	if len(res.Nodes) != 2 || res.Nodes[0] != f.h["Beta"] || res.Nodes[1] != f.h["Epsilon"] {
		t.Errorf("nodes = %v", res.Nodes)
	}
	p, ok := f.table.Lookup(f.h["Beta"])
	if !ok || p.PlainText() != "hi world" || !p.IsModified() {
		t.Fatalf("Beta pane = %v", p)
	}
	if hl := p.Highlights(); len(hl) != 1 || hl[0].Start != 0 || hl[0].End != 2 {
		t.Errorf("highlights = %v", hl)
	}
	if f.count.Panes() != 2 {
		t.Errorf("modified panes = %d", f.count.Panes())
	}

	res, err = ReplaceAll(f.doc, f.table, Everywhere, f.h["Delta"], "hello", "hi", Options{})
	if err != nil || res.Count != 0 {
		t.Errorf("second pass = %d, %v", res.Count, err)
	}
}

func TestReplaceAllCurrent(t *testing.T) {
	f := newFixture(t)
	_ = f.doc.Tree.SetText(f.h["Alpha"], "<p>hello world</p>")
	_ = f.doc.Tree.SetText(f.h["Beta"], "<p>hello world</p>")

	res, err := ReplaceAll(f.doc, f.table, Current, f.h["Alpha"], "hello", "hi", Options{})
	if err != nil || res.Count != 1 {
		t.Fatalf("ReplaceAll = %d, %v", res.Count, err)
	}
	p, _ := f.table.Lookup(f.h["Alpha"])
	if p.PlainText() != "hi world" {
		t.Errorf("Alpha = %q", p.PlainText())
	}
	if _, bound := f.table.Lookup(f.h["Beta"]); bound {
		t.Error("Current scope touched another node")
	}

	res, _ = ReplaceAll(f.doc, f.table, Current, f.h["Alpha"], "hello", "hi", Options{})
	if res.Count != 0 {
		t.Errorf("second pass = %d", res.Count)
	}
	if err := f.table.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	n, _ := f.doc.Tree.Get(f.h["Alpha"])
	if n.Text == "<p>hello world</p>" {
		t.Error("replacement not flushed to the node")
	}
}
