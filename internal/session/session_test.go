package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/codec"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/search"
	"github.com/starford/feathernotes/internal/storage"
	"github.com/starford/feathernotes/internal/testutil"
)

// fakePrompter answers dialogs from scripted values and records notices.
type fakePrompter struct {
	passwords []string
	choice    Choice
	reasons   []Reason
	notices   []string
}

func (p *fakePrompter) Password(_ context.Context, retry bool) (string, error) {
	if len(p.passwords) == 0 {
		return "", apperr.ErrCancelled
	}
	pw := p.passwords[0]
	p.passwords = p.passwords[1:]
	return pw, nil
}

func (p *fakePrompter) ConfirmUnsaved(_ context.Context, r Reason) (Choice, error) {
	p.reasons = append(p.reasons, r)
	return p.choice, nil
}

func (p *fakePrompter) Notify(_ context.Context, msg string) {
	p.notices = append(p.notices, msg)
}

type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) PublishChange(kind string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recorder) has(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func newSession(t *testing.T, opts ...Option) (*Session, *fakePrompter) {
	t.Helper()
	p := &fakePrompter{choice: ChoiceCancel}
	opts = append([]Option{WithPrompter(p), WithLogger(testutil.DiscardLogger())}, opts...)
	return New(opts...), p
}

func firstNode(t *testing.T, s *Session) document.Handle {
	t.Helper()
	tree, err := s.Tree()
	if err != nil || len(tree) == 0 {
		t.Fatalf("Tree: %v, %v", tree, err)
	}
	h, err := document.ParseHandle(tree[0].ID)
	if err != nil {
		t.Fatalf("ParseHandle: %v", err)
	}
	return h
}

func TestNewSession(t *testing.T) {
	s, _ := newSession(t)
	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.MainNodes != 1 || info.AllNodes != 1 || info.Modified || info.Path != "" {
		t.Errorf("info = %+v", info)
	}
	h := firstNode(t, s)
	if s.Current() != h {
		t.Errorf("first node not selected")
	}
	d, _ := s.Node(h)
	if d.Name != document.DefaultNodeName {
		t.Errorf("name = %q", d.Name)
	}
}

func TestInsertAndTraverse(t *testing.T) {
	s, _ := newSession(t)
	first := firstNode(t, s)

	a, _ := s.Insert(first, After)
	b, _ := s.Insert(a, After)
	c, _ := s.Insert(b, After)
	for h, name := range map[document.Handle]string{a: "A", b: "B", c: "C"} {
		if err := s.Rename(h, name); err != nil {
			t.Fatalf("Rename: %v", err)
		}
	}
	if s.Current() != c {
		t.Error("inserted node not selected")
	}

	moved, err := s.Move(c, Left)
	if err != nil || moved {
		t.Errorf("MoveLeft at top level = %v, %v", moved, err)
	}

	pre, _ := s.Insert(a, Before)
	child, _ := s.Insert(a, Child)
	tree, _ := s.Tree()
	var names []string
	for _, n := range tree {
		names = append(names, n.Name)
	}
	if strings.Join(names, ",") != "New Node,New Node,A,B,C" {
		t.Errorf("top level = %v", names)
	}
	if tree[1].ID != pre.String() || len(tree[2].Children) != 1 || tree[2].Children[0].ID != child.String() {
		t.Errorf("tree = %+v", tree)
	}
	addr, _ := s.Address(child)
	if addr != "A > New Node" {
		t.Errorf("Address = %q", addr)
	}
	if !s.Modified() {
		t.Error("structure edits not counted as modifications")
	}
}

func TestDeleteMovesSelection(t *testing.T) {
	s, _ := newSession(t)
	first := firstNode(t, s)
	second, _ := s.Insert(first, After)
	kid, _ := s.Insert(second, Child)
	_ = s.SetText(kid, "<p>draft</p>")

	if err := s.Delete(second); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Current() != first {
		t.Errorf("selection = %v, want %v", s.Current(), first)
	}
	if _, err := s.Node(kid); !errors.Is(err, apperr.ErrStaleHandle) {
		t.Errorf("deleted child still resolves: %v", err)
	}
	if s.counter.Panes() != 0 {
		t.Errorf("modified panes = %d after delete", s.counter.Panes())
	}
}

func TestSaveAndOpen(t *testing.T) {
	s, _ := newSession(t)
	h := firstNode(t, s)
	_ = s.Rename(h, "Groceries")
	_ = s.SetTags(h, "home")
	if err := s.SetPlainText(h, "milk\neggs"); err != nil {
		t.Fatalf("SetPlainText: %v", err)
	}

	path := filepath.Join(t.TempDir(), "list")
	if err := s.Save(context.Background()); !errors.Is(err, ErrNoPath) {
		t.Errorf("Save without path: %v", err)
	}
	if err := s.SaveAs(context.Background(), path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if s.Path() != path+".fnx" || s.Modified() {
		t.Errorf("after save: path %q modified %v", s.Path(), s.Modified())
	}

	other, _ := newSession(t)
	if err := other.Open(context.Background(), s.Path()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	oh := firstNode(t, other)
	d, err := other.Node(oh)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if d.Name != "Groceries" || d.Tag != "home" || d.Text != "milk\neggs" {
		t.Errorf("reopened node = %+v", d)
	}
}

func TestOpenFailuresKeepDocument(t *testing.T) {
	s, p := newSession(t)
	dir := t.TempDir()
	h := firstNode(t, s)
	_ = s.Rename(h, "keep me")
	if err := s.SaveAs(context.Background(), filepath.Join(dir, "keep.fnx")); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	bad := filepath.Join(dir, "bad.fnx")
	_ = os.WriteFile(bad, []byte("<not-notes/>"), 0o644)
	if err := s.Open(context.Background(), bad); !errors.Is(err, apperr.ErrMalformedDocument) {
		t.Errorf("malformed: err = %v", err)
	}

	locked, _ := newSession(t)
	_ = locked.SetPassword("pw")
	secret := filepath.Join(dir, "secret.fnx")
	if err := locked.SaveAs(context.Background(), secret); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	p.passwords = []string{"nope"}
	if err := s.Open(context.Background(), secret); !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("wrong password: err = %v", err)
	}

	if err := s.Open(context.Background(), filepath.Join(dir, "missing.fnx")); err == nil {
		t.Error("opening a missing file succeeded")
	}

	if s.Path() != filepath.Join(dir, "keep.fnx") {
		t.Errorf("path changed to %q", s.Path())
	}
	if d, _ := s.Node(s.Current()); d.Name != "keep me" {
		t.Errorf("document replaced: %+v", d)
	}

	p.passwords = []string{"pw"}
	if err := s.Open(context.Background(), secret); err != nil {
		t.Fatalf("right password: %v", err)
	}
	if !s.Encrypted() {
		t.Error("opened document lost its password")
	}
}

func TestUnsavedGate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.fnx")
	seed, _ := newSession(t)
	if err := seed.SaveAs(context.Background(), target); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	s, p := newSession(t)
	_ = s.Rename(firstNode(t, s), "unsaved")

	p.choice = ChoiceCancel
	if err := s.Open(context.Background(), target); !errors.Is(err, apperr.ErrCancelled) {
		t.Fatalf("cancel: err = %v", err)
	}
	if len(p.reasons) != 1 || p.reasons[0] != ReasonModified {
		t.Errorf("reasons = %v", p.reasons)
	}

	p.choice = ChoiceSave
	if err := s.NewDocument(context.Background()); !errors.Is(err, ErrNoPath) {
		t.Errorf("save without a path: err = %v", err)
	}

	p.choice = ChoiceDiscard
	if err := s.Open(context.Background(), target); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if s.Path() != target || s.Modified() {
		t.Errorf("after open: %q %v", s.Path(), s.Modified())
	}

	// An unmodified document whose file vanished still raises the gate.
	_ = os.Remove(target)
	p.choice = ChoiceSave
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if last := p.reasons[len(p.reasons)-1]; last != ReasonRemoved {
		t.Errorf("reason = %v", last)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("Save choice did not recreate the file: %v", err)
	}
	if _, err := s.Info(); !errors.Is(err, ErrNoDocument) {
		t.Errorf("after Close: err = %v", err)
	}
}

type brokenFiles struct{ storage.OS }

func (brokenFiles) WriteFile(string, []byte) error { return errors.New("read-only file system") }

func TestSaveFailureNotifies(t *testing.T) {
	s, p := newSession(t, WithFiles(brokenFiles{}))
	h := firstNode(t, s)
	_ = s.SetText(h, "<p>important</p>")

	err := s.SaveAs(context.Background(), filepath.Join(t.TempDir(), "x.fnx"))
	var ioErr *apperr.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if len(p.notices) != 1 || p.notices[0] != "Cannot be saved!" {
		t.Errorf("notices = %v", p.notices)
	}
	if !s.Modified() || s.Path() != "" {
		t.Errorf("after failed save: modified %v path %q", s.Modified(), s.Path())
	}
}

func TestAutoSave(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	h := firstNode(t, s)
	_ = s.Rename(h, "x")
	if saved, _ := s.AutoSave(ctx); saved {
		t.Error("auto-saved without a path")
	}

	path := filepath.Join(t.TempDir(), "auto.fnx")
	_ = s.SaveAs(ctx, path)
	if saved, _ := s.AutoSave(ctx); saved {
		t.Error("auto-saved without changes")
	}

	_ = s.Rename(h, "y")
	if saved, err := s.AutoSave(ctx); !saved || err != nil {
		t.Errorf("AutoSave = %v, %v", saved, err)
	}

	_ = s.Rename(h, "z")
	_ = os.Remove(path)
	if saved, _ := s.AutoSave(ctx); saved {
		t.Error("auto-save recreated a removed file")
	}
}

func TestReplaceAllThenSave(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	h := firstNode(t, s)
	_, _ = s.Insert(h, After)
	if err := s.SetPlainText(h, "hello world"); err != nil {
		t.Fatalf("SetPlainText: %v", err)
	}

	res, err := s.ReplaceAll(search.Everywhere, "hello", "hi", search.Options{})
	if err != nil || res.Count != 1 {
		t.Fatalf("ReplaceAll = %+v, %v", res, err)
	}
	res, _ = s.ReplaceAll(search.Everywhere, "hello", "hi", search.Options{})
	if res.Count != 0 {
		t.Errorf("second ReplaceAll = %d", res.Count)
	}

	path := filepath.Join(t.TempDir(), "r.fnx")
	if err := s.SaveAs(ctx, path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	other, _ := newSession(t)
	if err := other.Open(ctx, path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	d, _ := other.Node(firstNode(t, other))
	if d.Text != "hi world" {
		t.Errorf("saved text = %q", d.Text)
	}
}

func TestFindNextSelects(t *testing.T) {
	s, _ := newSession(t)
	first := firstNode(t, s)
	second, _ := s.Insert(first, After)
	_ = s.Rename(second, "Recipes")
	_ = s.SetPlainText(second, "bake the bread")
	_, _ = s.Select(first)

	hit, ok, err := s.FindNext(document.Root, InText, "BREAD", search.Options{})
	if err != nil || !ok || hit.Node != second {
		t.Fatalf("FindNext = %+v %v %v", hit, ok, err)
	}
	if s.Current() != second {
		t.Error("hit not selected")
	}
	sel, _ := s.Select(second)
	if sel.SearchText != "BREAD" {
		t.Errorf("search text = %q", sel.SearchText)
	}

	if _, ok, _ := s.FindNext(document.Root, InNames, "recipes", search.Options{CaseSensitive: true}); ok {
		t.Error("case-sensitive name search matched")
	}

	spans, err := s.FindInNode(second, "the", search.Options{WholeWord: true})
	if err != nil || len(spans) != 1 || spans[0].Start != 5 {
		t.Errorf("FindInNode = %v, %v", spans, err)
	}
}

func TestTextFontReachesUnboundNodes(t *testing.T) {
	doc := document.New(document.Font{}, document.Font{})
	second, _ := doc.Tree.Append(document.Root)
	_ = doc.Tree.SetText(second, `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 4.0//EN"><html><body style="font-family:'Sans'; font-size:10pt;"><p>x</p></body></html>`)
	data, err := codec.Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fonts.fnx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, _ := newSession(t)
	if err := s.Open(context.Background(), path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := document.Font{Family: "Serif", PointSize: 15}
	if err := s.SetTextFont(f); err != nil {
		t.Fatalf("SetTextFont: %v", err)
	}
	tree, _ := s.Tree()
	h, _ := document.ParseHandle(tree[1].ID)
	s.mu.Lock()
	_, bound := s.table.Lookup(h)
	n, _ := s.doc.Tree.Get(h)
	s.mu.Unlock()
	if bound {
		t.Fatal("second node got a pane")
	}
	if !strings.Contains(n.Text, "Serif") || !strings.Contains(n.Text, "15pt") {
		t.Errorf("stored body not updated: %s", n.Text)
	}
	if !s.Modified() {
		t.Error("font change not counted")
	}
}

func TestEventsPublished(t *testing.T) {
	rec := &recorder{}
	s, _ := newSession(t, WithPublisher(rec))
	h := firstNode(t, s)
	nh, _ := s.Insert(h, Child)
	_ = s.Rename(nh, "n")
	_, _ = s.Move(nh, Left)
	_ = s.Delete(nh)
	_ = s.SaveAs(context.Background(), filepath.Join(t.TempDir(), "e.fnx"))
	for _, k := range []string{EventCreated, EventChanged, EventMoved, EventDeleted, EventModified, EventSaved} {
		if !rec.has(k) {
			t.Errorf("no %s event in %v", k, rec.kinds)
		}
	}
}

func TestCanDrop(t *testing.T) {
	if !CanDrop("/tmp/Notes.FNX", "") || !CanDrop("blob", DocumentMediaType) || CanDrop("a.txt", "text/plain") {
		t.Error("CanDrop misjudged")
	}
	s, _ := newSession(t)
	if err := s.Drop(context.Background(), "/tmp/readme.txt"); !errors.Is(err, ErrNotDocument) {
		t.Errorf("Drop: %v", err)
	}
}

func TestDropSniffsContent(t *testing.T) {
	dir := t.TempDir()
	seed, _ := newSession(t)
	_ = seed.Rename(firstNode(t, seed), "dropped")
	saved := filepath.Join(dir, "seed.fnx")
	if err := seed.SaveAs(context.Background(), saved); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	raw, err := os.ReadFile(saved)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if DetectMediaType(raw) != DocumentMediaType {
		t.Errorf("plain document not detected")
	}

	renamed := filepath.Join(dir, "export.xml")
	_ = os.WriteFile(renamed, raw, 0o644)
	other := filepath.Join(dir, "readme.xml")
	_ = os.WriteFile(other, []byte("<?xml version='1.0'?><html/>"), 0o644)

	s, _ := newSession(t)
	if err := s.Drop(context.Background(), other); !errors.Is(err, ErrNotDocument) {
		t.Errorf("Drop other xml: err = %v", err)
	}
	if err := s.Drop(context.Background(), renamed); err != nil {
		t.Fatalf("Drop renamed document: %v", err)
	}
	if d, _ := s.Node(s.Current()); d.Name != "dropped" {
		t.Errorf("dropped document not opened: %+v", d)
	}

	locked, _ := newSession(t)
	_ = locked.SetPassword("pw")
	secret := filepath.Join(dir, "secret.fnx")
	if err := locked.SaveAs(context.Background(), secret); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	raw, _ = os.ReadFile(secret)
	if DetectMediaType(raw) != DocumentMediaType {
		t.Error("encrypted document not detected")
	}
}

func TestImages(t *testing.T) {
	s, _ := newSession(t)
	h := firstNode(t, s)
	// 1x1 transparent GIF.
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")
	i, err := s.EmbedImage(h, gif, "image/gif", 0, 0)
	if err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	if err := s.ScaleImage(h, i, 200); err != nil {
		t.Fatalf("ScaleImage: %v", err)
	}
	img, err := s.Image(h, i)
	if err != nil || img.Width != 2 || img.Height != 2 {
		t.Errorf("image = %+v, %v", img, err)
	}
	if _, err := s.Image(h, 5); err == nil {
		t.Error("expected an error for a missing image")
	}
	if ok, _ := s.Undo(h); !ok {
		t.Error("scale not undoable")
	}
}

func TestWatchFileFlagsRemoval(t *testing.T) {
	s, _ := newSession(t)
	path := filepath.Join(t.TempDir(), "w.fnx")
	if err := s.SaveAs(context.Background(), path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WatchFile(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(path)
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.removed
	}, "removal not noticed")

	_ = os.WriteFile(path, []byte("<feathernotes/>"), 0o644)
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.removed
	}, "file return not noticed")

	cancel()
	<-done
}
