package document

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/starford/feathernotes/internal/apperr"
)

// buildABC returns a tree with top-level nodes A, B, C.
func buildABC(t *testing.T) (*Tree, Handle, Handle, Handle) {
	t.Helper()
	tr := NewTree()
	var hs []Handle
	for _, name := range []string{"A", "B", "C"} {
		h, err := tr.Append(Root)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := tr.SetName(h, name); err != nil {
			t.Fatalf("SetName: %v", err)
		}
		hs = append(hs, h)
	}
	return tr, hs[0], hs[1], hs[2]
}

func names(t *testing.T, tr *Tree, hs []Handle) []string {
	t.Helper()
	out := make([]string, len(hs))
	for i, h := range hs {
		n, err := tr.Get(h)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		out[i] = n.Name
	}
	return out
}

func preorder(t *testing.T, tr *Tree) []string {
	t.Helper()
	var out []string
	tr.Walk(func(h Handle, _ int) bool {
		n, _ := tr.Get(h)
		out = append(out, n.Name)
		return true
	})
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsert_DefaultNameAndPositions(t *testing.T) {
	tr, a, _, _ := buildABC(t)

	h, err := tr.Insert(0, Root)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	n, _ := tr.Get(h)
	if n.Name != DefaultNodeName {
		t.Errorf("name = %q, want %q", n.Name, DefaultNodeName)
	}
	if got := preorder(t, tr); !equalStrings(got, []string{"New Node", "A", "B", "C"}) {
		t.Errorf("order = %v", got)
	}

	if _, err := tr.Insert(5, Root); !errors.Is(err, apperr.ErrInvalidPosition) {
		t.Errorf("Insert past end: err = %v, want ErrInvalidPosition", err)
	}
	if _, err := tr.Insert(-1, a); !errors.Is(err, apperr.ErrInvalidPosition) {
		t.Errorf("Insert negative: err = %v, want ErrInvalidPosition", err)
	}

	child, err := tr.Insert(0, a)
	if err != nil {
		t.Fatalf("Insert child: %v", err)
	}
	p, _ := tr.Parent(child)
	if p != a {
		t.Errorf("parent = %v, want %v", p, a)
	}
}

func TestAdjacent_Scenario(t *testing.T) {
	tr, a, b, c := buildABC(t)

	var fwd []Handle
	for h, ok, _ := tr.Adjacent(a, true); ok; h, ok, _ = tr.Adjacent(h, true) {
		fwd = append(fwd, h)
	}
	if got := names(t, tr, fwd); !equalStrings(got, []string{"B", "C"}) {
		t.Errorf("forward from A = %v, want [B C]", got)
	}

	var back []Handle
	for h, ok, _ := tr.Adjacent(c, false); ok; h, ok, _ = tr.Adjacent(h, false) {
		back = append(back, h)
	}
	if got := names(t, tr, back); !equalStrings(got, []string{"B", "A"}) {
		t.Errorf("backward from C = %v, want [B A]", got)
	}

	before := preorder(t, tr)
	row, _ := tr.Row(c)
	moved, err := tr.MoveLeft(row, Root)
	if err != nil {
		t.Fatalf("MoveLeft: %v", err)
	}
	if moved {
		t.Error("MoveLeft on top-level node should be a no-op")
	}
	if got := preorder(t, tr); !equalStrings(got, before) {
		t.Errorf("tree changed: %v", got)
	}
	_ = b
}

func TestAdjacent_VisitsEveryNodeOnceDepthFirst(t *testing.T) {
	tr, a, b, _ := buildABC(t)
	a1, _ := tr.Append(a)
	_ = tr.SetName(a1, "A1")
	a2, _ := tr.Append(a)
	_ = tr.SetName(a2, "A2")
	a11, _ := tr.Append(a1)
	_ = tr.SetName(a11, "A11")
	b1, _ := tr.Append(b)
	_ = tr.SetName(b1, "B1")

	first, ok := tr.First()
	if !ok {
		t.Fatal("expected a first node")
	}
	visited := []Handle{first}
	for h, ok, _ := tr.Adjacent(first, true); ok; h, ok, _ = tr.Adjacent(h, true) {
		visited = append(visited, h)
	}
	want := []string{"A", "A1", "A11", "A2", "B", "B1", "C"}
	if got := names(t, tr, visited); !equalStrings(got, want) {
		t.Errorf("forward = %v, want %v", got, want)
	}

	last, _ := tr.Last()
	back := []Handle{last}
	for h, ok, _ := tr.Adjacent(last, false); ok; h, ok, _ = tr.Adjacent(h, false) {
		back = append(back, h)
	}
	wantBack := []string{"C", "B1", "B", "A2", "A11", "A1", "A"}
	if got := names(t, tr, back); !equalStrings(got, wantBack) {
		t.Errorf("backward = %v, want %v", got, wantBack)
	}
}

func TestMoves(t *testing.T) {
	tr, a, b, c := buildABC(t)

	// B right: becomes last child of A.
	moved, err := tr.MoveRight(1, Root)
	if err != nil || !moved {
		t.Fatalf("MoveRight = %v, %v", moved, err)
	}
	if p, _ := tr.Parent(b); p != a {
		t.Errorf("B parent = %v, want A", p)
	}
	if n, _ := tr.ChildCount(Root); n != 2 {
		t.Errorf("top-level count = %d, want 2", n)
	}

	// B left: back to top level right after A.
	moved, err = tr.MoveLeft(0, a)
	if err != nil || !moved {
		t.Fatalf("MoveLeft = %v, %v", moved, err)
	}
	if got := preorder(t, tr); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Errorf("order = %v", got)
	}

	// First sibling cannot move right or up; last cannot move down.
	if moved, _ := tr.MoveRight(0, Root); moved {
		t.Error("MoveRight on first sibling should be a no-op")
	}
	if moved, _ := tr.MoveUp(0, Root); moved {
		t.Error("MoveUp on first sibling should be a no-op")
	}
	if moved, _ := tr.MoveDown(2, Root); moved {
		t.Error("MoveDown on last sibling should be a no-op")
	}

	moved, _ = tr.MoveDown(0, Root)
	if !moved {
		t.Fatal("MoveDown should move A")
	}
	if got := preorder(t, tr); !equalStrings(got, []string{"B", "A", "C"}) {
		t.Errorf("after MoveDown = %v", got)
	}
	moved, _ = tr.MoveUp(2, Root)
	if !moved {
		t.Fatal("MoveUp should move C")
	}
	if got := preorder(t, tr); !equalStrings(got, []string{"B", "C", "A"}) {
		t.Errorf("after MoveUp = %v", got)
	}
	if r, _ := tr.Row(c); r != 1 {
		t.Errorf("row(C) = %d, want 1", r)
	}

	if _, err := tr.MoveUp(7, Root); !errors.Is(err, apperr.ErrInvalidPosition) {
		t.Errorf("MoveUp out of range: err = %v", err)
	}
}

func TestRemove_CascadesAndInvalidatesHandles(t *testing.T) {
	tr, a, _, _ := buildABC(t)
	a1, _ := tr.Append(a)
	a11, _ := tr.Append(a1)

	var removing []Handle
	unsub := tr.Subscribe(ObserverFunc(func(ev Event) {
		if ev.Kind == EventRemoving {
			// Handles must still resolve while the event is delivered.
			for _, h := range ev.Subtree {
				if !tr.Contains(h) {
					t.Errorf("handle %v already gone during EventRemoving", h)
				}
			}
			removing = ev.Subtree
		}
	}))
	defer unsub()

	if err := tr.Remove(0, Root); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(removing) != 3 {
		t.Errorf("removing subtree = %d handles, want 3", len(removing))
	}
	for _, h := range []Handle{a, a1, a11} {
		if _, err := tr.Get(h); !errors.Is(err, apperr.ErrStaleHandle) {
			t.Errorf("Get(%v) err = %v, want ErrStaleHandle", h, err)
		}
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}

	// A reused slot must not revive old handles.
	fresh, _ := tr.Append(Root)
	if fresh == a || fresh == a1 || fresh == a11 {
		t.Errorf("fresh handle %v collides with a removed one", fresh)
	}
	if _, err := tr.Get(a); !errors.Is(err, apperr.ErrStaleHandle) {
		t.Error("stale handle resolved after slot reuse")
	}
}

// countChildren counts children by walking, independently of ChildCount.
func countChildren(tr *Tree, parent Handle) int {
	n := 0
	for h, ok, _ := tr.Adjacent(Root, true); ok; h, ok, _ = tr.Adjacent(h, true) {
		if p, _ := tr.Parent(h); p == parent {
			n++
		}
	}
	return n
}

func TestRandomOperations_NoRowDrift(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tr := NewTree()
	_, _ = tr.Append(Root)

	pickParent := func() Handle {
		all := []Handle{Root}
		tr.Walk(func(h Handle, _ int) bool {
			all = append(all, h)
			return true
		})
		return all[rng.IntN(len(all))]
	}

	for i := 0; i < 500; i++ {
		parent := pickParent()
		n, _ := tr.ChildCount(parent)
		op := rng.IntN(6)
		if n == 0 {
			op = 0
		}
		var err error
		switch op {
		case 0:
			_, err = tr.Insert(rng.IntN(n+1), parent)
		case 1:
			if tr.Len() > 1 {
				err = tr.Remove(rng.IntN(n), parent)
			}
		case 2:
			_, err = tr.MoveUp(rng.IntN(n), parent)
		case 3:
			_, err = tr.MoveDown(rng.IntN(n), parent)
		case 4:
			_, err = tr.MoveLeft(rng.IntN(n), parent)
		case 5:
			_, err = tr.MoveRight(rng.IntN(n), parent)
		}
		if err != nil {
			t.Fatalf("step %d op %d: %v", i, op, err)
		}

		walked := 0
		tr.Walk(func(h Handle, _ int) bool {
			walked++
			row, err := tr.Row(h)
			if err != nil {
				t.Fatalf("Row: %v", err)
			}
			p, _ := tr.Parent(h)
			got, _ := tr.Child(p, row)
			if got != h {
				t.Fatalf("step %d: Child(Parent(h), Row(h)) != h", i)
			}
			return true
		})
		if walked != tr.Len() {
			t.Fatalf("step %d: walked %d nodes, Len = %d", i, walked, tr.Len())
		}
		for _, p := range []Handle{Root, parent} {
			if !tr.Contains(p) {
				continue
			}
			cc, _ := tr.ChildCount(p)
			if cc != countChildren(tr, p) {
				t.Fatalf("step %d: ChildCount = %d, counted %d", i, cc, countChildren(tr, p))
			}
		}
	}
}

func TestAddressAndHandleRoundTrip(t *testing.T) {
	tr, a, _, _ := buildABC(t)
	a1, _ := tr.Append(a)
	_ = tr.SetName(a1, "Plans")

	addr, err := tr.Address(a1)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if addr != "A > Plans" {
		t.Errorf("address = %q", addr)
	}

	parsed, err := ParseHandle(a1.String())
	if err != nil {
		t.Fatalf("ParseHandle: %v", err)
	}
	if parsed != a1 {
		t.Errorf("parsed = %v, want %v", parsed, a1)
	}
	if _, err := ParseHandle("nope"); err == nil {
		t.Error("expected error for malformed handle")
	}
}

func TestSetters_EmitChangedOnlyOnChange(t *testing.T) {
	tr, a, _, _ := buildABC(t)
	var fields []string
	tr.Subscribe(ObserverFunc(func(ev Event) {
		if ev.Kind == EventChanged {
			fields = append(fields, ev.Field)
		}
	}))

	_ = tr.SetName(a, "A")
	_ = tr.SetTag(a, "work")
	_ = tr.SetText(a, "<p>x</p>")
	_ = tr.SetText(a, "<p>x</p>")
	_ = tr.ClearText(a)
	_ = tr.ClearText(a)

	if !equalStrings(fields, []string{"tag", "text", "text"}) {
		t.Errorf("changed fields = %v", fields)
	}
	n, _ := tr.Get(a)
	if n.HasText {
		t.Error("text child should be gone")
	}
}

func TestNewDocument(t *testing.T) {
	d := New(Font{}, Font{})
	if d.Tree.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Tree.Len())
	}
	h, _ := d.Tree.First()
	n, _ := d.Tree.Get(h)
	if n.Name != "New Node" {
		t.Errorf("name = %q", n.Name)
	}
	if !d.TextFont.Equal(DefaultTextFont) {
		t.Errorf("text font = %v", d.TextFont)
	}
	if s := d.Stats(); s.MainNodes != 1 || s.AllNodes != 1 {
		t.Errorf("stats = %+v", s)
	}
}
