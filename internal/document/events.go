package document

// EventKind identifies a structural or attribute change in a Tree.
type EventKind int

const (
	// EventInserted fires after a node was created.
	EventInserted EventKind = iota
	// EventRemoving fires before a node and its subtree are removed.
	// Subtree lists the node itself followed by all descendants in pre-order,
	// and every handle in it still resolves.
	EventRemoving
	// EventRemoved fires once the subtree is gone.
	EventRemoved
	// EventMoved fires after a node changed position.
	EventMoved
	// EventChanged fires after a node attribute or its text changed.
	EventChanged
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventRemoving:
		return "removing"
	case EventRemoved:
		return "removed"
	case EventMoved:
		return "moved"
	case EventChanged:
		return "changed"
	}
	return "unknown"
}

// Event describes one tree mutation.
type Event struct {
	Kind      EventKind
	Node      Handle
	Parent    Handle
	Row       int
	OldParent Handle
	OldRow    int
	Subtree   []Handle
	Field     string // for EventChanged: "name", "tag", "icon" or "text"
}

// Observer receives tree events synchronously on the mutating goroutine.
type Observer interface {
	TreeChanged(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// TreeChanged calls f(ev).
func (f ObserverFunc) TreeChanged(ev Event) { f(ev) }

type subscription struct {
	id  int
	obs Observer
}

// Subscribe registers o and returns a function that unregisters it.
// Observers are notified in subscription order.
func (t *Tree) Subscribe(o Observer) (unsubscribe func()) {
	t.nextSub++
	id := t.nextSub
	t.subs = append(t.subs, subscription{id: id, obs: o})
	return func() {
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

func (t *Tree) emit(ev Event) {
	// Copy so observers may unsubscribe while being notified.
	subs := append([]subscription(nil), t.subs...)
	for _, s := range subs {
		s.obs.TreeChanged(ev)
	}
}
