package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle addresses a node in a Tree. Handles are generation-checked: once a
// node is removed, every handle that pointed at it stops resolving.
//
// The zero Handle is the root sentinel (the feathernotes element).
type Handle struct {
	index uint32
	gen   uint32
}

// Root is the sentinel parent of all top-level nodes.
var Root = Handle{}

// IsRoot reports whether h is the root sentinel.
func (h Handle) IsRoot() bool { return h == Root }

// String renders the handle as "<index>.<generation>", the wire form used by
// the HTTP and MCP surfaces.
func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.index, h.gen)
}

// ParseHandle parses the form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	idx, gen, ok := strings.Cut(s, ".")
	if !ok {
		return Handle{}, fmt.Errorf("document: bad handle %q", s)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("document: bad handle %q: %w", s, err)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("document: bad handle %q: %w", s, err)
	}
	return Handle{index: uint32(i), gen: uint32(g)}, nil
}
