package session

import (
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/richtext"
)

// NodeRef identifies a node on the wire.
type NodeRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// TreeNode is one node of the nested tree listing.
type TreeNode struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Tag      string     `json:"tag,omitempty"`
	HasIcon  bool       `json:"has_icon,omitempty"`
	Modified bool       `json:"modified,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// Info is the document summary shown in the status bar.
type Info struct {
	Path      string `json:"path"`
	MainNodes int    `json:"main_nodes"`
	AllNodes  int    `json:"all_nodes"`
	Modified  bool   `json:"modified"`
	Encrypted bool   `json:"encrypted"`
	Removed   bool   `json:"removed"`
	TextFont  string `json:"text_font"`
	NodeFont  string `json:"node_font"`
	Current   string `json:"current,omitempty"`
}

// NodeDetail is the full view of one node. Body is the stored form, pane
// edits included; it is not sanitized.
type NodeDetail struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Tag        string          `json:"tag,omitempty"`
	Icon       string          `json:"icon,omitempty"`
	Address    string          `json:"address"`
	Body       string          `json:"body"`
	Text       string          `json:"text"`
	Images     int             `json:"images"`
	Modified   bool            `json:"modified"`
	SearchText string          `json:"search_text,omitempty"`
	Highlights []richtext.Span `json:"highlights,omitempty"`
	Children   []NodeRef       `json:"children,omitempty"`
}

// Info returns the document summary.
func (s *Session) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return Info{}, err
	}
	st := s.doc.Stats()
	info := Info{
		Path:      s.path,
		MainNodes: st.MainNodes,
		AllNodes:  st.AllNodes,
		Modified:  s.counter.Modified(),
		Encrypted: s.doc.Password != "",
		Removed:   s.path != "" && (s.removed || !s.files.Exists(s.path)),
		TextFont:  s.doc.TextFont.String(),
		NodeFont:  s.doc.NodeFont.String(),
	}
	if !s.current.IsRoot() {
		info.Current = s.current.String()
	}
	return info, nil
}

// Tree returns the nested node listing.
func (s *Session) Tree() ([]TreeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return nil, err
	}
	return s.subtree(document.Root)
}

func (s *Session) subtree(parent document.Handle) ([]TreeNode, error) {
	children, err := s.doc.Tree.Children(parent)
	if err != nil {
		return nil, err
	}
	out := make([]TreeNode, 0, len(children))
	for _, h := range children {
		n, err := s.doc.Tree.Get(h)
		if err != nil {
			return nil, err
		}
		sub, err := s.subtree(h)
		if err != nil {
			return nil, err
		}
		tn := TreeNode{ID: h.String(), Name: n.Name, Tag: n.Tag, HasIcon: n.Icon != "", Children: sub}
		if p, ok := s.table.Lookup(h); ok {
			tn.Modified = p.IsModified()
		}
		out = append(out, tn)
	}
	return out, nil
}

// Node returns the detail view of h.
func (s *Session) Node(h document.Handle) (NodeDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return NodeDetail{}, err
	}
	n, err := s.doc.Tree.Get(h)
	if err != nil {
		return NodeDetail{}, err
	}
	addr, err := s.doc.Tree.Address(h)
	if err != nil {
		return NodeDetail{}, err
	}
	d := NodeDetail{ID: h.String(), Name: n.Name, Tag: n.Tag, Icon: n.Icon, Address: addr}

	if p, ok := s.table.Lookup(h); ok {
		body, err := p.HTML()
		if err != nil {
			return NodeDetail{}, err
		}
		d.Body = body
		d.Text = p.PlainText()
		d.Images = len(p.Content().Images())
		d.Modified = p.IsModified()
		d.SearchText = p.SearchText()
		d.Highlights = p.Highlights()
	} else if n.HasText {
		c, err := richtext.Parse(n.Text)
		if err != nil {
			return NodeDetail{}, err
		}
		d.Body = n.Text
		d.Text = c.PlainText()
		d.Images = len(c.Images())
	}

	children, err := s.doc.Tree.Children(h)
	if err != nil {
		return NodeDetail{}, err
	}
	for _, c := range children {
		d.Children = append(d.Children, s.refLocked(c))
	}
	return d, nil
}

// Ref returns the wire reference of h.
func (s *Session) Ref(h document.Handle) (NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return NodeRef{}, err
	}
	if _, err := s.doc.Tree.Get(h); err != nil {
		return NodeRef{}, err
	}
	return s.refLocked(h), nil
}

func (s *Session) refLocked(h document.Handle) NodeRef {
	n, _ := s.doc.Tree.Get(h)
	addr, _ := s.doc.Tree.Address(h)
	return NodeRef{ID: h.String(), Name: n.Name, Address: addr}
}
