// Package document implements the FeatherNotes node tree: an ordered tree of
// named notes with optional tags, icons and rich-text bodies, plus the
// document-wide font and password attributes.
package document

// Document is one .fnx note file in memory.
type Document struct {
	TextFont Font
	NodeFont Font
	// Password is the plaintext check value stored in the pswrd attribute.
	// An empty value means the file is written unencrypted.
	Password string
	Tree     *Tree
}

// New returns the "new note" document: a single top-level node named
// DefaultNodeName.
func New(textFont, nodeFont Font) *Document {
	d := Empty(textFont, nodeFont)
	// Appending to a fresh tree cannot fail.
	_, _ = d.Tree.Append(Root)
	return d
}

// Empty returns a document without any nodes.
func Empty(textFont, nodeFont Font) *Document {
	if textFont.IsZero() {
		textFont = DefaultTextFont
	}
	if nodeFont.IsZero() {
		nodeFont = DefaultNodeFont
	}
	return &Document{TextFont: textFont, NodeFont: nodeFont, Tree: NewTree()}
}

// Stats is the node count summary shown in the status bar.
type Stats struct {
	MainNodes int `json:"main_nodes"`
	AllNodes  int `json:"all_nodes"`
}

// Stats counts top-level and total nodes.
func (d *Document) Stats() Stats {
	return Stats{MainNodes: d.Tree.TopLevelCount(), AllNodes: d.Tree.Len()}
}
