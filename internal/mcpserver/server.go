// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the open FeatherNotes document and the notes library to
// LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/index"
	"github.com/starford/feathernotes/internal/search"
	"github.com/starford/feathernotes/internal/session"
)

// Server wraps the MCP server with FeatherNotes tools.
type Server struct {
	mcp  *server.MCPServer
	sess *session.Session
	lib  index.LibraryIndex
}

// New creates a new MCP server with all tools registered. lib may be nil
// when the library index is disabled.
func New(sess *session.Session, lib index.LibraryIndex, version string) *Server {
	s := &Server{sess: sess, lib: lib}

	s.mcp = server.NewMCPServer(
		"FeatherNotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List the node tree of the open document with ids, names and tags."),
	), s.listNodes)

	s.mcp.AddTool(mcp.NewTool("read_node",
		mcp.WithDescription("Read one node: name, tags, address, plain-text body and child ids."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id as returned by list_nodes (e.g. 3.1)")),
	), s.readNode)

	s.mcp.AddTool(mcp.NewTool("find_nodes",
		mcp.WithDescription("Find all nodes whose name or tags contain the text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithString("in", mcp.Description("Where to look"), mcp.Enum("names", "tags")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Match case")),
		mcp.WithBoolean("whole_word", mcp.Description("Match whole words only")),
	), s.findNodes)

	s.mcp.AddTool(mcp.NewTool("search_text",
		mcp.WithDescription("Find the next node whose body contains the text, starting after a node "+
			"(or the current one) and wrapping around. The hit becomes the current node."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithString("from", mcp.Description("Start after this node id")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Match case")),
		mcp.WithBoolean("whole_word", mcp.Description("Match whole words only")),
		mcp.WithBoolean("backward", mcp.Description("Search towards the top")),
	), s.searchText)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node to the open document. Read the format first via the "+
			FormatURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Node name")),
		mcp.WithString("ref", mcp.Description("Node id to insert next to or under (empty: top level)")),
		mcp.WithString("position", mcp.Description("Placement relative to ref"), mcp.Enum("sibling", "prepend", "child")),
		mcp.WithString("text", mcp.Description("Plain-text body")),
		mcp.WithString("tag", mcp.Description("Tags")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a note document file in place of the current one. Fails while the current "+
			"document has unsaved changes; call save_document first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the .fnx file")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save the open document. With a path, save it there (.fnx is appended when missing)."),
		mcp.WithString("path", mcp.Description("Target path for Save As")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("embed_image",
		mcp.WithDescription("Embed an image at the end of a node body from a data URI or an http/https URL."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:image/...;base64,... or http(s) URL")),
	), s.embedImage)

	s.mcp.AddTool(mcp.NewTool("search_library",
		mcp.WithDescription("Full-text search through every document in the notes directory."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchLibrary)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the indexed documents of the notes directory."),
	), s.listDocuments)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Document Format",
			mcp.WithResourceDescription("The .fnx note document format and node addressing."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func options(req mcp.CallToolRequest) search.Options {
	return search.Options{
		CaseSensitive: req.GetBool("case_sensitive", false),
		WholeWord:     req.GetBool("whole_word", false),
		Backward:      req.GetBool("backward", false),
	}
}

func optionalHandle(req mcp.CallToolRequest, key string) (document.Handle, error) {
	s := req.GetString(key, "")
	if s == "" {
		return document.Root, nil
	}
	return document.ParseHandle(s)
}

func (s *Server) listNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.sess.Tree()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tree)
}

// nodeView is what read_node returns; the body is plain text.
type nodeView struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Tag      string            `json:"tag,omitempty"`
	Address  string            `json:"address"`
	Text     string            `json:"text"`
	Images   int               `json:"images,omitempty"`
	Modified bool              `json:"modified,omitempty"`
	Children []session.NodeRef `json:"children,omitempty"`
}

func (s *Server) readNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := document.ParseHandle(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.sess.Node(h)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(nodeView{
		ID: d.ID, Name: d.Name, Tag: d.Tag, Address: d.Address, Text: d.Text,
		Images: d.Images, Modified: d.Modified, Children: d.Children,
	})
}

func (s *Server) findNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	re, err := search.Pattern(query, options(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tree, err := s.sess.Tree()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	byTag := req.GetString("in", "names") == "tags"
	refs := []session.NodeRef{}
	var visit func(nodes []session.TreeNode, prefix string)
	visit = func(nodes []session.TreeNode, prefix string) {
		for _, n := range nodes {
			addr := n.Name
			if prefix != "" {
				addr = prefix + " > " + n.Name
			}
			field := n.Name
			if byTag {
				field = n.Tag
			}
			if re.MatchString(field) {
				refs = append(refs, session.NodeRef{ID: n.ID, Name: n.Name, Address: addr})
			}
			visit(n.Children, addr)
		}
	}
	visit(tree, "")
	return jsonResult(refs)
}

func (s *Server) searchText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := optionalHandle(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hit, ok, err := s.sess.FindNext(from, session.InText, query, options(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("no match"), nil
	}
	ref, err := s.sess.Ref(hit.Node)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"node": ref, "spans": hit.Spans})
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref, err := optionalHandle(req, "ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := session.ParsePosition(req.GetString("position", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.sess.Insert(ref, pos)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.Rename(h, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if tag := req.GetString("tag", ""); tag != "" {
		if err := s.sess.SetTags(h, tag); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if text := req.GetString("text", ""); text != "" {
		if err := s.sess.SetPlainText(h, text); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	out, err := s.sess.Ref(h)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.Drop(ctx, path); err != nil {
		if errors.Is(err, apperr.ErrCancelled) {
			return mcp.NewToolResultError("the open document has unsaved changes; save it first"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.sess.Info()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var err error
	if path := req.GetString("path", ""); path != "" {
		err = s.sess.SaveAs(ctx, path)
	} else {
		err = s.sess.Save(ctx)
	}
	if errors.Is(err, session.ErrNoPath) {
		return mcp.NewToolResultError("the document was never saved; give a path"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.sess.Info()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) searchLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.lib == nil {
		return mcp.NewToolResultError("library index is disabled"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.lib.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.lib == nil {
		return mcp.NewToolResultError("library index is disabled"), nil
	}
	docs, err := s.lib.ListDocuments()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs)
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
