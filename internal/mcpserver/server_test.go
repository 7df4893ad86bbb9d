package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/feathernotes/internal/models"
	"github.com/starford/feathernotes/internal/session"
	"github.com/starford/feathernotes/internal/testutil"
)

func testServer(t *testing.T) (*Server, *session.Session) {
	t.Helper()
	sess := session.New(session.WithLogger(testutil.DiscardLogger()))
	if err := sess.NewDocument(context.Background()); err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	db := testutil.TestDB(t)
	_ = db.UpsertDocument(models.IndexedDocument{Path: "work.fnx", Checksum: "1", UpdatedAt: time.Now()},
		[]models.IndexedNode{{Name: "Plans", Address: "Plans", Body: "quarterly roadmap"}})
	return New(sess, db, "test"), sess
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_nodes":
		result, err = srv.listNodes(ctx, req)
	case "read_node":
		result, err = srv.readNode(ctx, req)
	case "find_nodes":
		result, err = srv.findNodes(ctx, req)
	case "search_text":
		result, err = srv.searchText(ctx, req)
	case "add_node":
		result, err = srv.addNode(ctx, req)
	case "embed_image":
		result, err = srv.embedImage(ctx, req)
	case "open_document":
		result, err = srv.openDocument(ctx, req)
	case "save_document":
		result, err = srv.saveDocument(ctx, req)
	case "search_library":
		result, err = srv.searchLibrary(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addNode(t *testing.T, srv *Server, args map[string]any) session.NodeRef {
	t.Helper()
	r := callTool(t, srv, "add_node", args)
	if r.IsError {
		t.Fatalf("add_node: %s", resultText(r))
	}
	var ref session.NodeRef
	if err := json.Unmarshal([]byte(resultText(r)), &ref); err != nil {
		t.Fatalf("decode ref: %v", err)
	}
	return ref
}

func TestAddAndReadNode(t *testing.T) {
	srv, _ := testServer(t)

	parent := addNode(t, srv, map[string]any{"name": "Work", "tag": "job"})
	child := addNode(t, srv, map[string]any{
		"name": "Plans", "ref": parent.ID, "position": "child", "text": "ship it\nthen rest",
	})
	if child.Address != "Work > Plans" {
		t.Errorf("address = %q", child.Address)
	}

	r := callTool(t, srv, "read_node", map[string]any{"id": child.ID})
	var v nodeView
	_ = json.Unmarshal([]byte(resultText(r)), &v)
	if v.Name != "Plans" || !strings.Contains(v.Text, "ship it") || !v.Modified {
		t.Errorf("read_node = %+v", v)
	}
}

func TestListNodes(t *testing.T) {
	srv, _ := testServer(t)
	addNode(t, srv, map[string]any{"name": "Second"})

	r := callTool(t, srv, "list_nodes", map[string]any{})
	var tree []session.TreeNode
	if err := json.Unmarshal([]byte(resultText(r)), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree) != 2 || tree[1].Name != "Second" {
		t.Errorf("tree = %+v", tree)
	}
}

func TestReadNodeMissing(t *testing.T) {
	srv, _ := testServer(t)
	for _, id := range []string{"nope", "99.0"} {
		r := callTool(t, srv, "read_node", map[string]any{"id": id})
		if !r.IsError {
			t.Errorf("expected error for node %q", id)
		}
	}
}

func TestFindNodes(t *testing.T) {
	srv, _ := testServer(t)
	work := addNode(t, srv, map[string]any{"name": "Work", "tag": "Job, later"})
	addNode(t, srv, map[string]any{"name": "Workshop", "ref": work.ID, "position": "child"})

	r := callTool(t, srv, "find_nodes", map[string]any{"query": "work"})
	var refs []session.NodeRef
	_ = json.Unmarshal([]byte(resultText(r)), &refs)
	if len(refs) != 2 || refs[1].Address != "Work > Workshop" {
		t.Errorf("names = %+v", refs)
	}

	r = callTool(t, srv, "find_nodes", map[string]any{"query": "work", "whole_word": true})
	refs = nil
	_ = json.Unmarshal([]byte(resultText(r)), &refs)
	if len(refs) != 1 {
		t.Errorf("whole word = %+v", refs)
	}

	r = callTool(t, srv, "find_nodes", map[string]any{"query": "job", "in": "tags", "case_sensitive": true})
	refs = nil
	_ = json.Unmarshal([]byte(resultText(r)), &refs)
	if len(refs) != 0 {
		t.Errorf("case-sensitive tags = %+v", refs)
	}
}

func TestSearchText(t *testing.T) {
	srv, sess := testServer(t)
	n := addNode(t, srv, map[string]any{"name": "Shopping", "text": "buy oat milk"})
	tree, _ := sess.Tree()

	// The search starts after the given node and never tests it.
	r := callTool(t, srv, "search_text", map[string]any{"query": "milk", "from": tree[0].ID})
	if r.IsError || !strings.Contains(resultText(r), n.ID) {
		t.Fatalf("search_text = %s", resultText(r))
	}
	if got := sess.Current().String(); got != n.ID {
		t.Errorf("current = %s, want %s", got, n.ID)
	}

	r = callTool(t, srv, "search_text", map[string]any{"query": "cheese"})
	if resultText(r) != "no match" {
		t.Errorf("miss = %q", resultText(r))
	}
}

func TestEmbedImage(t *testing.T) {
	srv, _ := testServer(t)
	n := addNode(t, srv, map[string]any{"name": "Pics"})
	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

	r := callTool(t, srv, "embed_image", map[string]any{
		"id": n.ID, "url": "data:image/gif;base64," + base64.StdEncoding.EncodeToString(gif),
	})
	if r.IsError {
		t.Fatalf("embed_image: %s", resultText(r))
	}
	var res embedResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.Width != 1 || res.Height != 1 || res.MediaType != "image/gif" {
		t.Errorf("result = %+v", res)
	}

	r = callTool(t, srv, "embed_image", map[string]any{
		"id": n.ID, "url": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png")),
	})
	if !r.IsError {
		t.Error("expected error for bytes that are not an image")
	}
	r = callTool(t, srv, "embed_image", map[string]any{"id": n.ID, "url": "http://127.0.0.1/x.png"})
	if !r.IsError {
		t.Error("expected loopback fetch to be blocked")
	}
}

func TestSearchLibrary(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_library", map[string]any{"query": "roadmap"})
	if !strings.Contains(resultText(r), "work.fnx") {
		t.Errorf("search_library = %s", resultText(r))
	}
	r = callTool(t, srv, "list_documents", map[string]any{})
	if !strings.Contains(resultText(r), "work.fnx") {
		t.Errorf("list_documents = %s", resultText(r))
	}

	noLib := New(session.New(), nil, "test")
	r = callTool(t, noLib, "search_library", map[string]any{"query": "x"})
	if !r.IsError {
		t.Error("expected error with the index disabled")
	}
}

func TestFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != FormatURI || !strings.Contains(tc.Text, "<feathernotes") {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestSaveAndOpenDocument(t *testing.T) {
	srv, sess := testServer(t)
	addNode(t, srv, map[string]any{"name": "Kept"})

	r := callTool(t, srv, "save_document", map[string]any{})
	if !r.IsError || !strings.Contains(resultText(r), "give a path") {
		t.Fatalf("save without path = %s", resultText(r))
	}

	path := filepath.Join(t.TempDir(), "mcp")
	r = callTool(t, srv, "save_document", map[string]any{"path": path})
	if r.IsError {
		t.Fatalf("save_document: %s", resultText(r))
	}
	var info session.Info
	_ = json.Unmarshal([]byte(resultText(r)), &info)
	if info.Path != path+".fnx" || info.Modified {
		t.Errorf("info = %+v", info)
	}

	addNode(t, srv, map[string]any{"name": "Unsaved"})
	r = callTool(t, srv, "open_document", map[string]any{"path": path + ".fnx"})
	if !r.IsError || !strings.Contains(resultText(r), "unsaved changes") {
		t.Fatalf("open over unsaved = %s", resultText(r))
	}

	r = callTool(t, srv, "save_document", map[string]any{})
	if r.IsError {
		t.Fatalf("save_document: %s", resultText(r))
	}
	r = callTool(t, srv, "open_document", map[string]any{"path": path + ".fnx"})
	if r.IsError {
		t.Fatalf("open_document: %s", resultText(r))
	}
	if sess.Path() != path+".fnx" || sess.Modified() {
		t.Errorf("session path = %q, modified = %v", sess.Path(), sess.Modified())
	}

	r = callTool(t, srv, "open_document", map[string]any{"path": filepath.Join(t.TempDir(), "notes.txt")})
	if !r.IsError {
		t.Error("opening a non-document should fail")
	}
}
