package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/index"
	"github.com/starford/feathernotes/internal/models"
	"github.com/starford/feathernotes/internal/richtext"
	"github.com/starford/feathernotes/internal/search"
	"github.com/starford/feathernotes/internal/session"
)

// Handler holds API route handlers.
type Handler struct {
	sess *session.Session
	lib  index.LibraryIndex
}

// NewHandler creates a new Handler. lib may be nil when the library index
// is disabled.
func NewHandler(sess *session.Session, lib index.LibraryIndex) *Handler {
	return &Handler{sess: sess, lib: lib}
}

// nodeID extracts the node handle from the {id} URL parameter.
func nodeID(w http.ResponseWriter, r *http.Request) (document.Handle, bool) {
	h, err := document.ParseHandle(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
		return document.Root, false
	}
	return h, true
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// GetDocument handles GET /api/document.
//
//	@Summary		Document summary and node tree
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	info, err := h.sess.Info()
	if err != nil {
		writeError(w, "document info", err)
		return
	}
	tree, err := h.sess.Tree()
	if err != nil {
		writeError(w, "document tree", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Info: info, Nodes: tree})
}

// OpenDocument handles POST /api/document/open.
//
//	@Summary		Open a document file
//	@Description	Files without the .fnx extension are accepted when their content is a note document. Unsaved changes go through the close gate first.
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Document path"
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/open [post]
func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.sess.Drop(r.Context(), req.Path); err != nil {
		writeError(w, "open", err)
		return
	}
	h.GetDocument(w, r)
}

// SaveDocument handles POST /api/document/save.
//
//	@Summary		Save the document, or Save As with a path
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	false	"Target path"
//	@Success		200		{object}	session.Info
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/save [post]
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if r.ContentLength != 0 && !readJSON(w, r, &req) {
		return
	}
	var err error
	if req.Path != "" {
		err = h.sess.SaveAs(r.Context(), req.Path)
	} else {
		err = h.sess.Save(r.Context())
	}
	if err != nil {
		writeError(w, "save", err)
		return
	}
	info, err := h.sess.Info()
	if err != nil {
		writeError(w, "document info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SetPassword handles PUT /api/document/password.
//
//	@Summary		Set or clear the document password
//	@Tags			document
//	@Accept			json
//	@Param			body	body	PasswordRequest	true	"New password"
//	@Success		204		"Password set"
//	@Security		BearerAuth
//	@Router			/document/password [put]
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.sess.SetPassword(req.Password); err != nil {
		writeError(w, "set password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFonts handles PUT /api/document/fonts.
//
//	@Summary		Change the text and node fonts
//	@Tags			document
//	@Accept			json
//	@Param			body	body	FontsRequest	true	"Fonts as \"family,size\""
//	@Success		204		"Fonts changed"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/fonts [put]
func (h *Handler) SetFonts(w http.ResponseWriter, r *http.Request) {
	var req FontsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.TextFont != "" {
		f, _ := document.ParseFont(req.TextFont)
		if err := h.sess.SetTextFont(f); err != nil {
			writeError(w, "set text font", err)
			return
		}
	}
	if req.NodeFont != "" {
		f, _ := document.ParseFont(req.NodeFont)
		if err := h.sess.SetNodeFont(f); err != nil {
			writeError(w, "set node font", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNode handles POST /api/nodes.
//
//	@Summary		Insert a node next to or under another one
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNodeRequest	true	"Placement"
//	@Success		201		{object}	session.NodeDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [post]
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !readJSON(w, r, &req) {
		return
	}
	ref := document.Root
	if req.Ref != "" {
		ref, _ = document.ParseHandle(req.Ref)
	}
	pos, _ := session.ParsePosition(req.Position)
	n, err := h.sess.Insert(ref, pos)
	if err != nil {
		writeError(w, "create node", err)
		return
	}
	if req.Name != "" {
		if err := h.sess.Rename(n, req.Name); err != nil {
			writeError(w, "rename node", err)
			return
		}
	}
	h.writeNode(w, http.StatusCreated, n)
}

// GetNode handles GET /api/nodes/{id}.
//
//	@Summary		Node detail with sanitized body
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	session.NodeDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	if queryBool(r, "select") {
		if _, err := h.sess.Select(n); err != nil {
			writeError(w, "select node", err)
			return
		}
	}
	h.writeNode(w, http.StatusOK, n)
}

func (h *Handler) writeNode(w http.ResponseWriter, status int, n document.Handle) {
	d, err := h.sess.Node(n)
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	d.Body = richtext.Sanitize(d.Body)
	writeJSON(w, status, d)
}

// UpdateNode handles PATCH /api/nodes/{id}.
//
//	@Summary		Rename a node or change its tags or icon
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Node id"
//	@Param			body	body		UpdateNodeRequest	true	"Changed attributes"
//	@Success		200		{object}	session.NodeDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [patch]
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	var req UpdateNodeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		if err := h.sess.Rename(n, *req.Name); err != nil {
			writeError(w, "rename node", err)
			return
		}
	}
	if req.Tag != nil {
		if err := h.sess.SetTags(n, *req.Tag); err != nil {
			writeError(w, "set tags", err)
			return
		}
	}
	if req.Icon != nil {
		data, err := base64.StdEncoding.DecodeString(*req.Icon)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("icon must be base64"))
			return
		}
		if err := h.sess.SetIcon(n, data); err != nil {
			writeError(w, "set icon", err)
			return
		}
	}
	h.writeNode(w, http.StatusOK, n)
}

// SetText handles PUT /api/nodes/{id}/text.
//
//	@Summary		Replace a node body
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Node id"
//	@Param			body	body		TextRequest	true	"New body"
//	@Success		200		{object}	session.NodeDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/text [put]
func (h *Handler) SetText(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	var req TextRequest
	if !readJSON(w, r, &req) {
		return
	}
	var err error
	if req.HTML != "" {
		err = h.sess.SetText(n, req.HTML)
	} else {
		err = h.sess.SetPlainText(n, req.Text)
	}
	if err != nil {
		writeError(w, "set text", err)
		return
	}
	h.writeNode(w, http.StatusOK, n)
}

// history handles POST /api/nodes/{id}/undo and /redo.
func (h *Handler) history(redo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := nodeID(w, r)
		if !ok {
			return
		}
		step := h.sess.Undo
		if redo {
			step = h.sess.Redo
		}
		if _, err := step(n); err != nil {
			writeError(w, "history", err)
			return
		}
		h.writeNode(w, http.StatusOK, n)
	}
}

// DeleteNode handles DELETE /api/nodes/{id}.
//
//	@Summary		Delete a node and its subtree
//	@Tags			nodes
//	@Param			id	path	string	true	"Node id"
//	@Success		204	"Node deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	if err := h.sess.Delete(n); err != nil {
		writeError(w, "delete node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNode handles POST /api/nodes/{id}/move/{dir}.
//
//	@Summary		Move a node up, down, left or right
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Param			dir	path		string	true	"Direction"	Enums(up, down, left, right)
//	@Success		200	{object}	map[string]bool
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/move/{dir} [post]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	dir, err := session.ParseDirection(chi.URLParam(r, "dir"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	moved, err := h.sess.Move(n, dir)
	if err != nil {
		writeError(w, "move node", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

// Find handles GET /api/search.
//
//	@Summary		Find the next node by name, tag or text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search text"
//	@Param			scope	query		string	false	"Domain"	Enums(names, tags, text)
//	@Param			case	query		bool	false	"Case sensitive"
//	@Param			whole	query		bool	false	"Whole words"
//	@Param			back	query		bool	false	"Search backward"
//	@Param			from	query		string	false	"Start after this node id"
//	@Success		200		{object}	FindResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("q")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	domain, ok := session.ParseDomain(q.Get("scope"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("scope must be names, tags or text"))
		return
	}
	from := document.Root
	if s := q.Get("from"); s != "" {
		var err error
		if from, err = document.ParseHandle(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
			return
		}
	}
	opts := search.Options{
		CaseSensitive: queryBool(r, "case"),
		WholeWord:     queryBool(r, "whole"),
		Backward:      queryBool(r, "back"),
	}
	hit, found, err := h.sess.FindNext(from, domain, text, opts)
	if err != nil {
		writeError(w, "find", err)
		return
	}
	resp := FindResponse{Found: found}
	if found {
		ref, err := h.sess.Ref(hit.Node)
		if err != nil {
			writeError(w, "find", err)
			return
		}
		resp.Node = &ref
		if len(hit.Spans) > 0 {
			resp.Spans = hit.Spans
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tags handles GET /api/tags.
//
//	@Summary		List nodes whose tags contain the text
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Tag text"
//	@Success		200	{object}	map[string][]session.NodeRef
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	refs, err := h.sess.TagMatches(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "tag matches", err)
		return
	}
	if refs == nil {
		refs = []session.NodeRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": refs})
}

// Replace handles POST /api/replace.
//
//	@Summary		Replace all matches in the current node or everywhere
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReplaceRequest	true	"Find and replace"
//	@Success		200		{object}	ReplaceResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/replace [post]
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRequest
	if !readJSON(w, r, &req) {
		return
	}
	scope := search.Current
	if req.Scope == "all" {
		scope = search.Everywhere
	}
	res, err := h.sess.ReplaceAll(scope, req.Find, req.Replace, req.Options)
	if err != nil {
		writeError(w, "replace", err)
		return
	}
	resp := ReplaceResponse{Count: res.Count, Nodes: []session.NodeRef{}}
	for _, n := range res.Nodes {
		if ref, err := h.sess.Ref(n); err == nil {
			resp.Nodes = append(resp.Nodes, ref)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// LibrarySearch handles GET /api/library/search.
//
//	@Summary		Full-text search across the notes directory
//	@Tags			library
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	LibrarySearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/library/search [get]
func (h *Handler) LibrarySearch(w http.ResponseWriter, r *http.Request) {
	if h.lib == nil {
		writeJSON(w, http.StatusNotFound, errorBody("library index disabled"))
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.lib.Search(q, limit)
	if err != nil {
		writeError(w, "library search", err)
		return
	}
	if results == nil {
		results = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, LibrarySearchResponse{Results: results})
}
