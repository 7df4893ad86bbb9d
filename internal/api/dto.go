package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/models"
	"github.com/starford/feathernotes/internal/search"
	"github.com/starford/feathernotes/internal/session"
)

// DocumentResponse is the document summary plus the nested tree.
type DocumentResponse struct {
	session.Info
	Nodes []session.TreeNode `json:"nodes" validate:"required"`
}

// SaveRequest is the optional body of POST /document/save. A path turns the
// save into Save As.
type SaveRequest struct {
	Path string `json:"path,omitempty" example:"/home/me/notes/work.fnx"`
}

// OpenRequest names the document to open, as if dropped on the window.
type OpenRequest struct {
	Path string `json:"path" example:"/home/me/notes/work.fnx"`
}

func (r OpenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// PasswordRequest sets or clears the document password.
type PasswordRequest struct {
	Password string `json:"password" example:"hunter2"`
}

// FontsRequest changes the document fonts. Empty fields stay unchanged.
type FontsRequest struct {
	TextFont string `json:"text_font,omitempty" example:"Monospace,10"`
	NodeFont string `json:"node_font,omitempty" example:"Sans Serif,9"`
}

func (r FontsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TextFont, validation.By(fontRule)),
		validation.Field(&r.NodeFont, validation.By(fontRule)),
	)
}

func fontRule(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	_, err := document.ParseFont(s)
	return err
}

// CreateNodeRequest inserts a node relative to Ref. An empty Ref appends at
// the top level.
type CreateNodeRequest struct {
	Ref      string `json:"ref,omitempty" example:"3.1"`
	Position string `json:"position" example:"sibling"`
	Name     string `json:"name,omitempty" example:"Plans"`
}

func (r CreateNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Ref, validation.By(handleRule)),
		validation.Field(&r.Position, validation.In("", "sibling", "prepend", "child")),
	)
}

func handleRule(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	_, err := document.ParseHandle(s)
	return err
}

// UpdateNodeRequest patches node attributes. Nil fields stay unchanged.
type UpdateNodeRequest struct {
	Name *string `json:"name,omitempty" example:"Plans"`
	Tag  *string `json:"tag,omitempty" example:"work, q3"`
	// Icon is base64 image data; an empty string removes the icon.
	Icon *string `json:"icon,omitempty"`
}

func (r UpdateNodeRequest) Validate() error {
	if r.Name == nil && r.Tag == nil && r.Icon == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// TextRequest replaces a node body. HTML takes precedence over Text.
type TextRequest struct {
	HTML string `json:"html,omitempty" example:"<p>Hello</p>"`
	Text string `json:"text,omitempty" example:"Hello"`
}

// ReplaceRequest is the body of POST /replace.
type ReplaceRequest struct {
	Find    string `json:"find" example:"colour"`
	Replace string `json:"replace" example:"color"`
	// Scope is "current" (default) or "all".
	Scope string `json:"scope,omitempty" example:"all"`
	search.Options
}

func (r ReplaceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Find, validation.Required),
		validation.Field(&r.Scope, validation.In("", "current", "all")),
	)
}

// ScaleRequest resizes an embedded image.
type ScaleRequest struct {
	Percent int `json:"percent" example:"50"`
}

// FindResponse is the answer of GET /search.
type FindResponse struct {
	Found bool             `json:"found"`
	Node  *session.NodeRef `json:"node,omitempty"`
	Spans any              `json:"spans,omitempty"`
}

// ReplaceResponse reports a replace-all.
type ReplaceResponse struct {
	Count int               `json:"count"`
	Nodes []session.NodeRef `json:"nodes"`
}

// ImageUploadResponse is returned after an image was embedded.
type ImageUploadResponse struct {
	Index  int    `json:"index" example:"0"`
	Size   int64  `json:"size" example:"12345"`
	URL    string `json:"url" example:"/api/nodes/3.1/images/0"`
	Node   string `json:"node" example:"3.1"`
	Format string `json:"format" example:"image/png"`
}

// LibrarySearchResponse wraps index search hits.
type LibrarySearchResponse struct {
	Results []models.SearchHit `json:"results" validate:"required"`
}
