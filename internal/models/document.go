// Package models defines the library types shared by storage, index and the
// HTTP and MCP surfaces.
package models

import "time"

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexedDocument is one row of the library index.
type IndexedDocument struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Encrypted bool      `json:"encrypted"`
	Nodes     int       `json:"nodes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexedNode is one node of an indexed document, flattened in pre-order.
type IndexedNode struct {
	DocPath string `json:"doc_path"`
	Ord     int    `json:"ord"`
	Address string `json:"address"`
	Name    string `json:"name"`
	Tag     string `json:"tag,omitempty"`
	Body    string `json:"-"`
}

// SearchHit is a node matching a library search.
type SearchHit struct {
	DocPath string `json:"doc_path"`
	Ord     int    `json:"ord"`
	Address string `json:"address"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}
