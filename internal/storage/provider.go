// Package storage reads and writes note documents on the local file system.
package storage

import "github.com/starford/feathernotes/internal/models"

// DocumentExt is the file suffix of note documents.
const DocumentExt = ".fnx"

// Provider is the interface for the notes library directory.
type Provider interface {
	// List returns metadata for every .fnx file under dir (relative to the library root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the library root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the library root).
	Write(path string, content []byte) error
	// Exists reports whether path names a regular file.
	Exists(path string) bool
	// Delete removes the file at path (relative to the library root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the library root).
	Move(oldPath, newPath string) error
}

// Files reads and writes documents by absolute path. The open document may
// live anywhere, not only under the library root.
type Files interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
	Exists(path string) bool
}
