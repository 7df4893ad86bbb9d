package index

import "github.com/starford/feathernotes/internal/models"

// LibraryIndex defines the interface for document indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type LibraryIndex interface {
	UpsertDocument(d models.IndexedDocument, nodes []models.IndexedNode) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*models.IndexedDocument, error)
	ListDocuments() ([]models.IndexedDocument, error)
	Nodes(path string) ([]models.IndexedNode, error)
	Search(query string, limit int) ([]models.SearchHit, error)
	SearchTags(tag string, limit int) ([]models.SearchHit, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies LibraryIndex at compile time.
var _ LibraryIndex = (*DB)(nil)
