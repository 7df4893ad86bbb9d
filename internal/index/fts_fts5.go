//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/feathernotes/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
			doc_path UNINDEXED,
			ord UNINDEXED,
			address UNINDEXED,
			name,
			body,
			tag,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, path string, n models.IndexedNode) error {
	_, err := tx.Exec(`INSERT INTO nodes_fts (doc_path, ord, address, name, body, tag) VALUES (?, ?, ?, ?, ?, ?)`,
		path, n.Ord, n.Address, n.Name, n.Body, n.Tag)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM nodes_fts WHERE doc_path = ?`, path)
}

// Search performs an FTS5 full-text search and returns matching nodes with snippets.
func (db *DB) Search(query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT doc_path,
		       ord,
		       address,
		       name,
		       snippet(nodes_fts, 4, '<b>', '</b>', '...', 64)
		FROM nodes_fts
		WHERE nodes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows)
}
