package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/models"
)

// UpsertDocument replaces a document row, its nodes and their FTS entries
// within a transaction.
func (db *DB) UpsertDocument(d models.IndexedDocument, nodes []models.IndexedNode) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, encrypted, node_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			encrypted  = excluded.encrypted,
			node_count = excluded.node_count,
			updated_at = excluded.updated_at
	`, d.Path, d.Checksum, d.Encrypted, len(nodes), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	// Replace nodes: delete old then bulk insert.
	ftsDelete(tx, d.Path)
	if _, err := tx.Exec(`DELETE FROM nodes WHERE doc_path = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear nodes: %w", err)
	}
	if len(nodes) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO nodes (doc_path, ord, address, name, tag, body) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare node insert: %w", err)
		}
		defer stmt.Close()
		for _, n := range nodes {
			if _, err := stmt.Exec(d.Path, n.Ord, n.Address, n.Name, n.Tag, n.Body); err != nil {
				return fmt.Errorf("index: insert node: %w", err)
			}
			// FTS upsert (no-op when FTS5 tag is absent).
			if err := ftsInsert(tx, d.Path, n); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its nodes and their FTS entries.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM nodes WHERE doc_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed document keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const documentColumns = `path, checksum, encrypted, node_count, updated_at`

func scanDocument(sc interface{ Scan(...any) error }) (models.IndexedDocument, error) {
	var d models.IndexedDocument
	err := sc.Scan(&d.Path, &d.Checksum, &d.Encrypted, &d.Nodes, &d.UpdatedAt)
	return d, err
}

// GetDocument returns one document row.
func (db *DB) GetDocument(path string) (*models.IndexedDocument, error) {
	d, err := scanDocument(db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns every document row ordered by path.
func (db *DB) ListDocuments() ([]models.IndexedDocument, error) {
	rows, err := db.conn.Query(`SELECT ` + documentColumns + ` FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []models.IndexedDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Nodes returns the indexed nodes of a document in pre-order.
func (db *DB) Nodes(path string) ([]models.IndexedNode, error) {
	rows, err := db.conn.Query(`
		SELECT doc_path, ord, address, name, tag, body
		FROM nodes WHERE doc_path = ? ORDER BY ord
	`, path)
	if err != nil {
		return nil, fmt.Errorf("index: nodes: %w", err)
	}
	defer rows.Close()

	var out []models.IndexedNode
	for rows.Next() {
		var n models.IndexedNode
		if err := rows.Scan(&n.DocPath, &n.Ord, &n.Address, &n.Name, &n.Tag, &n.Body); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SearchTags returns nodes whose tag contains tag, ignoring case.
func (db *DB) SearchTags(tag string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT doc_path, ord, address, name, tag
		FROM nodes
		WHERE tag LIKE ?
		ORDER BY doc_path, ord
		LIMIT ?
	`, "%"+tag+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("index: search tags: %w", err)
	}
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]models.SearchHit, error) {
	defer rows.Close()
	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.DocPath, &h.Ord, &h.Address, &h.Name, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
