package index

import (
	"log/slog"
	"time"

	"github.com/starford/feathernotes/internal/checksum"
	"github.com/starford/feathernotes/internal/codec"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/models"
	"github.com/starford/feathernotes/internal/richtext"
	"github.com/starford/feathernotes/internal/storage"
)

// Sync walks the notes directory and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses a .fnx document and upserts it into the DB. Protected
// documents are recorded without their nodes.
func indexFile(db *DB, path string, data []byte) error {
	xmlText, encrypted := codec.Decode(data)
	doc, err := codec.Unmarshal(xmlText)
	if err != nil {
		return err
	}

	row := models.IndexedDocument{
		Path:      path,
		Checksum:  checksum.Sum(data),
		Encrypted: encrypted || doc.Password != "",
		UpdatedAt: time.Now().UTC(),
	}
	if row.Encrypted {
		return db.UpsertDocument(row, nil)
	}
	return db.UpsertDocument(row, flatten(path, doc.Tree))
}

// flatten lists the nodes of t in pre-order with their plain-text bodies.
func flatten(path string, t *document.Tree) []models.IndexedNode {
	var out []models.IndexedNode
	t.Walk(func(h document.Handle, _ int) bool {
		n, err := t.Get(h)
		if err != nil {
			return true
		}
		addr, _ := t.Address(h)
		in := models.IndexedNode{DocPath: path, Ord: len(out), Address: addr, Name: n.Name, Tag: n.Tag}
		if n.HasText {
			in.Body = richtext.PlainText(n.Text)
		}
		out = append(out, in)
		return true
	})
	return out
}
