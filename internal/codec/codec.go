// Package codec reads and writes .fnx note documents: indented XML, either
// stored as-is or, for password-protected documents, passed through the
// simplecrypt cipher under the application key.
package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/simplecrypt"
	"github.com/starford/feathernotes/internal/storage"
)

// PasswordPrompter asks the user for a document password. retry is true
// after a wrong entry. Returning an error abandons the load; a prompter that
// cannot ask again should return apperr.ErrCancelled on retry.
type PasswordPrompter interface {
	Password(ctx context.Context, retry bool) (string, error)
}

// Encode serializes doc and encrypts it when a password is set.
func Encode(doc *document.Document) ([]byte, error) {
	data, err := Marshal(doc)
	if err != nil {
		return nil, err
	}
	if doc.Password == "" {
		return data, nil
	}
	enc, err := simplecrypt.New(simplecrypt.AppKey).EncryptString(string(data))
	if err != nil {
		return nil, fmt.Errorf("codec: encrypt: %w", err)
	}
	return []byte(enc), nil
}

// Decode returns the XML text of raw file content. Content that does not
// decrypt under the application key is taken to be plain XML.
func Decode(raw []byte) (xmlText []byte, encrypted bool) {
	plain, err := simplecrypt.New(simplecrypt.AppKey).DecryptString(strings.TrimSpace(string(raw)))
	if err != nil || plain == "" {
		return raw, false
	}
	return []byte(plain), true
}

// Load decodes and parses raw file content. When the document carries a
// password check value, prompter is asked until the entry matches or it
// gives up; giving up yields apperr.ErrAuth and no document.
func Load(ctx context.Context, raw []byte, prompter PasswordPrompter) (*document.Document, error) {
	data, _ := Decode(raw)
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if doc.Password == "" {
		return doc, nil
	}
	if prompter == nil {
		return nil, fmt.Errorf("codec: document is password protected: %w", apperr.ErrAuth)
	}
	for retry := false; ; retry = true {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("codec: %v: %w", err, apperr.ErrAuth)
		}
		pw, err := prompter.Password(ctx, retry)
		if err != nil {
			if errors.Is(err, apperr.ErrCancelled) {
				return nil, fmt.Errorf("codec: password entry cancelled: %w", apperr.ErrAuth)
			}
			return nil, fmt.Errorf("codec: password prompt: %v: %w", err, apperr.ErrAuth)
		}
		if pw == doc.Password {
			return doc, nil
		}
	}
}

// Save flushes pending pane edits through flush (which may be nil), encodes
// doc and atomically replaces the file at path. Write failures are returned
// as *apperr.IOError and leave the previous file untouched.
func Save(files storage.Files, path string, doc *document.Document, flush func() error) error {
	if flush != nil {
		if err := flush(); err != nil {
			return fmt.Errorf("codec: flush: %w", err)
		}
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := files.WriteFile(path, data); err != nil {
		return &apperr.IOError{Op: "save", Path: path, Err: err}
	}
	return nil
}
