// Package session is the controller for one open note document. It owns the
// node tree, the pane table and the file path, and runs every command
// against them one at a time.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/codec"
	"github.com/starford/feathernotes/internal/document"
	"github.com/starford/feathernotes/internal/pane"
	"github.com/starford/feathernotes/internal/storage"
)

// DocumentMediaType is the drag-and-drop media type of note documents.
const DocumentMediaType = "text/feathernotes-fnx"

var (
	// ErrNoDocument is returned by commands issued after Close.
	ErrNoDocument = errors.New("session: no document open")
	// ErrNoPath is returned by Save for a document that was never saved.
	ErrNoPath = errors.New("session: document has no file path")
	// ErrNotDocument rejects a drop that is not a note document.
	ErrNotDocument = errors.New("session: not a note document")
)

// Reason says why the unsaved-changes gate was raised.
type Reason int

const (
	ReasonModified Reason = iota
	ReasonRemoved
)

func (r Reason) String() string {
	if r == ReasonRemoved {
		return "The file has been removed.\nDo you want to save it?"
	}
	return "The document has been modified.\nDo you want to save your changes?"
}

// Choice is the answer to the unsaved-changes gate.
type Choice int

const (
	ChoiceSave Choice = iota
	ChoiceDiscard
	ChoiceCancel
)

// Prompter stands in for the modal dialogs. Calls are made while the session
// is locked.
type Prompter interface {
	codec.PasswordPrompter
	ConfirmUnsaved(ctx context.Context, r Reason) (Choice, error)
	Notify(ctx context.Context, msg string)
}

// Publisher receives change events, e.g. the SSE broker.
type Publisher interface {
	PublishChange(kind string, data any)
}

// Event kinds sent to the Publisher.
const (
	EventOpened   = "document.opened"
	EventSaved    = "document.saved"
	EventModified = "document.modified"
	EventClosed   = "document.closed"
	EventRemoved  = "document.removed"
	EventCreated  = "node.created"
	EventDeleted  = "node.deleted"
	EventMoved    = "node.moved"
	EventChanged  = "node.changed"
)

// Session holds one document at a time.
type Session struct {
	mu sync.Mutex

	doc     *document.Document
	path    string
	table   *pane.Table
	counter *pane.Counter
	current document.Handle
	removed bool
	unsub   func()

	textFont  document.Font
	nodeFont  document.Font
	files     storage.Files
	prompter  Prompter
	publisher Publisher
	logger    *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithFonts sets the fonts of new documents.
func WithFonts(text, node document.Font) Option {
	return func(s *Session) {
		s.textFont = text
		s.nodeFont = node
	}
}

// WithFiles replaces the default file access.
func WithFiles(f storage.Files) Option {
	return func(s *Session) { s.files = f }
}

// WithPrompter sets the dialog stand-in. Without one, every gate answers
// Cancel and protected documents cannot be opened.
func WithPrompter(p Prompter) Option {
	return func(s *Session) { s.prompter = p }
}

// WithPublisher sets the change event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New returns a session holding a new document with one empty node.
func New(opts ...Option) *Session {
	s := &Session{files: storage.OS{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.install(document.New(s.textFont, s.nodeFont), "")
	return s
}

// install replaces the open document. The caller holds the lock.
func (s *Session) install(doc *document.Document, path string) {
	s.teardown()
	s.doc = doc
	s.path = path
	s.removed = false
	s.counter = pane.NewCounter(func(modified bool) {
		s.publish(EventModified, map[string]any{"modified": modified})
	})
	s.table = pane.NewTable(doc, s.counter, nil)
	s.unsub = doc.Tree.Subscribe(document.ObserverFunc(s.treeChanged))
	s.current = document.Root
	if first, ok := doc.Tree.First(); ok {
		s.selectLocked(first)
	}
}

func (s *Session) teardown() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.table != nil {
		s.table.Close()
		s.table = nil
	}
	s.doc = nil
	s.path = ""
	s.current = document.Root
}

// treeChanged marks the document dirty on every structural or attribute
// change and forwards it to the publisher.
func (s *Session) treeChanged(ev document.Event) {
	if ev.Kind == document.EventRemoving {
		return
	}
	s.counter.MarkDirty()
	data := map[string]any{"id": ev.Node.String()}
	switch ev.Kind {
	case document.EventInserted:
		data["parent"] = ev.Parent.String()
		data["row"] = ev.Row
		s.publish(EventCreated, data)
	case document.EventRemoved:
		s.publish(EventDeleted, data)
	case document.EventMoved:
		data["parent"] = ev.Parent.String()
		data["row"] = ev.Row
		s.publish(EventMoved, data)
	case document.EventChanged:
		data["field"] = ev.Field
		s.publish(EventChanged, data)
	}
}

func (s *Session) publish(kind string, data any) {
	if s.publisher != nil {
		s.publisher.PublishChange(kind, data)
	}
}

func (s *Session) notify(ctx context.Context, msg string) {
	if s.prompter != nil {
		s.prompter.Notify(ctx, msg)
	}
}

func (s *Session) requireDoc() error {
	if s.doc == nil {
		return ErrNoDocument
	}
	return nil
}

// Path returns the file path of the open document, empty for a new one.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Modified reports unsaved changes.
func (s *Session) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil && s.counter.Modified()
}

// confirmDiscard raises the unsaved-changes gate when needed. It returns nil
// when the caller may drop the open document.
func (s *Session) confirmDiscard(ctx context.Context) error {
	if s.doc == nil {
		return nil
	}
	var reason Reason
	switch {
	case s.path != "" && (s.removed || !s.files.Exists(s.path)):
		reason = ReasonRemoved
	case s.counter.Modified():
		reason = ReasonModified
	default:
		return nil
	}
	if s.prompter == nil {
		return apperr.ErrCancelled
	}
	choice, err := s.prompter.ConfirmUnsaved(ctx, reason)
	if err != nil {
		return err
	}
	switch choice {
	case ChoiceSave:
		if s.path == "" {
			return ErrNoPath
		}
		return s.writeTo(ctx, s.path)
	case ChoiceDiscard:
		return nil
	default:
		return apperr.ErrCancelled
	}
}

// NewDocument replaces the open document with a new one after the
// unsaved-changes gate.
func (s *Session) NewDocument(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.confirmDiscard(ctx); err != nil {
		return err
	}
	s.install(document.New(s.textFont, s.nodeFont), "")
	s.publish(EventOpened, map[string]any{"path": ""})
	return nil
}

// Open loads the document at path. The open document is replaced only when
// loading succeeds: a malformed file is ignored silently and a wrong password
// leaves everything as it was.
func (s *Session) Open(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx, path)
}

func (s *Session) openLocked(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("session: open %s: %w", path, err)
	}
	if err := s.confirmDiscard(ctx); err != nil {
		return err
	}
	raw, err := s.files.ReadFile(abs)
	if err != nil {
		s.notify(ctx, "Cannot be opened!")
		return &apperr.IOError{Op: "open", Path: abs, Err: err}
	}
	var p codec.PasswordPrompter
	if s.prompter != nil {
		p = s.prompter
	}
	doc, err := codec.Load(ctx, raw, p)
	if err != nil {
		if errors.Is(err, apperr.ErrMalformedDocument) {
			s.logger.Warn("ignoring malformed document",
				slog.String("path", abs), slog.String("error", err.Error()))
		}
		return err
	}
	s.install(doc, abs)
	s.logger.Info("document opened", slog.String("path", abs))
	s.publish(EventOpened, map[string]any{"path": abs})
	return nil
}

// Save writes the document to its current path.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	if s.path == "" {
		return ErrNoPath
	}
	return s.writeTo(ctx, s.path)
}

// SaveAs writes the document to path and makes it the current path.
func (s *Session) SaveAs(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", path, err)
	}
	if !strings.HasSuffix(abs, storage.DocumentExt) {
		abs += storage.DocumentExt
	}
	return s.writeTo(ctx, abs)
}

// writeTo flushes the panes and writes the file. On failure the user is
// notified and the document stays modified.
func (s *Session) writeTo(ctx context.Context, path string) error {
	if err := codec.Save(s.files, path, s.doc, s.table.Flush); err != nil {
		s.counter.MarkDirty()
		s.logger.Error("save failed", slog.String("path", path), slog.String("error", err.Error()))
		s.notify(ctx, "Cannot be saved!")
		return err
	}
	s.path = path
	s.removed = false
	s.counter.Reset()
	s.logger.Info("document saved", slog.String("path", path))
	s.publish(EventSaved, map[string]any{"path": path})
	return nil
}

// AutoSave saves when there is a path, unsaved changes and the file still
// exists. It reports whether a save happened.
func (s *Session) AutoSave(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || s.path == "" || !s.counter.Modified() {
		return false, nil
	}
	if s.removed || !s.files.Exists(s.path) {
		return false, nil
	}
	if err := s.writeTo(ctx, s.path); err != nil {
		return false, err
	}
	return true, nil
}

// Close drops the document after the unsaved-changes gate.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.confirmDiscard(ctx); err != nil {
		return err
	}
	path := s.path
	s.teardown()
	s.publish(EventClosed, map[string]any{"path": path})
	return nil
}

// SetPassword sets the password the document is saved with. An empty
// password saves it unencrypted.
func (s *Session) SetPassword(pw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDoc(); err != nil {
		return err
	}
	if s.doc.Password == pw {
		return nil
	}
	s.doc.Password = pw
	s.counter.MarkDirty()
	return nil
}

// Encrypted reports whether the document is saved with a password.
func (s *Session) Encrypted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil && s.doc.Password != ""
}

// CanDrop reports whether a dropped item is a note document.
func CanDrop(name, mediaType string) bool {
	return strings.HasSuffix(strings.ToLower(name), storage.DocumentExt) || mediaType == DocumentMediaType
}

// sniffLen bounds how much of the decoded XML DetectMediaType looks at.
const sniffLen = 512

// DetectMediaType returns DocumentMediaType when raw, plain or encrypted,
// starts a feathernotes document, and "" otherwise.
func DetectMediaType(raw []byte) string {
	data, _ := codec.Decode(raw)
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	if bytes.Contains(data, []byte("<feathernotes")) {
		return DocumentMediaType
	}
	return ""
}

// Drop opens a dropped document. A file without the .fnx extension is
// accepted when its content is a note document.
func (s *Session) Drop(ctx context.Context, path string) error {
	if !CanDrop(path, "") {
		raw, err := s.files.ReadFile(path)
		if err != nil || !CanDrop(path, DetectMediaType(raw)) {
			return fmt.Errorf("%w: %s", ErrNotDocument, path)
		}
	}
	return s.Open(ctx, path)
}

// markRemoved records that the open file vanished or came back.
func (s *Session) markRemoved(path string, removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || s.path != path || s.removed == removed {
		return
	}
	s.removed = removed
	if removed {
		s.logger.Warn("document file removed", slog.String("path", path))
	}
	s.publish(EventRemoved, map[string]any{"path": path, "removed": removed})
}

// FileRemoved reports whether the open file was deleted behind our back.
func (s *Session) FileRemoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return false
	}
	return s.removed || !s.files.Exists(s.path)
}
