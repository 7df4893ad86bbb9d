// Package prompt answers the session's dialogs on a terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/session"
)

// ErrMismatch is returned by NewPassword when the two entries differ.
var ErrMismatch = errors.New("prompt: passwords do not match")

// Terminal implements session.Prompter over a line-oriented reader and writer.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal to read passwords from without echo, or -1.
	fd int
}

var _ session.Prompter = (*Terminal)(nil)

// New returns a prompter that reads answers from in and writes questions to
// out. Passwords are read as plain lines.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, fd: -1}
}

// Stdio returns a prompter on stdin and stderr. When stdin is a terminal,
// passwords are read without echo.
func Stdio() *Terminal {
	t := New(os.Stdin, os.Stderr)
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		t.fd = fd
	}
	return t
}

// Password asks for the document password. An empty answer cancels.
func (t *Terminal) Password(ctx context.Context, retry bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if retry {
		fmt.Fprintln(t.out, "Wrong password! Try again.")
	}
	pw, err := t.secret(ctx, "Password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", apperr.ErrCancelled
	}
	return pw, nil
}

// NewPassword asks for a password twice. An empty first entry removes the
// password.
func (t *Terminal) NewPassword(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pw, err := t.secret(ctx, "New password (empty for none): ")
	if err != nil || pw == "" {
		return "", err
	}
	again, err := t.secret(ctx, "Retype password: ")
	if err != nil {
		return "", err
	}
	if again != pw {
		fmt.Fprintln(t.out, "Passwords were different. Retype!")
		return "", ErrMismatch
	}
	return pw, nil
}

// ConfirmUnsaved asks whether to save before the document is dropped.
// End of input answers Cancel.
func (t *Terminal) ConfirmUnsaved(ctx context.Context, r session.Reason) (session.Choice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, r.String())
	for {
		line, err := t.line(ctx, "[S]ave, [D]iscard or [C]ancel? ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return session.ChoiceCancel, nil
			}
			return session.ChoiceCancel, err
		}
		switch strings.ToLower(line) {
		case "s", "save", "y", "yes":
			return session.ChoiceSave, nil
		case "d", "discard", "n", "no":
			return session.ChoiceDiscard, nil
		case "c", "cancel":
			return session.ChoiceCancel, nil
		}
	}
}

// Notify prints msg.
func (t *Terminal) Notify(_ context.Context, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, msg)
}

func (t *Terminal) line(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.ErrCancelled
	}
	fmt.Fprint(t.out, question)
	s, err := t.in.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (t *Terminal) secret(ctx context.Context, question string) (string, error) {
	if t.fd < 0 {
		s, err := t.line(ctx, question)
		if errors.Is(err, io.EOF) {
			return "", apperr.ErrCancelled
		}
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.ErrCancelled
	}
	fmt.Fprint(t.out, question)
	b, err := term.ReadPassword(t.fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", fmt.Errorf("prompt: read password: %w", err)
	}
	return string(b), nil
}
