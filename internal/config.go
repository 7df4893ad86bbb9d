package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/starford/feathernotes/internal/document"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Notes     NotesConfig       `yaml:"notes"`
	Editor    EditorConfig      `yaml:"editor"`
	Index     IndexConfig       `yaml:"index"`
	Auth      AuthConfig        `yaml:"auth"`
	Shortcuts ShortcutsConfig   `yaml:"shortcuts"`
	Tray      TrayConfig        `yaml:"tray"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if c.Index.Enabled && c.Notes.Dir == "" {
		return fmt.Errorf("index: enabled but notes.dir is empty")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Shortcuts.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the local HTTP API configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

// NotesConfig locates the notes directory and the document opened when no
// file is given on the command line.
type NotesConfig struct {
	Dir         string `yaml:"dir"`
	DefaultFile string `yaml:"default_file"`
}

// EditorConfig holds the editing preferences.
type EditorConfig struct {
	TextFont string `yaml:"text_font"`
	NodeFont string `yaml:"node_font"`
	// AutoSaveMinutes below 1 disables auto-saving.
	AutoSaveMinutes int  `yaml:"auto_save_minutes"`
	Wrap            bool `yaml:"wrap"`
	Indent          bool `yaml:"indent"`
	TabSpaces       int  `yaml:"tab_spaces"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TextFont, validation.By(fontRule)),
		validation.Field(&c.NodeFont, validation.By(fontRule)),
		validation.Field(&c.TabSpaces, validation.Min(0), validation.Max(32)),
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

// Fonts returns the configured text and node fonts. Unset or invalid
// values come back zero, which means the built-in defaults.
func (c *EditorConfig) Fonts() (text, node document.Font) {
	text, _ = document.ParseFont(c.TextFont)
	node, _ = document.ParseFont(c.NodeFont)
	return text, node
}

// AutoSaveInterval converts AutoSaveMinutes; zero means disabled.
func (c *EditorConfig) AutoSaveInterval() time.Duration {
	if c.AutoSaveMinutes < 1 {
		return 0
	}
	return time.Duration(c.AutoSaveMinutes) * time.Minute
}

// IndexConfig holds the library index database configuration.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ReservedShortcuts are the key sequences the text editor and the search
// bar handle themselves; no command may be bound to them.
var ReservedShortcuts = []string{
	// text editing
	"Ctrl+Shift+Z", "Ctrl+Z", "Ctrl+X", "Ctrl+C", "Ctrl+V", "Ctrl+A",
	"Shift+Ins", "Shift+Del", "Ctrl+Ins",
	"Ctrl+Left", "Ctrl+Right", "Ctrl+Up", "Ctrl+Down", "Ctrl+Home", "Ctrl+End",
	"Ctrl+Shift+Up", "Ctrl+Shift+Down",
	"Meta+Up", "Meta+Down", "Meta+Shift+Up", "Meta+Shift+Down",
	// search and replacement
	"F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11",
	"Ctrl+Shift+W", "Shift+F7", "Ctrl+Shift+F7",
	// zooming
	"Ctrl+=", "Ctrl++", "Ctrl+-", "Ctrl+0",
	// tabulation
	"Shift+Enter", "Shift+Return", "Ctrl+Tab", "Ctrl+Meta+Tab",
	"Ctrl+K",
}

// ShortcutsConfig maps command names to custom key sequences. Reserved adds
// to ReservedShortcuts.
type ShortcutsConfig struct {
	Custom   map[string]string `yaml:"custom"`
	Reserved []string          `yaml:"reserved"`
}

// IsReserved reports whether seq may not be bound. The comparison ignores
// case and spaces.
func (c *ShortcutsConfig) IsReserved(seq string) bool {
	key := normalizeShortcut(seq)
	for _, list := range [][]string{ReservedShortcuts, c.Reserved} {
		for _, r := range list {
			if normalizeShortcut(r) == key {
				return true
			}
		}
	}
	return false
}

func normalizeShortcut(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// Validate rejects custom shortcuts that are reserved or bound twice.
func (c *ShortcutsConfig) Validate() error {
	seen := make(map[string]string, len(c.Custom))
	for action, seq := range c.Custom {
		if seq == "" {
			continue
		}
		if c.IsReserved(seq) {
			return fmt.Errorf("shortcuts: %s: %q is reserved", action, seq)
		}
		key := normalizeShortcut(seq)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("shortcuts: %q is bound to both %s and %s", seq, other, action)
		}
		seen[key] = action
	}
	return nil
}

// TrayConfig controls the system tray icon.
type TrayConfig struct {
	Enabled        bool `yaml:"enabled"`
	StartMinimized bool `yaml:"start_minimized"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Enabled: false,
				Port:    8080,
			},
		},
		Notes: NotesConfig{
			Dir: "~/notes",
		},
		Editor: EditorConfig{
			TextFont:        document.DefaultTextFont.String(),
			NodeFont:        document.DefaultNodeFont.String(),
			AutoSaveMinutes: -1,
			Wrap:            true,
			Indent:          true,
			TabSpaces:       4,
		},
		Index: IndexConfig{
			Enabled: false,
			Path:    "~/.cache/feathernotes/index.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
