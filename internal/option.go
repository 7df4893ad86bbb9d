package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	file    string
	mcp     bool
	version string
	start   StartMode
}

// StartMode is how the window would come up. Only logged; there is no
// window.
type StartMode struct {
	Minimized bool
	Tray      bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithFile sets the document opened at start-up. It overrides
// notes.default_file.
func WithFile(path string) Option {
	return func(a *application) {
		a.file = path
	}
}

// WithMCP serves the MCP tools on stdin/stdout. The terminal prompter is
// not available then.
func WithMCP(enabled bool) Option {
	return func(a *application) {
		a.mcp = enabled
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithStartMode records the --min and --tray flags.
func WithStartMode(m StartMode) Option {
	return func(a *application) {
		a.start = m
	}
}
