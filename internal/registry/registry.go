// Package registry holds the static repository deployment table: which
// repositories this worker may deploy, where their checkouts live, and
// whether a docker compose restart follows the source sync.
package registry

// Config is the deployment configuration for one repository.
type Config struct {
	// Name is the canonical repository name (the first registry key that
	// referenced this config).
	Name string

	// Path is the filesystem root of the repository checkout.
	Path string

	// ComposePath is the directory containing the compose file. Empty
	// means no container step is configured for this repository.
	ComposePath string

	// ComposeFile is the compose file name inside ComposePath.
	ComposeFile string

	// SyncCommand overrides the default "git pull origin <branch>" sync
	// command. Parsed from a shell-quoted string at load time.
	SyncCommand []string

	// Enabled gates deployment. Disabled repositories are rejected
	// before any side effect.
	Enabled bool
}

// HasCompose reports whether a container restart step is configured.
func (c *Config) HasCompose() bool {
	return c.ComposePath != ""
}

// Registry is the immutable repository table, populated once at startup.
// Reads require no locking because nothing mutates it after load.
type Registry struct {
	repos map[string]*Config
}

// New builds a registry from an already-validated table. Used by Load
// and directly by tests.
func New(repos map[string]*Config) *Registry {
	return &Registry{repos: repos}
}

// Lookup returns the configuration for a repository name, if present.
// Aliases resolve to the same underlying Config as their canonical name.
func (r *Registry) Lookup(name string) (*Config, bool) {
	cfg, ok := r.repos[name]
	return cfg, ok
}

// Names returns all registered names, aliases included.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered names.
func (r *Registry) Count() int {
	return len(r.repos)
}
