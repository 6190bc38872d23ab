package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deploypipe/internal/security"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// DefaultComposeFile is used when a repository configures a compose path
// without naming the file.
const DefaultComposeFile = "docker-compose.yml"

// repoConfig is the YAML shape of one repository entry.
type repoConfig struct {
	Path        string   `yaml:"path"`
	ComposePath string   `yaml:"compose_path"`
	ComposeFile string   `yaml:"compose_file"`
	SyncCommand string   `yaml:"sync_command"`
	Enabled     bool     `yaml:"enabled"`
	Aliases     []string `yaml:"aliases"`
}

// fileConfig is the YAML root of the registry file.
type fileConfig struct {
	Repositories map[string]repoConfig `yaml:"repositories"`
}

// Load reads and validates the registry file. The returned Registry is
// immutable; configuration changes require a restart.
func Load(configPath string) (*Registry, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry YAML: %w", err)
	}

	repos := make(map[string]*Config)
	for name, rc := range file.Repositories {
		cfg, err := buildConfig(name, rc)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration for repository '%s': %w", name, err)
		}

		if _, dup := repos[name]; dup {
			return nil, fmt.Errorf("repository '%s' registered twice", name)
		}
		repos[name] = cfg

		// Aliases point at the same Config so a rename or a
		// capitalization difference deploys the same checkout.
		for _, alias := range rc.Aliases {
			if err := security.ValidateRepoName(alias); err != nil {
				return nil, fmt.Errorf("invalid alias '%s' for repository '%s': %w", alias, name, err)
			}
			if _, dup := repos[alias]; dup {
				return nil, fmt.Errorf("alias '%s' for repository '%s' already registered", alias, name)
			}
			repos[alias] = cfg
		}
	}

	return New(repos), nil
}

func buildConfig(name string, rc repoConfig) (*Config, error) {
	if err := security.ValidateRepoName(name); err != nil {
		return nil, err
	}

	if rc.Path == "" {
		return nil, fmt.Errorf("missing required 'path' field")
	}
	path, err := security.SanitizePath(rc.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	composePath := rc.ComposePath
	composeFile := ""
	if composePath != "" {
		composePath, err = security.SanitizePath(composePath)
		if err != nil {
			return nil, fmt.Errorf("invalid compose_path: %w", err)
		}
		composeFile = rc.ComposeFile
		if composeFile == "" {
			composeFile = DefaultComposeFile
		}
		if strings.Contains(composeFile, string(filepath.Separator)) {
			return nil, fmt.Errorf("compose_file must be a bare file name, got '%s'", composeFile)
		}
	} else if rc.ComposeFile != "" {
		return nil, fmt.Errorf("compose_file set without compose_path")
	}

	var syncCommand []string
	if rc.SyncCommand != "" {
		syncCommand, err = shellquote.Split(rc.SyncCommand)
		if err != nil {
			return nil, fmt.Errorf("invalid sync_command: %w", err)
		}
		if len(syncCommand) == 0 {
			return nil, fmt.Errorf("sync_command is empty")
		}
	}

	return &Config{
		Name:        name,
		Path:        path,
		ComposePath: composePath,
		ComposeFile: composeFile,
		SyncCommand: syncCommand,
		Enabled:     rc.Enabled,
	}, nil
}
