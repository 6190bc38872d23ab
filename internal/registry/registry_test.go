package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRegistryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repos.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write registry file: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeRegistryFile(t, `
repositories:
  dev-network:
    path: /srv/dev-network
    compose_path: /srv/dev-network/docker
    compose_file: docker-compose.yml
    enabled: true
    aliases:
      - network-infrastructure
  dev-rag:
    path: /srv/dev-rag
    enabled: false
`)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if reg.Count() != 3 {
		t.Errorf("Expected 3 registered names (2 repos + 1 alias), got %d", reg.Count())
	}

	cfg, ok := reg.Lookup("dev-network")
	if !ok {
		t.Fatal("Expected dev-network to be registered")
	}
	if !cfg.Enabled {
		t.Error("Expected dev-network to be enabled")
	}
	if !cfg.HasCompose() {
		t.Error("Expected dev-network to have a compose step")
	}
	if cfg.ComposeFile != "docker-compose.yml" {
		t.Errorf("Unexpected compose file '%s'", cfg.ComposeFile)
	}

	alias, ok := reg.Lookup("network-infrastructure")
	if !ok {
		t.Fatal("Expected alias to be registered")
	}
	if alias != cfg {
		t.Error("Expected alias to resolve to the same config")
	}

	rag, ok := reg.Lookup("dev-rag")
	if !ok {
		t.Fatal("Expected dev-rag to be registered")
	}
	if rag.Enabled {
		t.Error("Expected dev-rag to be disabled")
	}
	if rag.HasCompose() {
		t.Error("Expected dev-rag to have no compose step")
	}
}

func TestLoad_ComposeFileDefault(t *testing.T) {
	path := writeRegistryFile(t, `
repositories:
  app:
    path: /srv/app
    compose_path: /srv/app
    enabled: true
`)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg, _ := reg.Lookup("app")
	if cfg.ComposeFile != DefaultComposeFile {
		t.Errorf("Expected default compose file, got '%s'", cfg.ComposeFile)
	}
}

func TestLoad_SyncCommandOverride(t *testing.T) {
	path := writeRegistryFile(t, `
repositories:
  app:
    path: /srv/app
    enabled: true
    sync_command: git pull --ff-only origin main
`)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg, _ := reg.Lookup("app")
	expected := []string{"git", "pull", "--ff-only", "origin", "main"}
	if len(cfg.SyncCommand) != len(expected) {
		t.Fatalf("Expected %d sync command parts, got %v", len(expected), cfg.SyncCommand)
	}
	for i := range expected {
		if cfg.SyncCommand[i] != expected[i] {
			t.Errorf("SyncCommand[%d] = %q, expected %q", i, cfg.SyncCommand[i], expected[i])
		}
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing path",
			yaml: `
repositories:
  app:
    enabled: true
`,
			wantErr: "path",
		},
		{
			name: "relative path",
			yaml: `
repositories:
  app:
    path: srv/app
`,
			wantErr: "absolute",
		},
		{
			name: "path traversal",
			yaml: `
repositories:
  app:
    path: /srv/../etc
`,
			wantErr: "traversal",
		},
		{
			name: "compose_file without compose_path",
			yaml: `
repositories:
  app:
    path: /srv/app
    compose_file: stack.yml
`,
			wantErr: "compose_file",
		},
		{
			name: "compose_file with separator",
			yaml: `
repositories:
  app:
    path: /srv/app
    compose_path: /srv/app
    compose_file: nested/stack.yml
`,
			wantErr: "bare file name",
		},
		{
			name: "duplicate alias",
			yaml: `
repositories:
  app:
    path: /srv/app
    aliases: [app]
`,
			wantErr: "already registered",
		},
		{
			name: "bad repo name",
			yaml: `
repositories:
  "app name":
    path: /srv/app
`,
			wantErr: "invalid characters",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRegistryFile(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected load to fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing registry file")
	}
}

func TestLookup_NotFound(t *testing.T) {
	reg := New(map[string]*Config{})
	if _, ok := reg.Lookup("ghost"); ok {
		t.Error("Expected lookup miss for unregistered repository")
	}
}
