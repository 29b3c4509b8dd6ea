package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a paltry.toml
	dir := t.TempDir()
	tomlContent := `
[session]
show-ir = true
prelude = ["lib/prelude.pt", "/abs/extra.pt"]
journal = "state/journal.db"

[log]
verbosity = 2
file = "paltry.log"

[server]
addr = ":9000"
grpc-addr = ":9001"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !m.Session.ShowIR {
		t.Error("session show-ir = false, want true")
	}
	if len(m.Session.Prelude) != 2 {
		t.Errorf("prelude count = %d, want 2", len(m.Session.Prelude))
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if m.Server.Addr != ":9000" {
		t.Errorf("server addr = %q, want :9000", m.Server.Addr)
	}
	if m.Server.GRPCAddr != ":9001" {
		t.Errorf("server grpc-addr = %q, want :9001", m.Server.GRPCAddr)
	}

	paths := m.PreludePaths()
	if want := filepath.Join(m.Dir, "lib", "prelude.pt"); paths[0] != want {
		t.Errorf("paths[0] = %q, want %q", paths[0], want)
	}
	if paths[1] != "/abs/extra.pt" {
		t.Errorf("paths[1] = %q, want /abs/extra.pt", paths[1])
	}
	if p := m.JournalPath(); p != filepath.Join(m.Dir, "state", "journal.db") {
		t.Errorf("JournalPath() = %q", p)
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "paltry.log") {
		t.Errorf("LogPath() = %v, want %s", p, filepath.Join(m.Dir, "paltry.log"))
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[session]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Server.Addr != ":4567" {
		t.Errorf("default server addr = %q, want :4567", m.Server.Addr)
	}
	if m.Server.GRPCAddr != "" {
		t.Errorf("default grpc-addr = %q, want empty", m.Server.GRPCAddr)
	}
	if m.LogPath() != nil {
		t.Errorf("default LogPath() = %q, want nil", *m.LogPath())
	}
}

func TestLoadManifestUnknownKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[session]\nshow_ir = true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load accepted an unknown key")
	}
	if !strings.Contains(err.Error(), "session.show_ir") {
		t.Errorf("error = %q, want it to name session.show_ir", err)
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[session\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load accepted malformed TOML")
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[server]
addr = ":1234"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Server.Addr != ":1234" {
		t.Errorf("server addr = %q, want :1234", m.Server.Addr)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no paltry.toml exists")
	}
}
