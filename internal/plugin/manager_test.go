package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "keyboard", []string{"OPEN_MENU", "CLOSE_MENU"}, "true\n")
	writePlugin(t, root, "media-control", []string{"play-pause"}, "true\n")

	// Not plugins: a loose file, a dir without manifest, a broken manifest.
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(root, "broken")
	if err := os.MkdirAll(broken, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, "plugin.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Manifest.Name != "keyboard" || plugins[1].Manifest.Name != "media-control" {
		t.Errorf("List() order = %s, %s", plugins[0].Manifest.Name, plugins[1].Manifest.Name)
	}

	kb, err := manager.Get("keyboard")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if kb.Executable != filepath.Join(root, "keyboard", "run.sh") {
		t.Errorf("executable = %q", kb.Executable)
	}
	if _, err := manager.Get("broken"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(broken) = %v, want ErrPluginNotFound", err)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := manager.Discover(); err != nil {
		t.Errorf("Discover() on missing dir = %v, want nil", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no plugins")
	}
}

func TestManager_Discover_Rescan(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "one", nil, "true\n")

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(filepath.Join(root, "one")); err != nil {
		t.Fatal(err)
	}
	writePlugin(t, root, "two", nil, "true\n")
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Get("one"); !errors.Is(err, ErrPluginNotFound) {
		t.Error("removed plugin should be forgotten")
	}
	if _, err := manager.Get("two"); err != nil {
		t.Errorf("new plugin not found: %v", err)
	}
	if manager.Dir() != root {
		t.Errorf("Dir() = %q", manager.Dir())
	}
}

func TestManager_Discover_RejectsEscapingExecutable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sneaky")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"sneaky","executable":"../../bin/sh"}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	writePlugin(t, root, "nameless", nil, "true\n")
	if err := os.WriteFile(filepath.Join(root, "nameless", "plugin.json"), []byte(`{"executable":"run.sh"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	if n := len(manager.List()); n != 0 {
		t.Errorf("discovered %d plugins, want 0", n)
	}
}

func TestManager_Discover_DuplicateName(t *testing.T) {
	root := t.TempDir()
	first := writePlugin(t, root, "a", nil, "true\n")
	second := writePlugin(t, root, "b", nil, "true\n")
	manifest := `{"name":"a","executable":"run.sh"}`
	if err := os.WriteFile(filepath.Join(second.Path, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	p, err := manager.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != first.Path {
		t.Errorf("kept %s, want %s", p.Path, first.Path)
	}
	if len(manager.List()) != 1 {
		t.Errorf("List() = %d plugins, want 1", len(manager.List()))
	}
}

func TestManifest_Supports(t *testing.T) {
	tests := []struct {
		actions []string
		action  string
		want    bool
	}{
		{nil, "anything", true},
		{[]string{"a", "b"}, "b", true},
		{[]string{"a", "b"}, "c", false},
	}
	for _, tt := range tests {
		if got := (Manifest{Actions: tt.actions}).Supports(tt.action); got != tt.want {
			t.Errorf("Supports(%v, %q) = %v, want %v", tt.actions, tt.action, got, tt.want)
		}
	}
}
