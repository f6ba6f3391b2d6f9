package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
}

// writePlugin creates <root>/<name>/plugin.json and an executable shell
// script named "run.sh" with the given body.
func writePlugin(t *testing.T, root, name string, actions []string, script string) *Plugin {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	manifest := Manifest{
		Name:       name,
		Version:    "1.0.0",
		Executable: "run.sh",
		Actions:    actions,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	exe := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Plugin{Manifest: manifest, Path: dir, Executable: exe}
}
