package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/wordvm/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "collatz"
version = "0.1.0"

[source]
entry = "src/collatz.asm"

[vm]
memory = 4096
step-limit = 100000
stack = 64
call-depth = 16
trace = true

[image]
output = "build/collatz.wvmi"

[log]
verbosity = 2
file = "wvm.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "collatz" {
		t.Errorf("project name = %q, want collatz", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.VM.Memory != 4096 || m.VM.StepLimit != 100000 || m.VM.Stack != 64 || m.VM.CallDepth != 16 || !m.VM.Trace {
		t.Errorf("vm = %+v", m.VM)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "src", "collatz.asm"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
	if got, want := m.ImagePath(), filepath.Join(m.Dir, "build", "collatz.wvmi"); got != want {
		t.Errorf("ImagePath() = %q, want %q", got, want)
	}
	if got, want := m.LogPath(), filepath.Join(m.Dir, "wvm.log"); got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Source.Entry != "main.asm" {
		t.Errorf("default entry = %q, want main.asm", m.Source.Entry)
	}
	if m.Image.Output != "main.wvmi" {
		t.Errorf("default image output = %q, want main.wvmi", m.Image.Output)
	}
	if m.VM.Memory != vm.DefaultMemorySize || m.VM.Stack != vm.DefaultStackSize || m.VM.CallDepth != vm.DefaultCallDepth {
		t.Errorf("default vm = %+v", m.VM)
	}
	if m.VM.StepLimit != 0 {
		t.Errorf("default step limit = %d, want 0", m.VM.StepLimit)
	}
	if m.LogPath() != "" {
		t.Errorf("default log path = %q, want stderr", m.LogPath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\n", "parse error"},
		{"unknown key", "[vm]\nmemroy = 10\n", "unknown key vm.memroy"},
		{"negative", "[vm]\nstack = -1\n", "vm.stack"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tt.content)
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no wordvm.toml exists")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Default(dir)
	m.Project.Name = "saved"
	m.VM.StepLimit = 500
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Project.Name != "saved" || got.VM.StepLimit != 500 || got.Source.Entry != "main.asm" {
		t.Errorf("loaded %+v", got)
	}
}

func TestVMOptions(t *testing.T) {
	m := Default("/app")
	m.VM.Memory = 128
	m.VM.Stack = 2
	m.VM.StepLimit = 3
	machine, err := vm.New(m.VMOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(machine.Memory()); n != 128 {
		t.Errorf("memory = %d words, want 128", n)
	}
	if err := machine.Load([]vm.Word{vm.Word(vm.OpLoadS), 1, vm.Word(vm.OpJump), 0}); err != nil {
		t.Fatal(err)
	}
	// the loop overflows a 2-word stack on its third push, or stops at 3 steps
	if err := machine.Run(); err == nil {
		t.Error("Run succeeded, want stack overflow or step limit")
	}
}
