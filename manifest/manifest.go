// Package manifest handles wordvm.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/wordvm/vm"
)

// FileName is the name of the project configuration file.
const FileName = "wordvm.toml"

// Manifest represents a wordvm.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	VM      VMConfig    `toml:"vm"`
	Image   ImageConfig `toml:"image"`
	Log     LogConfig   `toml:"log"`

	// Dir is the directory containing the wordvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the assembly entry file.
type Source struct {
	Entry string `toml:"entry"`
}

// VMConfig sizes the virtual machine. Zero values select the VM defaults.
type VMConfig struct {
	Memory    int   `toml:"memory"`
	StepLimit int64 `toml:"step-limit"`
	Stack     int   `toml:"stack"`
	CallDepth int   `toml:"call-depth"`
	Trace     bool  `toml:"trace"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when no wordvm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.setDefaults()
	return m
}

func (m *Manifest) setDefaults() {
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main.asm"
	}
	if m.VM.Memory == 0 {
		m.VM.Memory = vm.DefaultMemorySize
	}
	if m.VM.Stack == 0 {
		m.VM.Stack = vm.DefaultStackSize
	}
	if m.VM.CallDepth == 0 {
		m.VM.CallDepth = vm.DefaultCallDepth
	}
	if m.Image.Output == "" {
		m.Image.Output = strings.TrimSuffix(m.Source.Entry, filepath.Ext(m.Source.Entry)) + ".wvmi"
	}
}

// Validate reports configuration values the VM would reject.
func (m *Manifest) Validate() error {
	switch {
	case m.VM.Memory < 0:
		return fmt.Errorf("%s: vm.memory must not be negative", FileName)
	case m.VM.StepLimit < 0:
		return fmt.Errorf("%s: vm.step-limit must not be negative", FileName)
	case m.VM.Stack < 0:
		return fmt.Errorf("%s: vm.stack must not be negative", FileName)
	case m.VM.CallDepth < 0:
		return fmt.Errorf("%s: vm.call-depth must not be negative", FileName)
	}
	return nil
}

// Load parses a wordvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undec[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.setDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a wordvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Save writes m as wordvm.toml into m.Dir.
func (m *Manifest) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode %s: %w", FileName, err)
	}
	path := filepath.Join(m.Dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// EntryPath returns the absolute path of the entry assembly file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// ImagePath returns the absolute path of the image output file.
func (m *Manifest) ImagePath() string {
	return m.resolve(m.Image.Output)
}

// LogPath returns the absolute path of the log file, or "" to log to stderr.
func (m *Manifest) LogPath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// VMOptions returns the VM options configured by the [vm] section.
func (m *Manifest) VMOptions() []vm.Option {
	opts := []vm.Option{
		vm.StepLimit(m.VM.StepLimit),
		vm.Trace(m.VM.Trace),
	}
	if m.VM.Memory > 0 {
		opts = append(opts, vm.MemorySize(m.VM.Memory))
	}
	if m.VM.Stack > 0 {
		opts = append(opts, vm.StackSize(m.VM.Stack))
	}
	if m.VM.CallDepth > 0 {
		opts = append(opts, vm.CallDepth(m.VM.CallDepth))
	}
	return opts
}
