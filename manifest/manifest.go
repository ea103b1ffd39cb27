// Package manifest handles bcc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/bcc/linker"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "bcc.toml"

// Manifest represents a bcc.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Build   Build   `toml:"build"`

	// Dir is the directory containing the bcc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Build configures build output.
type Build struct {
	OutputDir    string `toml:"output-dir"`
	Image        string `toml:"image"`
	DebugSymbols bool   `toml:"debug-symbols"`

	// Entry names the entry function, overriding main/script detection.
	Entry string `toml:"entry"`
}

// Load parses a bcc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Build.OutputDir == "" {
		m.Build.OutputDir = "out"
	}
	if m.Build.Image == "" {
		m.Build.Image = linker.DefaultImage
	}

	return &m, nil
}

// Default returns the manifest used for a directory without bcc.toml.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return &Manifest{
		Project: Project{Name: filepath.Base(abs)},
		Build:   Build{OutputDir: "out", Image: linker.DefaultImage},
		Dir:     abs,
	}, nil
}

// FindAndLoad walks up from startDir to find a bcc.toml file,
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

// OutDir returns the absolute output directory.
func (m *Manifest) OutDir() string {
	if filepath.IsAbs(m.Build.OutputDir) {
		return m.Build.OutputDir
	}
	return filepath.Join(m.Dir, m.Build.OutputDir)
}

// Layout returns the build layout described by the manifest.
func (m *Manifest) Layout() linker.Layout {
	return linker.Layout{
		OutDir:  m.OutDir(),
		Image:   m.Build.Image,
		Symbols: m.Build.DebugSymbols,
	}
}
