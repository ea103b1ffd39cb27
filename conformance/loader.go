package conformance

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the case directory relative to this package.
const DefaultDir = "testdata"

// LoadedCase represents a case with its source file path
type LoadedCase struct {
	File  string
	Suite string
	Case  Case
}

// LoadAll walks dir and loads every case of every .yaml file.
func LoadAll(dir string) ([]LoadedCase, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var loaded []LoadedCase
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Only process .yaml files
		if info.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}

		suite, err := loadFile(path)
		if err != nil {
			return err
		}

		// Get relative path for cleaner test names
		relPath, _ := filepath.Rel(root, path)
		for _, c := range suite.Cases {
			loaded = append(loaded, LoadedCase{File: relPath, Suite: suite.Name, Case: c})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// loadFile parses a single YAML file.
func loadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, c := range suite.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("%s: case %d has no name", path, i)
		}
	}
	return &suite, nil
}
