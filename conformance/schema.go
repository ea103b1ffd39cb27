// Package conformance runs golden encoding cases written in YAML against
// the linker and the reference decoder.
package conformance

import "github.com/chazu/bcc/bound"

// Suite represents a complete YAML case file
type Suite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Cases       []Case `yaml:"cases"`
}

// Case is one program with the result expected from linking it.
type Case struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Skip        string `yaml:"skip,omitempty"`

	// Version overrides the header version stamped by the linker.
	Version string `yaml:"version,omitempty"`

	Program bound.WireProgram `yaml:"program"`
	Expect  Expectation       `yaml:"expect"`
}

// Expectation defines what a case must produce. Listing and Words may be
// combined; Error excludes both.
type Expectation struct {
	// Listing holds the non-blank lines of the disassembly, trimmed.
	Listing []string `yaml:"listing,omitempty"`

	// Words holds every image word as 16 hex digits.
	Words []string `yaml:"words,omitempty"`

	// Error is a substring of the expected bind or link error.
	Error string `yaml:"error,omitempty"`
}
