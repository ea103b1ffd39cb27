package conformance

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/dis"
	"github.com/chazu/bcc/linker"
	"github.com/chazu/bcc/opcode"
)

// Result represents the outcome of running a single case
type Result struct {
	Case       LoadedCase
	Passed     bool
	Skipped    bool
	SkipReason string
	Err        error
}

// Run binds, links and decodes one case and checks its expectation.
func Run(lc LoadedCase) Result {
	c := lc.Case
	if c.Skip != "" {
		return Result{Case: lc, Skipped: true, SkipReason: c.Skip}
	}

	err := check(c)
	return Result{Case: lc, Passed: err == nil, Err: err}
}

// RunAll executes all loaded cases
func RunAll(cases []LoadedCase) []Result {
	results := make([]Result, len(cases))
	for i, c := range cases {
		results[i] = Run(c)
	}
	return results
}

func check(c Case) error {
	img, err := link(c)
	if c.Expect.Error != "" {
		if err == nil {
			return fmt.Errorf("expected error containing %q, got success", c.Expect.Error)
		}
		if !strings.Contains(err.Error(), c.Expect.Error) {
			return fmt.Errorf("expected error containing %q, got %q", c.Expect.Error, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if len(c.Expect.Words) > 0 {
		if err := checkWords(img.Bytes(), c.Expect.Words); err != nil {
			return err
		}
	}
	if len(c.Expect.Listing) > 0 {
		decoded, err := dis.DecodeImage(img.Bytes())
		if err != nil {
			return fmt.Errorf("decoding image: %w", err)
		}
		var buf bytes.Buffer
		if err := dis.Disassemble(&buf, decoded, dis.NamesFromEntries(img.Symbols)); err != nil {
			return err
		}
		if err := checkListing(buf.String(), c.Expect.Listing); err != nil {
			return err
		}
	}
	return nil
}

func link(c Case) (*linker.Image, error) {
	p, err := bound.FromWire(&c.Program)
	if err != nil {
		return nil, err
	}
	l := linker.New()
	if c.Version != "" {
		l.Version = c.Version
	}
	return l.Link(p)
}

func checkWords(data []byte, want []string) error {
	var got []string
	for i := 0; i+opcode.WordSize <= len(data); i += opcode.WordSize {
		got = append(got, hex.EncodeToString(data[i:i+opcode.WordSize]))
	}
	if len(got) != len(want) {
		return fmt.Errorf("image has %d words, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != strings.ToLower(want[i]) {
			return fmt.Errorf("word %d = %s, want %s", i, got[i], want[i])
		}
	}
	return nil
}

func checkListing(listing string, want []string) error {
	var got []string
	for _, line := range strings.Split(listing, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			got = append(got, line)
		}
	}
	if len(got) != len(want) {
		return fmt.Errorf("listing has %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	return nil
}

// Stats summarizes a run
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// ComputeStats generates statistics from results
func ComputeStats(results []Result) Stats {
	stats := Stats{Total: len(results)}
	for _, r := range results {
		if r.Skipped {
			stats.Skipped++
		} else if r.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// String returns a human-readable summary
func (s Stats) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)",
		s.Passed, s.Failed, s.Skipped, s.Total)
}
