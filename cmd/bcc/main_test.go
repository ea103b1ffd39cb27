package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/bcc/bound"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeProgram writes a CBOR program file into dir and returns its path.
func writeProgram(t *testing.T, dir string) string {
	t.Helper()
	p := bound.NewProgram()
	square := bound.Func("square", "n")
	p.Add(square, bound.Block(&bound.ReturnStatement{
		Value: bound.Binary(bound.Var("n"), bound.Multiplication, bound.Var("n")),
	}))
	mainFn := bound.Func("main")
	p.Add(mainFn, bound.Block(&bound.ReturnStatement{Value: bound.Call(square, bound.Lit(9))}))
	p.Main = mainFn

	data, err := bound.MarshalProgram(p)
	if err != nil {
		t.Fatalf("MarshalProgram failed: %v", err)
	}
	path := filepath.Join(dir, "program.ilb")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestBuildDisClean(t *testing.T) {
	t.Setenv("BCC_OUT", "")
	dir := t.TempDir()
	program := writeProgram(t, dir)

	var out bytes.Buffer
	if err := runBuild([]string{"-C", dir, "-symbols", program}, &out); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	image := filepath.Join(dir, "out", "bcc", "bin", "program.ile")
	if !strings.Contains(out.String(), "BCC Executable at: "+image) {
		t.Errorf("build output missing image path:\n%s", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "bcc", "bin", "program.sym")); err != nil {
		t.Errorf("symbol database missing: %v", err)
	}

	out.Reset()
	if err := runDis([]string{image}, &out); err != nil {
		t.Fatalf("dis failed: %v", err)
	}
	for _, want := range []string{"entry   main", "func square(n)", "RETURN (n MUL n)", "RETURN square(9)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("listing missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	object := filepath.Join(dir, "out", "bcc", "obj", "square.ilo")
	if err := runDis([]string{"-symbols", filepath.Join(dir, "out", "bcc", "bin", "program.sym"), object}, &out); err != nil {
		t.Fatalf("dis of object failed: %v", err)
	}
	if !strings.Contains(out.String(), "func square(n)") {
		t.Errorf("object listing:\n%s", out.String())
	}

	out.Reset()
	if err := runClean([]string{"-C", dir}, &out); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(image); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("image survived clean: %v", err)
	}
}

func TestBuildHonorsManifest(t *testing.T) {
	t.Setenv("BCC_OUT", "")
	dir := t.TempDir()
	program := writeProgram(t, dir)
	manifest := `[project]
name = "demo"

[build]
output-dir = "target"
image = "demo.ile"
entry = "square"
`
	if err := os.WriteFile(filepath.Join(dir, "bcc.toml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runBuild([]string{"-C", dir, program}, &out); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	image := filepath.Join(dir, "target", "bcc", "bin", "demo.ile")
	out.Reset()
	if err := runDis([]string{image}, &out); err != nil {
		t.Fatalf("dis failed: %v", err)
	}
	// No symbol database: raw slots. square is the first name allocated.
	if !strings.Contains(out.String(), "entry   @65") {
		t.Errorf("listing:\n%s", out.String())
	}
}

func TestBuildOutputOverrides(t *testing.T) {
	dir := t.TempDir()
	program := writeProgram(t, dir)
	elsewhere := filepath.Join(t.TempDir(), "elsewhere")
	t.Setenv("BCC_OUT", elsewhere)

	var out bytes.Buffer
	if err := runBuild([]string{"-C", dir, "-o", "app.ile", program}, &out); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(elsewhere, "bcc", "bin", "app.ile")); err != nil {
		t.Errorf("image not under BCC_OUT: %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	var out bytes.Buffer
	if err := runBuild(nil, &out); !errors.Is(err, errUsage) {
		t.Errorf("build without program: error = %v, want errUsage", err)
	}
	if err := runDis(nil, &out); !errors.Is(err, errUsage) {
		t.Errorf("dis without file: error = %v, want errUsage", err)
	}
	if err := runDis([]string{"-symbols", filepath.Join(t.TempDir(), "missing.sym"), "x.ile"}, &out); err == nil {
		t.Error("dis of missing file succeeded")
	}
}

func TestBuildRejectsBadProgram(t *testing.T) {
	t.Setenv("BCC_OUT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.ilb")
	if err := os.WriteFile(path, []byte("not cbor"), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runBuild([]string{"-C", dir, path}, &out); err == nil {
		t.Error("build of a corrupt program file succeeded")
	}
}
