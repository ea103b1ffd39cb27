package linker

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/dis"
	"github.com/chazu/bcc/encoder"
	"github.com/chazu/bcc/opcode"
	"github.com/chazu/bcc/symdb"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sampleProgram declares helper(a) before main():
//
//	func helper(a) { return a; }
//	func main() { let x = helper(7); return x; }
//
// No word in it collides with the ItemEnd word.
func sampleProgram() *bound.Program {
	p := bound.NewProgram()
	helper := bound.Func("helper", "a")
	helper.Source = "lib/helper.il"
	p.Add(helper, bound.Block(&bound.ReturnStatement{Value: bound.Var("a")}))

	mainFn := bound.Func("main")
	mainFn.Source = "main.il"
	x := &bound.VariableSymbol{Name: "x", Type: bound.Int}
	p.Add(mainFn, bound.Block(
		&bound.VariableDeclaration{Variable: x, Initializer: bound.Call(helper, bound.Lit(7))},
		&bound.ReturnStatement{Value: &bound.VariableExpression{Variable: x}},
	))
	p.Main = mainFn
	return p
}

func countWord(data []byte, want [opcode.WordSize]byte) (count, last int) {
	last = -1
	for i := 0; i+opcode.WordSize <= len(data); i += opcode.WordSize {
		if bytes.Equal(data[i:i+opcode.WordSize], want[:]) {
			count++
			last = i
		}
	}
	return count, last
}

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

func TestLinkLayout(t *testing.T) {
	p := sampleProgram()
	img, err := New().Link(p)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	// Encoding again with a fresh allocator in the same order yields the
	// same objects.
	alloc := address.New()
	enc := encoder.New(alloc)
	var want bytes.Buffer
	version := [opcode.WordSize]byte{'0', '.', '4', '.', '0'}
	want.Write(version[:])
	var codes [][]byte
	for _, fn := range p.Functions {
		body, _ := p.Body(fn)
		obj, err := enc.Encode(fn, body)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", fn.Name, err)
		}
		codes = append(codes, obj.Code())
	}
	mainAddr, _ := alloc.Lookup("main")
	entry := mainAddr.Word()
	want.Write(entry[:])
	for _, c := range codes {
		want.Write(c)
	}
	end := opcode.ItemEnd.Word()
	want.Write(end[:])

	if !bytes.Equal(img.Bytes(), want.Bytes()) {
		t.Errorf("image bytes mismatch\n got % x\nwant % x", img.Bytes(), want.Bytes())
	}
	if !img.Entry.Equal(mainAddr) {
		t.Errorf("Entry = %s, want %s", img.Entry, mainAddr)
	}
	if img.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", img.Version, DefaultVersion)
	}
	if len(img.Objects) != 2 {
		t.Errorf("got %d objects, want 2", len(img.Objects))
	}
}

func TestLinkSingleTerminator(t *testing.T) {
	img, err := New().Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	data := img.Bytes()
	if len(data)%opcode.WordSize != 0 {
		t.Fatalf("image is %d bytes, not word aligned", len(data))
	}
	count, last := countWord(data, opcode.ItemEnd.Word())
	if count != 1 {
		t.Errorf("ItemEnd word appears %d times, want 1", count)
	}
	if last != len(data)-opcode.WordSize {
		t.Errorf("ItemEnd word at offset %d, want %d", last, len(data)-opcode.WordSize)
	}
}

func TestImageWriteTo(t *testing.T) {
	img, err := New().Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	var buf bytes.Buffer
	n, err := img.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != int64(len(img.Bytes())) || !bytes.Equal(buf.Bytes(), img.Bytes()) {
		t.Errorf("WriteTo wrote %d bytes, want %d", n, len(img.Bytes()))
	}
}

func TestLinkEntryFieldMatchesEntryFunction(t *testing.T) {
	img, err := New().Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	decoded, err := dis.DecodeImage(img.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if len(decoded.Functions) != 2 {
		t.Fatalf("decoded %d functions, want 2", len(decoded.Functions))
	}
	if !decoded.Entry.Equal(decoded.Functions[1].Name) {
		t.Errorf("entry %s does not name the second function %s", decoded.Entry, decoded.Functions[1].Name)
	}

	var listing bytes.Buffer
	if err := dis.Disassemble(&listing, decoded, dis.NamesFromEntries(img.Symbols)); err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	for _, want := range []string{"entry   main", "func helper(a)", "LET x = helper(7)", "RETURN x"} {
		if !strings.Contains(listing.String(), want) {
			t.Errorf("listing missing %q:\n%s", want, listing.String())
		}
	}
}

func TestLinkScriptEntry(t *testing.T) {
	p := bound.NewProgram()
	script := bound.Func("$script")
	p.Add(bound.Func("other"), bound.Block())
	p.Add(script, bound.Block(&bound.ReturnStatement{}))
	p.Script = script

	img, err := New().Link(p)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	want, _ := address.Encode(opcode.ReservedRange + 2)
	if !img.Entry.Equal(want) {
		t.Errorf("Entry = %s, want %s", img.Entry, want)
	}
}

func TestLinkVersion(t *testing.T) {
	l := &Linker{Version: "1.2"}
	img, err := l.Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	want := []byte{'1', '.', '2', 0, 0, 0, 0, 0}
	if got := img.Bytes()[:opcode.WordSize]; !bytes.Equal(got, want) {
		t.Errorf("version field = % x, want % x", got, want)
	}

	l.Version = "12345678"
	if _, err := l.Link(sampleProgram()); err != nil {
		t.Errorf("eight byte version rejected: %v", err)
	}

	l.Version = "123456789"
	if _, err := l.Link(sampleProgram()); !errors.Is(err, ErrVersionTooLong) {
		t.Errorf("error = %v, want ErrVersionTooLong", err)
	}
}

func TestLinkEntryErrors(t *testing.T) {
	p := sampleProgram()
	p.Main = nil
	if _, err := New().Link(p); !errors.Is(err, ErrNoEntry) {
		t.Errorf("no entry: error = %v, want ErrNoEntry", err)
	}

	p = sampleProgram()
	p.Main = bound.Func("main")
	if _, err := New().Link(p); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("foreign main: error = %v, want ErrEntryNotFound", err)
	}
}

func TestLinkEntryOverride(t *testing.T) {
	l := New()
	l.Entry = "helper"
	img, err := l.Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	want, _ := address.Encode(opcode.ReservedRange + 1)
	if !img.Entry.Equal(want) {
		t.Errorf("Entry = %s, want %s", img.Entry, want)
	}

	l.Entry = "missing"
	if _, err := l.Link(sampleProgram()); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestLinkPropagatesEncodeErrors(t *testing.T) {
	p := sampleProgram()
	bad := bound.Func("bad")
	p.Add(bad, bound.Block(&bound.ExpressionStatement{
		Expression: bound.Binary(bound.Lit(1), bound.BinaryOperatorKind(200), bound.Lit(1)),
	}))
	if _, err := New().Link(p); !errors.Is(err, encoder.ErrUnknownOperator) {
		t.Errorf("error = %v, want ErrUnknownOperator", err)
	}
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuildWritesFiles(t *testing.T) {
	dir := t.TempDir()
	layout := NewLayout(dir)
	var progress bytes.Buffer
	l := New()
	l.Progress = &progress

	res, err := l.Build(sampleProgram(), layout)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantImage := filepath.Join(dir, "out", "bcc", "bin", DefaultImage)
	if res.ImagePath != wantImage {
		t.Errorf("ImagePath = %s, want %s", res.ImagePath, wantImage)
	}
	if len(res.ObjectPaths) != 2 {
		t.Fatalf("got %d object paths, want 2", len(res.ObjectPaths))
	}
	if want := filepath.Join(dir, "out", "bcc", "obj", "helper.ilo"); res.ObjectPaths[0] != want {
		t.Errorf("object path = %s, want %s", res.ObjectPaths[0], want)
	}

	linked, err := New().Link(sampleProgram())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	data, err := os.ReadFile(res.ImagePath)
	if err != nil {
		t.Fatalf("reading image: %v", err)
	}
	if !bytes.Equal(data, linked.Bytes()) {
		t.Error("image on disk differs from in-memory link")
	}
	for i, path := range res.ObjectPaths {
		obj, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading object: %v", err)
		}
		if !bytes.Equal(obj, linked.Objects[i].Bytes()) {
			t.Errorf("object %s differs from encoded blob", path)
		}
	}
	if !res.Entry.Equal(linked.Entry) {
		t.Errorf("Entry = %s, want %s", res.Entry, linked.Entry)
	}

	out := progress.String()
	for _, want := range []string{
		"Compile item: " + filepath.Join(mustAbs(t, "lib"), "helper.il"),
		"Object written: " + res.ObjectPaths[1],
		"Finished compiling",
		"BCC Executable at: " + res.ImagePath,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("progress missing %q:\n%s", want, out)
		}
	}
}

func mustAbs(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("Abs(%s) failed: %v", path, err)
	}
	return abs
}

func TestBuildReplacesExistingFiles(t *testing.T) {
	layout := NewLayout(t.TempDir())
	if err := os.MkdirAll(layout.BinDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.ImagePath(), bytes.Repeat([]byte("stale"), 1000), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New().Build(sampleProgram(), layout)
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := New().Build(sampleProgram(), layout); err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	data, err := os.ReadFile(res.ImagePath)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("stale")) {
		t.Error("stale image content survived the build")
	}
}

func TestBuildFailureWritesNoImage(t *testing.T) {
	layout := NewLayout(t.TempDir())
	p := sampleProgram()
	p.Add(bound.Func("bad"), bound.Block(&bound.ExpressionStatement{Expression: bound.Lit(1.5)}))

	if _, err := New().Build(p, layout); !errors.Is(err, encoder.ErrUnsupportedLiteral) {
		t.Fatalf("error = %v, want ErrUnsupportedLiteral", err)
	}
	if _, err := os.Stat(layout.ImagePath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("image exists after failed build: %v", err)
	}
}

func TestBuildSymbolFailureWritesNoImage(t *testing.T) {
	layout := NewLayout(t.TempDir())
	layout.Symbols = true

	// A non-empty directory where the database belongs cannot be replaced.
	blocker := filepath.Join(layout.SymbolsPath(), "keep")
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := New().Build(sampleProgram(), layout); err == nil {
		t.Fatal("Build succeeded with an unwritable symbol database")
	}
	if _, err := os.Stat(layout.ImagePath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("image exists after failed build: %v", err)
	}
}

type failingSource struct{}

func (failingSource) WriteTo(w io.Writer) (int64, error) {
	n, _ := w.Write([]byte("partial"))
	return int64(n), errors.New("disk full")
}

func TestReplaceFileRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.ile")
	if err := replaceFile(path, failingSource{}); err == nil {
		t.Fatal("replaceFile succeeded with a failing source")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestBuildWritesSymbols(t *testing.T) {
	layout := NewLayout(t.TempDir())
	layout.Image = "app.ile"
	layout.Symbols = true

	res, err := New().Build(sampleProgram(), layout)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if filepath.Base(res.SymbolsPath) != "app.sym" {
		t.Errorf("SymbolsPath = %s, want app.sym", res.SymbolsPath)
	}

	db, err := symdb.Open(res.SymbolsPath)
	if err != nil {
		t.Fatalf("symdb.Open failed: %v", err)
	}
	defer db.Close()

	b, err := db.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if b.ID != res.BuildID {
		t.Errorf("build id = %s, want %s", b.ID, res.BuildID)
	}
	if !b.Entry.Equal(res.Entry) {
		t.Errorf("entry = %s, want %s", b.Entry, res.Entry)
	}
	names, err := db.Symbols()
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	if names[res.Entry.String()] != "main" {
		t.Errorf("entry symbol = %q, want main", names[res.Entry.String()])
	}
	if len(b.Objects) != 2 || b.Objects[0].Path != res.ObjectPaths[0] {
		t.Errorf("objects = %+v", b.Objects)
	}
}

func TestClean(t *testing.T) {
	layout := NewLayout(t.TempDir())
	if _, err := New().Build(sampleProgram(), layout); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := New().Clean(layout); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if _, err := os.Stat(layout.Root()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("build root still exists: %v", err)
	}
	if err := New().Clean(layout); err != nil {
		t.Errorf("Clean of a clean tree failed: %v", err)
	}
}
