package linker

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/encoder"
	"github.com/chazu/bcc/symdb"
)

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// DefaultImage is the image file name used when none is configured.
const DefaultImage = "program.ile"

// ObjectExt is the extension of per-function object files.
const ObjectExt = ".ilo"

// Layout describes where a build writes its files. Objects go to
// <OutDir>/bcc/obj and the image to <OutDir>/bcc/bin.
type Layout struct {
	OutDir string
	Image  string

	// Symbols also writes a symbol database next to the image.
	Symbols bool
}

// NewLayout returns the default layout for a project rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{OutDir: filepath.Join(dir, "out"), Image: DefaultImage}
}

// Root is the directory owned by the build.
func (l Layout) Root() string { return filepath.Join(l.OutDir, "bcc") }

func (l Layout) ObjDir() string { return filepath.Join(l.Root(), "obj") }
func (l Layout) BinDir() string { return filepath.Join(l.Root(), "bin") }

// ObjectPath is the object file for the named function.
func (l Layout) ObjectPath(name string) string {
	return filepath.Join(l.ObjDir(), name+ObjectExt)
}

func (l Layout) ImagePath() string {
	image := l.Image
	if image == "" {
		image = DefaultImage
	}
	return filepath.Join(l.BinDir(), image)
}

// SymbolsPath is the symbol database written beside the image.
func (l Layout) SymbolsPath() string {
	image := l.ImagePath()
	return strings.TrimSuffix(image, filepath.Ext(image)) + ".sym"
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Result reports what a build produced.
type Result struct {
	BuildID     uuid.UUID
	ObjectPaths []string
	ImagePath   string
	SymbolsPath string
	Entry       address.Address
	Symbols     []address.Entry
}

// Build encodes p into object files, reads each one back, links them and
// writes the image. Existing files are replaced. Nothing is written to the
// bin directory when any object fails.
func (l *Linker) Build(p *bound.Program, layout Layout) (*Result, error) {
	for _, dir := range []string{layout.ObjDir(), layout.BinDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	res := &Result{BuildID: uuid.New()}
	store := func(fn *bound.FunctionSymbol, obj *encoder.Object) (*encoder.Object, error) {
		source := fn.Name
		if fn.Source != "" {
			source = fn.Source
			if abs, err := filepath.Abs(fn.Source); err == nil {
				source = abs
			}
		}
		l.progress("Compile item: %s", source)

		path, err := filepath.Abs(layout.ObjectPath(fn.Name))
		if err != nil {
			return nil, err
		}
		back, err := writeObject(path, obj)
		if err != nil {
			return nil, err
		}
		l.progress("Object written: %s", path)
		res.ObjectPaths = append(res.ObjectPaths, path)
		return back, nil
	}

	img, err := l.link(p, store)
	if err != nil {
		return nil, err
	}

	imagePath, err := filepath.Abs(layout.ImagePath())
	if err != nil {
		return nil, err
	}
	res.ImagePath = imagePath
	res.Entry = img.Entry
	res.Symbols = img.Symbols

	// A failed symbol write leaves no image.
	if layout.Symbols {
		res.SymbolsPath, err = filepath.Abs(layout.SymbolsPath())
		if err != nil {
			return nil, err
		}
		if err := l.writeSymbols(res, img); err != nil {
			return nil, err
		}
	}
	if err := replaceFile(imagePath, img); err != nil {
		if res.SymbolsPath != "" {
			os.Remove(res.SymbolsPath)
		}
		return nil, err
	}

	l.progress("Finished compiling")
	l.progress("BCC Executable at: %s", imagePath)
	return res, nil
}

// writeObject replaces the file at path with obj and returns the object as
// read back from disk.
func writeObject(path string, obj *encoder.Object) (*encoder.Object, error) {
	if err := replaceFile(path, obj); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading back %s: %w", path, err)
	}
	if len(data) != obj.Len() {
		return nil, fmt.Errorf("%w: %s is %d bytes, wrote %d", encoder.ErrCorruptObject, path, len(data), obj.Len())
	}
	back, err := encoder.NewObject(obj.Name, data)
	if err != nil {
		return nil, err
	}
	back.Address = obj.Address
	return back, nil
}

// replaceFile deletes path if present, then creates it with the contents
// of src. A partially written file is removed.
func replaceFile(path string, src io.WriterTo) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	_, err = src.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (l *Linker) writeSymbols(res *Result, img *Image) error {
	if err := os.Remove(res.SymbolsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", res.SymbolsPath, err)
	}
	db, err := symdb.Open(res.SymbolsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	objects := make([]symdb.Object, len(img.Objects))
	for i, obj := range img.Objects {
		objects[i] = symdb.Object{Name: obj.Name, Size: obj.Len()}
		if i < len(res.ObjectPaths) {
			objects[i].Path = res.ObjectPaths[i]
		}
	}
	err = db.WriteBuild(symdb.Build{
		ID:      res.BuildID,
		Version: img.Version,
		Entry:   img.Entry,
		Symbols: img.Symbols,
		Objects: objects,
	})
	if err != nil {
		return err
	}
	l.progress("Symbols written: %s", res.SymbolsPath)
	return nil
}

// Clean removes everything a build under layout wrote.
func (l *Linker) Clean(layout Layout) error {
	root := layout.Root()
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("removing %s: %w", root, err)
	}
	log().Infof("removed %s", root)
	return nil
}
