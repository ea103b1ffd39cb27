// Package linker encodes every function of a bound program with a shared
// address allocator and concatenates the objects into an executable image.
package linker

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/encoder"
	"github.com/chazu/bcc/opcode"
)

// DefaultVersion is written into the image header when no version is set.
const DefaultVersion = "0.4.0"

var (
	ErrNoEntry        = errors.New("program declares neither main nor a script function")
	ErrEntryNotFound  = errors.New("entry function is not part of the program")
	ErrVersionTooLong = errors.New("version does not fit the header field")
)

func log() commonlog.Logger {
	return commonlog.GetLogger("bcc.linker")
}

// ---------------------------------------------------------------------------
// Image
// ---------------------------------------------------------------------------

// Image is a linked executable: version word, entry address word, each
// object's code, and a single ItemEnd word.
type Image struct {
	Version string
	Entry   address.Address
	Objects []*encoder.Object

	// Symbols lists every allocated name in first-lookup order.
	Symbols []address.Entry

	data []byte
}

// Bytes returns the serialized image.
func (img *Image) Bytes() []byte {
	return img.data
}

// WriteTo writes the serialized image to w.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.data)
	return int64(n), err
}

// versionWord left-justifies the ASCII version in one zero-padded word.
func versionWord(version string) ([opcode.WordSize]byte, error) {
	var w [opcode.WordSize]byte
	if len(version) > opcode.WordSize {
		return w, fmt.Errorf("%w: %q is %d bytes, max %d", ErrVersionTooLong, version, len(version), opcode.WordSize)
	}
	copy(w[:], version)
	return w, nil
}

func assemble(version string, entry address.Address, objects []*encoder.Object) ([]byte, error) {
	vw, err := versionWord(version)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(vw[:])
	ew := entry.Word()
	buf.Write(ew[:])
	for _, obj := range objects {
		buf.Write(obj.Code())
	}
	end := opcode.ItemEnd.Word()
	buf.Write(end[:])
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Linker
// ---------------------------------------------------------------------------

// Linker turns bound programs into images.
type Linker struct {
	// Version is the toolchain version stamped into the image header. At
	// most opcode.WordSize ASCII bytes.
	Version string

	// Entry names the entry function. Empty selects main, falling back to
	// the script function.
	Entry string

	// Progress receives the build status lines. Nil discards them.
	Progress io.Writer
}

// New creates a linker stamping DefaultVersion and discarding progress.
func New() *Linker {
	return &Linker{Version: DefaultVersion}
}

func (l *Linker) version() string {
	if l.Version == "" {
		return DefaultVersion
	}
	return l.Version
}

func (l *Linker) progress(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log().Info(msg)
	if l.Progress != nil {
		fmt.Fprintln(l.Progress, msg)
	}
}

// Link encodes every function of p in program order and assembles the
// image in memory.
func (l *Linker) Link(p *bound.Program) (*Image, error) {
	return l.link(p, nil)
}

// entry resolves the entry function: the named override, else main when
// declared, else the script function. It must belong to the program.
func (l *Linker) entry(p *bound.Program) (*bound.FunctionSymbol, error) {
	if l.Entry != "" {
		fn, ok := p.Function(l.Entry)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, l.Entry)
		}
		return fn, nil
	}
	fn := p.Entry()
	if fn == nil {
		return nil, ErrNoEntry
	}
	for _, f := range p.Functions {
		if f == fn {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, fn.Name)
}

// link encodes p and, when store is set, hands each object to it before
// assembly. The image is built from whatever store returns.
func (l *Linker) link(p *bound.Program, store func(*bound.FunctionSymbol, *encoder.Object) (*encoder.Object, error)) (*Image, error) {
	entryFn, err := l.entry(p)
	if err != nil {
		return nil, err
	}
	version := l.version()
	if _, err := versionWord(version); err != nil {
		return nil, err
	}

	alloc := address.New()
	enc := encoder.New(alloc)
	objects := make([]*encoder.Object, 0, len(p.Functions))
	for _, fn := range p.Functions {
		body, ok := p.Body(fn)
		if !ok {
			log().Warningf("function %s has no body", fn.Name)
		}
		obj, err := enc.Encode(fn, body)
		if err != nil {
			return nil, err
		}
		if store != nil {
			if obj, err = store(fn, obj); err != nil {
				return nil, err
			}
		}
		objects = append(objects, obj)
	}

	entryAddr, ok := alloc.Lookup(entryFn.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s was never encoded", ErrEntryNotFound, entryFn.Name)
	}
	data, err := assemble(version, entryAddr, objects)
	if err != nil {
		return nil, err
	}
	log().Debugf("linked %d objects, %d bytes, entry %s", len(objects), len(data), entryFn.Name)

	return &Image{
		Version: version,
		Entry:   entryAddr,
		Objects: objects,
		Symbols: alloc.Entries(),
		data:    data,
	}, nil
}
