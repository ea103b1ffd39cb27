// Package encoder serializes one bound function into an object blob.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/opcode"
)

// IntFieldSize is the width of an int literal payload.
const IntFieldSize = 32

// MaxParameters is the largest parameter count the header can carry.
const MaxParameters = 255

var (
	ErrUnknownOperator    = errors.New("operator has no opcode")
	ErrUnsupportedNode    = errors.New("unsupported bound node")
	ErrUnsupportedLiteral = errors.New("unsupported literal type")
	ErrTooManyParameters  = errors.New("too many parameters")

	// ErrCorruptObject is returned for object bytes that are not word
	// aligned or lack their terminator.
	ErrCorruptObject = errors.New("corrupt object")
)

// The logger is looked up on use so a backend configured after package
// initialization is honored.
func log() commonlog.Logger {
	return commonlog.GetLogger("bcc.encoder")
}

var unaryTags = map[bound.UnaryOperatorKind]opcode.Tag{
	bound.Identity:        opcode.Identity,
	bound.Negation:        opcode.Negation,
	bound.LogicalNegation: opcode.LogicalNegation,
	bound.OnesComplement:  opcode.OnesComplement,
}

var binaryTags = map[bound.BinaryOperatorKind]opcode.Tag{
	bound.Addition:          opcode.Addition,
	bound.Subtraction:       opcode.Subtraction,
	bound.Multiplication:    opcode.Multiplication,
	bound.Division:          opcode.Division,
	bound.Modulo:            opcode.Modulo,
	bound.Pow:               opcode.Pow,
	bound.LogicalAnd:        opcode.LogicalAnd,
	bound.LogicalOr:         opcode.LogicalOr,
	bound.NotEquals:         opcode.NotEquals,
	bound.Equals:            opcode.Equals,
	bound.BitwiseAnd:        opcode.BitwiseAnd,
	bound.BitwiseOr:         opcode.BitwiseOr,
	bound.BitwiseXor:        opcode.BitwiseXor,
	bound.BitwiseShiftLeft:  opcode.BitwiseShiftLeft,
	bound.BitwiseShiftRight: opcode.BitwiseShiftRight,
	bound.Less:              opcode.Less,
	bound.LessEquals:        opcode.LessEquals,
	bound.Greater:           opcode.Greater,
	bound.GreaterEquals:     opcode.GreaterEquals,
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is the encoded form of one function: header, body and a trailing
// ItemEnd word.
type Object struct {
	Name    string
	Address address.Address

	data []byte
}

// NewObject wraps raw object bytes, as read back from disk. The last word
// must be the ItemEnd word.
func NewObject(name string, data []byte) (*Object, error) {
	if len(data) < 4*opcode.WordSize || len(data)%opcode.WordSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrCorruptObject, name, len(data))
	}
	end := opcode.ItemEnd.Word()
	if !bytes.Equal(data[len(data)-opcode.WordSize:], end[:]) {
		return nil, fmt.Errorf("%w: %s does not end with %s", ErrCorruptObject, name, opcode.ItemEnd)
	}
	return &Object{Name: name, data: data}, nil
}

// Bytes returns the full blob including the ItemEnd word.
func (o *Object) Bytes() []byte {
	return o.data
}

// Code returns the blob without its ItemEnd word. The boundary comes from
// the tracked length, never from scanning for a marker byte.
func (o *Object) Code() []byte {
	return o.data[:len(o.data)-opcode.WordSize]
}

// Len returns the blob size in bytes.
func (o *Object) Len() int {
	return len(o.data)
}

// WriteTo writes the full blob to w.
func (o *Object) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(o.data)
	return int64(n), err
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

// Encoder writes object blobs. Every function of a build must be encoded
// with the same allocator so addresses agree across objects.
type Encoder struct {
	alloc *address.Allocator
	buf   *bytes.Buffer
	fn    *bound.FunctionSymbol
}

// New creates an encoder resolving names through alloc.
func New(alloc *address.Allocator) *Encoder {
	return &Encoder{alloc: alloc}
}

// Encode serializes fn with its body into a fresh object.
func (e *Encoder) Encode(fn *bound.FunctionSymbol, body *bound.BlockStatement) (*Object, error) {
	e.buf = bytes.NewBuffer(nil)
	e.fn = fn
	defer func() { e.fn = nil }()

	addr, err := e.writeHeader(fn)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", fn.Name, err)
	}
	if body != nil {
		if err := e.writeBlock(body); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", fn.Name, err)
		}
	}
	e.tag(opcode.ItemEnd)

	return &Object{Name: fn.Name, Address: addr, data: e.buf.Bytes()}, nil
}

func (e *Encoder) word(w [opcode.WordSize]byte) {
	e.buf.Write(w[:])
}

func (e *Encoder) tag(t opcode.Tag) {
	e.word(t.Word())
}

func (e *Encoder) value(b byte) {
	var w [opcode.WordSize]byte
	w[0] = b
	e.word(w)
}

func (e *Encoder) flag(v bool) {
	if v {
		e.value(1)
	} else {
		e.value(0)
	}
}

func (e *Encoder) address(name string) (address.Address, error) {
	addr, err := e.alloc.Resolve(name)
	if err != nil {
		return nil, err
	}
	e.word(addr.Word())
	return addr, nil
}

// writeHeader emits HeadStart, the name, the parameter count and each
// parameter name. Types are not part of the format.
func (e *Encoder) writeHeader(fn *bound.FunctionSymbol) (address.Address, error) {
	if len(fn.Parameters) > MaxParameters {
		return nil, fmt.Errorf("%w: %d", ErrTooManyParameters, len(fn.Parameters))
	}

	e.tag(opcode.HeadStart)
	addr, err := e.address(fn.Name)
	if err != nil {
		return nil, err
	}
	e.value(byte(len(fn.Parameters)))
	for _, param := range fn.Parameters {
		if _, err := e.address(param.Name); err != nil {
			return nil, err
		}
	}
	return addr, nil
}
