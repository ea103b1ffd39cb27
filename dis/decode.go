// Package dis decodes bcc object blobs and executable images back into a
// tree and renders them as text.
package dis

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/opcode"
)

// HeaderSize is the size of the image header: version and entry words.
const HeaderSize = 2 * opcode.WordSize

// intFieldSize mirrors the encoder's int literal payload.
const intFieldSize = 32

var (
	ErrUnexpectedEOF     = errors.New("unexpected end of data")
	ErrUnexpectedTag     = errors.New("unexpected tag")
	ErrMalformedWord     = errors.New("malformed word")
	ErrMissingTerminator = errors.New("missing terminator")
	ErrTrailingData      = errors.New("trailing data after terminator")
)

// ---------------------------------------------------------------------------
// Follow sets
// ---------------------------------------------------------------------------

// follow is the set of tags allowed right after an expression. It lets the
// decoder tell a bare tag word from a one-byte string chunk.
type follow uint64

func followOf(tags ...opcode.Tag) follow {
	var f follow
	for _, t := range tags {
		f |= 1 << t
	}
	return f
}

func (f follow) has(t opcode.Tag) bool {
	return t < 64 && f&(1<<t) != 0
}

var (
	followStatement = followOf(opcode.CloseCommand)
	followArgument  = followOf(opcode.SepSplit, opcode.EndCall)
	followLeft      follow
)

func init() {
	for _, t := range opcode.All() {
		if t.IsBinaryOperator() {
			followLeft |= followOf(t)
		}
	}
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

type reader struct {
	data   []byte
	offset int
}

func (r *reader) eof() bool {
	return r.offset >= len(r.data)
}

func (r *reader) peek() ([]byte, error) {
	if r.offset+opcode.WordSize > len(r.data) {
		return nil, fmt.Errorf("%w at offset %d", ErrUnexpectedEOF, r.offset)
	}
	return r.data[r.offset : r.offset+opcode.WordSize], nil
}

func (r *reader) word() ([]byte, error) {
	w, err := r.peek()
	if err != nil {
		return nil, err
	}
	r.offset += opcode.WordSize
	return w, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.offset+n > len(r.data) {
		return nil, fmt.Errorf("%w at offset %d", ErrUnexpectedEOF, r.offset)
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// tagOf classifies a word in tag position.
func (r *reader) tagOf(w []byte) (opcode.Tag, error) {
	t, err := opcode.Lookup(w[0])
	if err != nil {
		return opcode.Invalid, fmt.Errorf("offset %d: %w", r.offset, err)
	}
	if !opcode.IsTagWord(w) {
		return opcode.Invalid, fmt.Errorf("%w at offset %d: % x", ErrMalformedWord, r.offset, w)
	}
	return t, nil
}

func (r *reader) tag() (opcode.Tag, error) {
	w, err := r.peek()
	if err != nil {
		return opcode.Invalid, err
	}
	t, err := r.tagOf(w)
	if err != nil {
		return opcode.Invalid, err
	}
	r.offset += opcode.WordSize
	return t, nil
}

func (r *reader) expect(want opcode.Tag) error {
	t, err := r.tag()
	if err != nil {
		return err
	}
	if t != want {
		return fmt.Errorf("%w at offset %d: got %s, want %s", ErrUnexpectedTag, r.offset-opcode.WordSize, t, want)
	}
	return nil
}

// value reads a word carrying one byte in its first position.
func (r *reader) value() (byte, error) {
	w, err := r.word()
	if err != nil {
		return 0, err
	}
	for _, b := range w[1:] {
		if b != 0 {
			return 0, fmt.Errorf("%w at offset %d: % x", ErrMalformedWord, r.offset-opcode.WordSize, w)
		}
	}
	return w[0], nil
}

func (r *reader) flag() (bool, error) {
	v, err := r.value()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w at offset %d: flag %d", ErrMalformedWord, r.offset-opcode.WordSize, v)
}

func (r *reader) address() (address.Address, error) {
	w, err := r.word()
	if err != nil {
		return nil, err
	}
	addr, err := address.Decode(w)
	if err != nil {
		return nil, fmt.Errorf("offset %d: %w", r.offset-opcode.WordSize, err)
	}
	return addr, nil
}

// isAddressWord reports whether w starts with a byte above the tag range.
func isAddressWord(w []byte) bool {
	return w[0] > opcode.ReservedRange
}

// ---------------------------------------------------------------------------
// Objects and images
// ---------------------------------------------------------------------------

// DecodeObject decodes a single object blob, including its ItemEnd word.
func DecodeObject(data []byte) (*Function, error) {
	r := &reader{data: data}
	fn, err := r.function()
	if err != nil {
		return nil, err
	}
	if r.eof() {
		return nil, ErrMissingTerminator
	}
	if err := r.expect(opcode.ItemEnd); err != nil {
		return nil, err
	}
	if !r.eof() {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-r.offset)
	}
	return fn, nil
}

// DecodeImage decodes a linked image: header, functions and terminator.
func DecodeImage(data []byte) (*Image, error) {
	r := &reader{data: data}
	header, err := r.bytes(HeaderSize)
	if err != nil {
		return nil, err
	}
	img := &Image{Version: string(bytes.TrimRight(header[:opcode.WordSize], "\x00"))}
	if img.Entry, err = address.Decode(header[opcode.WordSize:]); err != nil {
		return nil, fmt.Errorf("entry field: %w", err)
	}

	for {
		if r.eof() {
			return nil, ErrMissingTerminator
		}
		t, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch t {
		case opcode.ItemEnd:
			if !r.eof() {
				return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-r.offset)
			}
			return img, nil
		case opcode.HeadStart:
			r.offset -= opcode.WordSize
			fn, err := r.function()
			if err != nil {
				return nil, err
			}
			img.Functions = append(img.Functions, fn)
		default:
			return nil, fmt.Errorf("%w at offset %d: %s between functions", ErrUnexpectedTag, r.offset-opcode.WordSize, t)
		}
	}
}

// function decodes a header and body, stopping before ItemEnd, the next
// HeadStart or the end of data.
func (r *reader) function() (*Function, error) {
	if err := r.expect(opcode.HeadStart); err != nil {
		return nil, err
	}
	fn := &Function{}
	var err error
	if fn.Name, err = r.address(); err != nil {
		return nil, err
	}
	count, err := r.value()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		p, err := r.address()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, p)
	}

	for !r.eof() {
		w, err := r.peek()
		if err != nil {
			return nil, err
		}
		t, err := r.tagOf(w)
		if err != nil {
			return nil, err
		}
		switch t {
		case opcode.ItemEnd, opcode.HeadStart:
			return fn, nil
		case opcode.CloseCommand:
			// Left behind by a flattened nested block.
			r.offset += opcode.WordSize
			continue
		}
		stmt, err := r.statement()
		if err != nil {
			return nil, err
		}
		if err := r.expect(opcode.CloseCommand); err != nil {
			return nil, err
		}
		fn.Body = append(fn.Body, stmt)
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (r *reader) statement() (Stmt, error) {
	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	switch t {
	case opcode.Label:
		target, err := r.address()
		return &Label{Target: target}, err
	case opcode.Goto:
		target, err := r.address()
		return &Goto{Target: target}, err
	case opcode.ConditionalGoto:
		s := &ConditionalGoto{}
		if s.JumpIfTrue, err = r.flag(); err != nil {
			return nil, err
		}
		if s.Target, err = r.address(); err != nil {
			return nil, err
		}
		if s.Condition, err = r.expression(followStatement); err != nil {
			return nil, err
		}
		return s, nil
	case opcode.Return:
		w, err := r.peek()
		if err != nil {
			return nil, err
		}
		if opcode.IsTagWord(w) && opcode.Tag(w[0]) == opcode.CloseCommand {
			return &Return{}, nil
		}
		value, err := r.expression(followStatement)
		if err != nil {
			return nil, err
		}
		return &Return{Value: value}, nil
	case opcode.Const, opcode.Let:
		s := &Declaration{Const: t == opcode.Const}
		if s.Name, err = r.address(); err != nil {
			return nil, err
		}
		if s.Init, err = r.expression(followStatement); err != nil {
			return nil, err
		}
		return s, nil
	case opcode.Expression:
		x, err := r.expression(followStatement)
		if err != nil {
			return nil, err
		}
		return &ExpressionStmt{X: x}, nil
	}
	return nil, fmt.Errorf("%w at offset %d: %s cannot start a statement", ErrUnexpectedTag, r.offset-opcode.WordSize, t)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (r *reader) expression(next follow) (Expr, error) {
	w, err := r.peek()
	if err != nil {
		return nil, err
	}
	if isAddressWord(w) {
		addr, err := r.address()
		if err != nil {
			return nil, err
		}
		return &VarRef{Addr: addr}, nil
	}

	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	switch t {
	case opcode.Un:
		op, err := r.tag()
		if err != nil {
			return nil, err
		}
		if !op.IsUnaryOperator() {
			return nil, fmt.Errorf("%w at offset %d: %s is not a unary operator", ErrUnexpectedTag, r.offset-opcode.WordSize, op)
		}
		x, err := r.expression(next)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x}, nil
	case opcode.Bin:
		left, err := r.expression(followLeft)
		if err != nil {
			return nil, err
		}
		op, err := r.tag()
		if err != nil {
			return nil, err
		}
		if !op.IsBinaryOperator() {
			return nil, fmt.Errorf("%w at offset %d: %s is not a binary operator", ErrUnexpectedTag, r.offset-opcode.WordSize, op)
		}
		right, err := r.expression(next)
		if err != nil {
			return nil, err
		}
		return &Binary{Left: left, Op: op, Right: right}, nil
	case opcode.Assign:
		target, err := r.address()
		if err != nil {
			return nil, err
		}
		value, err := r.expression(next)
		if err != nil {
			return nil, err
		}
		return &Assign{Target: target, Value: value}, nil
	case opcode.LiteralInt:
		field, err := r.bytes(intFieldSize)
		if err != nil {
			return nil, err
		}
		for _, b := range field[1:] {
			if b != 0 {
				return nil, fmt.Errorf("%w: int field % x", ErrMalformedWord, field)
			}
		}
		return &IntLit{Value: field[0]}, nil
	case opcode.LiteralBool:
		v, err := r.flag()
		if err != nil {
			return nil, err
		}
		return &BoolLit{Value: v}, nil
	case opcode.LiteralString:
		s, err := r.chunks(next)
		if err != nil {
			return nil, err
		}
		return &StringLit{Value: s}, nil
	case opcode.Call:
		return r.call()
	}
	return nil, fmt.Errorf("%w at offset %d: %s cannot start an expression", ErrUnexpectedTag, r.offset-opcode.WordSize, t)
}

// chunks reads string data, one character per byte. A chunk with zero
// padding ends the string. After a full chunk, a bare tag word that may
// follow the expression is taken as the end; the format carries no length,
// so this is a heuristic.
func (r *reader) chunks(next follow) (string, error) {
	var sb strings.Builder
	write := func(p []byte) {
		for _, b := range p {
			sb.WriteRune(rune(b))
		}
	}
	for {
		w, err := r.peek()
		if err != nil {
			return "", err
		}
		if opcode.IsTagWord(w) && next.has(opcode.Tag(w[0])) {
			return sb.String(), nil
		}
		r.offset += opcode.WordSize
		if i := bytes.IndexByte(w, 0); i >= 0 {
			write(w[:i])
			return sb.String(), nil
		}
		write(w)
	}
}

func (r *reader) call() (Expr, error) {
	c := &Call{}
	w, err := r.peek()
	if err != nil {
		return nil, err
	}
	if opcode.IsTagWord(w) && opcode.Tag(w[0]) == opcode.Syscall {
		r.offset += opcode.WordSize
		c.Syscall = true
	} else if c.Callee, err = r.address(); err != nil {
		return nil, err
	}

	w, err = r.peek()
	if err != nil {
		return nil, err
	}
	if opcode.IsTagWord(w) && opcode.Tag(w[0]) == opcode.EndCall {
		r.offset += opcode.WordSize
		return c, nil
	}

	for {
		arg, err := r.expression(followArgument)
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)

		t, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch t {
		case opcode.EndCall:
			return c, nil
		case opcode.SepSplit:
			continue
		}
		return nil, fmt.Errorf("%w at offset %d: %s inside call arguments", ErrUnexpectedTag, r.offset-opcode.WordSize, t)
	}
}
