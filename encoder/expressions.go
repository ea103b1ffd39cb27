package encoder

import (
	"fmt"

	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/opcode"
)

// ---------------------------------------------------------------------------
// Expression encoding
// ---------------------------------------------------------------------------

func (e *Encoder) writeExpression(expr bound.Expression) error {
	switch x := expr.(type) {
	case *bound.UnaryExpression:
		return e.writeUnary(x)
	case *bound.BinaryExpression:
		return e.writeBinary(x)
	case *bound.AssignmentExpression:
		e.tag(opcode.Assign)
		if _, err := e.address(x.Variable.Name); err != nil {
			return err
		}
		return e.writeExpression(x.Value)
	case *bound.LiteralExpression:
		return e.writeLiteral(x)
	case *bound.VariableExpression:
		// A bare address; its position identifies it as a reference.
		_, err := e.address(x.Variable.Name)
		return err
	case *bound.CallExpression:
		return e.writeCall(x)
	case *bound.ConversionExpression:
		// Coercions were validated by the binder and need no tag.
		return e.writeExpression(x.Expression)
	}
	return fmt.Errorf("%w: expression %T", ErrUnsupportedNode, expr)
}

func (e *Encoder) writeUnary(x *bound.UnaryExpression) error {
	op, ok := unaryTags[x.Op]
	if !ok {
		return fmt.Errorf("%w: unary %s", ErrUnknownOperator, x.Op)
	}
	e.tag(opcode.Un)
	e.tag(op)
	return e.writeExpression(x.Operand)
}

// writeBinary emits Bin, the left operand, the operator, then the right
// operand.
func (e *Encoder) writeBinary(x *bound.BinaryExpression) error {
	op, ok := binaryTags[x.Op]
	if !ok {
		return fmt.Errorf("%w: binary %s", ErrUnknownOperator, x.Op)
	}
	e.tag(opcode.Bin)
	if err := e.writeExpression(x.Left); err != nil {
		return err
	}
	e.tag(op)
	return e.writeExpression(x.Right)
}

func (e *Encoder) writeLiteral(x *bound.LiteralExpression) error {
	switch v := x.Value.(type) {
	case bool:
		e.tag(opcode.LiteralBool)
		e.flag(v)
		return nil
	case string:
		e.tag(opcode.LiteralString)
		return e.writeChunks(v)
	}

	i, ok := x.IntValue()
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedLiteral, x.Value)
	}
	e.tag(opcode.LiteralInt)
	e.writeInt(i)
	return nil
}

// writeInt emits the 32-byte int field. Only the low byte is stored; the
// rest of the field is zero.
// TODO: store all four bytes once the interpreter reads the full field;
// that is a FormatVersion bump.
func (e *Encoder) writeInt(v int32) {
	if v < 0 || v > 0xff {
		name := ""
		if e.fn != nil {
			name = e.fn.Name
		}
		log().Warningf("int literal %d in %s truncated to %d", v, name, byte(v))
	}
	var field [IntFieldSize]byte
	field[0] = byte(v)
	e.buf.Write(field[:])
}

// writeChunks packs the string into words, one byte per character, zero
// padding the last word. No length is written. Characters above U+00FF have
// no byte and are rejected.
func (e *Encoder) writeChunks(s string) error {
	data := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xff {
			return fmt.Errorf("%w: character %q at byte %d of string literal", ErrUnsupportedLiteral, r, i)
		}
		data = append(data, byte(r))
	}
	for len(data) > 0 {
		var w [opcode.WordSize]byte
		n := copy(w[:], data)
		e.word(w)
		data = data[n:]
	}
	return nil
}

// writeCall emits Call, the callee, the arguments separated by SepSplit and
// a closing EndCall.
func (e *Encoder) writeCall(x *bound.CallExpression) error {
	e.tag(opcode.Call)
	if x.Function.Name == bound.SyscallName {
		e.tag(opcode.Syscall)
	} else if _, err := e.address(x.Function.Name); err != nil {
		return err
	}

	for i, arg := range x.Arguments {
		if i > 0 {
			e.tag(opcode.SepSplit)
		}
		if err := e.writeExpression(arg); err != nil {
			return err
		}
	}
	e.tag(opcode.EndCall)
	return nil
}
