// Package opcode defines the tag vocabulary of the bcc object and image
// formats.
package opcode

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Format constants
// ---------------------------------------------------------------------------

// WordSize is the width in bytes of every cell in the byte stream. Tags,
// addresses, counts and flags each occupy one word.
const WordSize = 8

// FormatVersion identifies the tag table below. Any change to the set or
// order of tags changes the wire format and must bump this value.
const FormatVersion = 3

// ReservedRange is the number of byte values reserved for tags. Symbol
// addresses are numbered from ReservedRange+1, so the table may grow up to
// this size without shifting any address.
const ReservedRange = 64

// ErrUnknownTag is returned when a byte does not name a tag.
var ErrUnknownTag = errors.New("unknown opcode tag")

// ---------------------------------------------------------------------------
// Tag definitions
// ---------------------------------------------------------------------------

// Tag is a single opcode. Its wire value is its definition index plus one;
// zero is never a tag and serves as padding.
type Tag byte

// Invalid is the zero value and never appears as a tag on the wire.
const Invalid Tag = 0

// Structural markers
const (
	HeadStart Tag = iota + 1
	ItemEnd
	CloseCommand
	Label
	Goto
	ConditionalGoto

	// Statement kinds
	Expression
	Return
	Const
	Let

	// Expression forms
	Un
	Bin
	Assign
	Call
	EndCall
	SepSplit

	// Literal kinds
	LiteralInt
	LiteralBool
	LiteralString

	// Binary operators
	Addition
	Subtraction
	Multiplication
	Division
	Modulo
	Pow
	LogicalAnd
	LogicalOr
	NotEquals
	Equals
	BitwiseAnd
	BitwiseOr
	BitwiseXor
	BitwiseShiftLeft
	BitwiseShiftRight
	Less
	LessEquals
	Greater
	GreaterEquals

	// Unary operators
	Identity
	Negation
	LogicalNegation
	OnesComplement

	// Reserved callee for the built-in syscall pseudo-function.
	Syscall

	endOfTags
)

// ---------------------------------------------------------------------------
// Tag metadata
// ---------------------------------------------------------------------------

var tagNames = [...]string{
	HeadStart:         "HEAD_START",
	ItemEnd:           "ITEM_END",
	CloseCommand:      "CLOSE_COMMAND",
	Label:             "LABEL",
	Goto:              "GOTO",
	ConditionalGoto:   "CONDITIONAL_GOTO",
	Expression:        "EXPRESSION",
	Return:            "RETURN",
	Const:             "CONST",
	Let:               "LET",
	Un:                "UN",
	Bin:               "BIN",
	Assign:            "ASSIGN",
	Call:              "CALL",
	EndCall:           "END_CALL",
	SepSplit:          "SEP_SPLIT",
	LiteralInt:        "LITERAL_INT",
	LiteralBool:       "LITERAL_BOOL",
	LiteralString:     "LITERAL_STRING",
	Addition:          "ADD",
	Subtraction:       "SUB",
	Multiplication:    "MUL",
	Division:          "DIV",
	Modulo:            "MOD",
	Pow:               "POW",
	LogicalAnd:        "AND",
	LogicalOr:         "OR",
	NotEquals:         "NE",
	Equals:            "EQ",
	BitwiseAnd:        "BIT_AND",
	BitwiseOr:         "BIT_OR",
	BitwiseXor:        "BIT_XOR",
	BitwiseShiftLeft:  "SHL",
	BitwiseShiftRight: "SHR",
	Less:              "LT",
	LessEquals:        "LE",
	Greater:           "GT",
	GreaterEquals:     "GE",
	Identity:          "IDENTITY",
	Negation:          "NEG",
	LogicalNegation:   "NOT",
	OnesComplement:    "COMPLEMENT",
	Syscall:           "SYSCALL",
}

func init() {
	if Count() > ReservedRange {
		panic(fmt.Sprintf("opcode: %d tags exceed reserved range %d", Count(), ReservedRange))
	}
}

// Count returns the number of defined tags.
func Count() int {
	return int(endOfTags) - 1
}

// All returns every tag in wire order.
func All() []Tag {
	tags := make([]Tag, 0, Count())
	for t := HeadStart; t < endOfTags; t++ {
		tags = append(tags, t)
	}
	return tags
}

// Valid reports whether t is a defined tag.
func (t Tag) Valid() bool {
	return t >= HeadStart && t < endOfTags
}

// String returns the mnemonic for t.
func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TAG(%d)", byte(t))
	}
	return tagNames[t]
}

// Word returns the tag as a full cell: the wire value followed by zeros.
func (t Tag) Word() [WordSize]byte {
	var w [WordSize]byte
	w[0] = byte(t)
	return w
}

// IsBinaryOperator reports whether t names a binary operator.
func (t Tag) IsBinaryOperator() bool {
	return t >= Addition && t <= GreaterEquals
}

// IsUnaryOperator reports whether t names a unary operator.
func (t Tag) IsUnaryOperator() bool {
	return t >= Identity && t <= OnesComplement
}

// Lookup converts a raw byte to a tag.
func Lookup(b byte) (Tag, error) {
	t := Tag(b)
	if !t.Valid() {
		return Invalid, fmt.Errorf("%w: %d", ErrUnknownTag, b)
	}
	return t, nil
}

// IsTagWord reports whether w is a bare tag cell: a defined tag in the
// first byte and zeros elsewhere.
func IsTagWord(w []byte) bool {
	if len(w) != WordSize || !Tag(w[0]).Valid() {
		return false
	}
	for _, b := range w[1:] {
		if b != 0 {
			return false
		}
	}
	return true
}
