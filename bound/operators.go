package bound

import "fmt"

// UnaryOperatorKind is a prefix operator.
type UnaryOperatorKind int

const (
	Identity UnaryOperatorKind = iota + 1
	Negation
	LogicalNegation
	OnesComplement
)

// BinaryOperatorKind is an infix operator.
type BinaryOperatorKind int

const (
	Addition BinaryOperatorKind = iota + 1
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
)

var unaryNames = map[UnaryOperatorKind]string{
	Identity:        "identity",
	Negation:        "negation",
	LogicalNegation: "logical_negation",
	OnesComplement:  "ones_complement",
}

var binaryNames = map[BinaryOperatorKind]string{
	Addition:          "addition",
	Subtraction:       "subtraction",
	Multiplication:    "multiplication",
	Division:          "division",
	Modulo:            "modulo",
	Pow:               "pow",
	LogicalAnd:        "logical_and",
	LogicalOr:         "logical_or",
	NotEquals:         "not_equals",
	Equals:            "equals",
	BitwiseAnd:        "bitwise_and",
	BitwiseOr:         "bitwise_or",
	BitwiseXor:        "bitwise_xor",
	BitwiseShiftLeft:  "bitwise_shift_left",
	BitwiseShiftRight: "bitwise_shift_right",
	Less:              "less",
	LessEquals:        "less_equals",
	Greater:           "greater",
	GreaterEquals:     "greater_equals",
}

func (k UnaryOperatorKind) String() string {
	if name, ok := unaryNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unary(%d)", int(k))
}

func (k BinaryOperatorKind) String() string {
	if name, ok := binaryNames[k]; ok {
		return name
	}
	return fmt.Sprintf("binary(%d)", int(k))
}

// IsComparison reports whether k yields a bool from its operands.
func (k BinaryOperatorKind) IsComparison() bool {
	switch k {
	case NotEquals, Equals, Less, LessEquals, Greater, GreaterEquals:
		return true
	}
	return false
}

// ParseUnaryOperator converts a name produced by String back to a kind.
func ParseUnaryOperator(name string) (UnaryOperatorKind, bool) {
	for k, n := range unaryNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// ParseBinaryOperator converts a name produced by String back to a kind.
func ParseBinaryOperator(name string) (BinaryOperatorKind, bool) {
	for k, n := range binaryNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}
