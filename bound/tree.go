// Package bound describes the type-checked program tree handed to the
// backend by the front end.
package bound

import "fmt"

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// TypeSymbol names a type. Types never reach the wire; they only select
// literal encodings.
type TypeSymbol struct {
	Name string
}

// Builtin types.
var (
	Int    = &TypeSymbol{Name: "int"}
	Bool   = &TypeSymbol{Name: "bool"}
	String = &TypeSymbol{Name: "string"}
	Void   = &TypeSymbol{Name: "void"}
)

// SyscallName is the reserved name of the built-in syscall function.
const SyscallName = "syscall"

// LookupType returns the builtin type with the given name.
func LookupType(name string) (*TypeSymbol, bool) {
	switch name {
	case Int.Name:
		return Int, true
	case Bool.Name:
		return Bool, true
	case String.Name:
		return String, true
	case Void.Name, "":
		return Void, true
	}
	return nil, false
}

// ParameterSymbol is one function parameter.
type ParameterSymbol struct {
	Name string
	Type *TypeSymbol
}

// VariableSymbol is a local, global or parameter reference.
type VariableSymbol struct {
	Name     string
	Type     *TypeSymbol
	ReadOnly bool
}

// LabelSymbol is a jump target produced by lowering.
type LabelSymbol struct {
	Name string
}

// FunctionSymbol is a declared function.
type FunctionSymbol struct {
	Name       string
	Parameters []*ParameterSymbol
	ReturnType *TypeSymbol

	// Source is the file the function was declared in, if known.
	Source string
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

// Kind identifies a node type.
type Kind string

const (
	KindBlock               Kind = "block"
	KindLabel               Kind = "label"
	KindGoto                Kind = "goto"
	KindConditionalGoto     Kind = "conditional_goto"
	KindReturn              Kind = "return"
	KindVariableDeclaration Kind = "variable_declaration"
	KindExpressionStatement Kind = "expression_statement"

	KindUnary      Kind = "unary"
	KindBinary     Kind = "binary"
	KindAssignment Kind = "assignment"
	KindLiteral    Kind = "literal"
	KindVariable   Kind = "variable"
	KindCall       Kind = "call"
	KindConversion Kind = "conversion"
)

// Node is any bound tree node.
type Node interface {
	Kind() Kind
}

// Statement is a bound statement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a bound expression.
type Expression interface {
	Node
	Type() *TypeSymbol
	expressionNode()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// BlockStatement is an ordered list of statements.
type BlockStatement struct {
	Statements []Statement
}

// LabelStatement marks a jump target.
type LabelStatement struct {
	Label *LabelSymbol
}

// GotoStatement jumps unconditionally.
type GotoStatement struct {
	Label *LabelSymbol
}

// ConditionalGotoStatement jumps when Condition equals JumpIfTrue.
type ConditionalGotoStatement struct {
	Label      *LabelSymbol
	Condition  Expression
	JumpIfTrue bool
}

// ReturnStatement leaves the function. Value is nil for a bare return.
type ReturnStatement struct {
	Value Expression
}

// VariableDeclaration introduces a variable with an initializer.
type VariableDeclaration struct {
	Variable    *VariableSymbol
	Initializer Expression
}

// ExpressionStatement evaluates an expression for its effect.
type ExpressionStatement struct {
	Expression Expression
}

func (*BlockStatement) Kind() Kind           { return KindBlock }
func (*LabelStatement) Kind() Kind           { return KindLabel }
func (*GotoStatement) Kind() Kind            { return KindGoto }
func (*ConditionalGotoStatement) Kind() Kind { return KindConditionalGoto }
func (*ReturnStatement) Kind() Kind          { return KindReturn }
func (*VariableDeclaration) Kind() Kind      { return KindVariableDeclaration }
func (*ExpressionStatement) Kind() Kind      { return KindExpressionStatement }

func (*BlockStatement) statementNode()           {}
func (*LabelStatement) statementNode()           {}
func (*GotoStatement) statementNode()            {}
func (*ConditionalGotoStatement) statementNode() {}
func (*ReturnStatement) statementNode()          {}
func (*VariableDeclaration) statementNode()      {}
func (*ExpressionStatement) statementNode()      {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// UnaryExpression applies a prefix operator.
type UnaryExpression struct {
	Op      UnaryOperatorKind
	Operand Expression
	Result  *TypeSymbol
}

// BinaryExpression applies an infix operator.
type BinaryExpression struct {
	Left   Expression
	Op     BinaryOperatorKind
	Right  Expression
	Result *TypeSymbol
}

// AssignmentExpression stores Value into Variable and yields it.
type AssignmentExpression struct {
	Variable *VariableSymbol
	Value    Expression
}

// LiteralExpression is a constant. Value holds an int32, bool or string.
type LiteralExpression struct {
	Value any
}

// VariableExpression reads a variable.
type VariableExpression struct {
	Variable *VariableSymbol
}

// CallExpression invokes a function.
type CallExpression struct {
	Function  *FunctionSymbol
	Arguments []Expression
}

// ConversionExpression is an implicit coercion inserted by the binder.
type ConversionExpression struct {
	Target     *TypeSymbol
	Expression Expression
}

func (*UnaryExpression) Kind() Kind      { return KindUnary }
func (*BinaryExpression) Kind() Kind     { return KindBinary }
func (*AssignmentExpression) Kind() Kind { return KindAssignment }
func (*LiteralExpression) Kind() Kind    { return KindLiteral }
func (*VariableExpression) Kind() Kind   { return KindVariable }
func (*CallExpression) Kind() Kind       { return KindCall }
func (*ConversionExpression) Kind() Kind { return KindConversion }

func (*UnaryExpression) expressionNode()      {}
func (*BinaryExpression) expressionNode()     {}
func (*AssignmentExpression) expressionNode() {}
func (*LiteralExpression) expressionNode()    {}
func (*VariableExpression) expressionNode()   {}
func (*CallExpression) expressionNode()       {}
func (*ConversionExpression) expressionNode() {}

func (e *UnaryExpression) Type() *TypeSymbol {
	if e.Result != nil {
		return e.Result
	}
	return e.Operand.Type()
}

func (e *BinaryExpression) Type() *TypeSymbol {
	if e.Result != nil {
		return e.Result
	}
	if e.Op.IsComparison() {
		return Bool
	}
	return e.Left.Type()
}

func (e *AssignmentExpression) Type() *TypeSymbol { return e.Value.Type() }
func (e *VariableExpression) Type() *TypeSymbol   { return e.Variable.Type }
func (e *ConversionExpression) Type() *TypeSymbol { return e.Target }

func (e *CallExpression) Type() *TypeSymbol {
	if e.Function.ReturnType == nil {
		return Void
	}
	return e.Function.ReturnType
}

func (e *LiteralExpression) Type() *TypeSymbol {
	switch e.Value.(type) {
	case int32, int:
		return Int
	case bool:
		return Bool
	case string:
		return String
	}
	return nil
}

// IntValue returns the literal as an int32.
func (e *LiteralExpression) IntValue() (int32, bool) {
	switch v := e.Value.(type) {
	case int32:
		return v, true
	case int:
		return int32(v), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Constructors used by lowering passes and tests
// ---------------------------------------------------------------------------

// Block builds a block statement.
func Block(stmts ...Statement) *BlockStatement {
	return &BlockStatement{Statements: stmts}
}

// Lit builds a literal. Untyped ints become int32.
func Lit(v any) *LiteralExpression {
	if i, ok := v.(int); ok {
		v = int32(i)
	}
	return &LiteralExpression{Value: v}
}

// Var builds a read of a named int variable.
func Var(name string) *VariableExpression {
	return &VariableExpression{Variable: &VariableSymbol{Name: name, Type: Int}}
}

// Binary builds a binary expression.
func Binary(left Expression, op BinaryOperatorKind, right Expression) *BinaryExpression {
	return &BinaryExpression{Left: left, Op: op, Right: right}
}

// Call builds a call expression.
func Call(fn *FunctionSymbol, args ...Expression) *CallExpression {
	return &CallExpression{Function: fn, Arguments: args}
}

// Func builds a function symbol with int parameters.
func Func(name string, params ...string) *FunctionSymbol {
	fn := &FunctionSymbol{Name: name, ReturnType: Void}
	for _, p := range params {
		fn.Parameters = append(fn.Parameters, &ParameterSymbol{Name: p, Type: Int})
	}
	return fn
}

// String renders a symbol for diagnostics.
func (f *FunctionSymbol) String() string {
	return fmt.Sprintf("function %s/%d", f.Name, len(f.Parameters))
}
