package bound

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Interchange form
// ---------------------------------------------------------------------------

// The front end hands programs to bcc as CBOR (.ilb files). Conformance
// fixtures use the same structures in YAML.

// ErrInvalidNode is returned when an interchange node cannot be bound.
var ErrInvalidNode = errors.New("invalid bound node")

// WireProgram is the serialized form of a Program.
type WireProgram struct {
	Functions []WireFunction `cbor:"functions" yaml:"functions"`
	Main      string         `cbor:"main,omitempty" yaml:"main,omitempty"`
	Script    string         `cbor:"script,omitempty" yaml:"script,omitempty"`
}

// WireFunction is a serialized function symbol with its body.
type WireFunction struct {
	Name    string      `cbor:"name" yaml:"name"`
	Params  []WireParam `cbor:"params,omitempty" yaml:"params,omitempty"`
	Returns string      `cbor:"returns,omitempty" yaml:"returns,omitempty"`
	Source  string      `cbor:"source,omitempty" yaml:"source,omitempty"`
	Body    []WireNode  `cbor:"body,omitempty" yaml:"body,omitempty"`
}

// WireParam is a serialized parameter.
type WireParam struct {
	Name string `cbor:"name" yaml:"name"`
	Type string `cbor:"type,omitempty" yaml:"type,omitempty"`
}

// WireNode is a serialized statement or expression. Children holds block
// statements, operands, initializers and call arguments in source order.
type WireNode struct {
	Kind       Kind       `cbor:"kind" yaml:"kind"`
	Name       string     `cbor:"name,omitempty" yaml:"name,omitempty"`
	Type       string     `cbor:"type,omitempty" yaml:"type,omitempty"`
	Op         string     `cbor:"op,omitempty" yaml:"op,omitempty"`
	ReadOnly   bool       `cbor:"readonly,omitempty" yaml:"readonly,omitempty"`
	JumpIfTrue bool       `cbor:"jump_if_true,omitempty" yaml:"jump_if_true,omitempty"`
	Int        *int64     `cbor:"int,omitempty" yaml:"int,omitempty"`
	Bool       *bool      `cbor:"bool,omitempty" yaml:"bool,omitempty"`
	Str        *string    `cbor:"str,omitempty" yaml:"str,omitempty"`
	Children   []WireNode `cbor:"children,omitempty" yaml:"children,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bound: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a program to CBOR.
func MarshalProgram(p *Program) ([]byte, error) {
	w, err := ToWire(p)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalProgram deserializes a CBOR program.
func UnmarshalProgram(data []byte) (*Program, error) {
	var w WireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bound: unmarshal program: %w", err)
	}
	return FromWire(&w)
}

// LoadProgram reads a CBOR program file.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p, err := UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Wire -> tree
// ---------------------------------------------------------------------------

type binder struct {
	functions map[string]*FunctionSymbol
}

// FromWire binds an interchange program into a tree.
func FromWire(w *WireProgram) (*Program, error) {
	b := &binder{functions: make(map[string]*FunctionSymbol)}
	p := NewProgram()

	// Declare all functions first so calls can refer forward.
	for _, wf := range w.Functions {
		if _, dup := b.functions[wf.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate function %q", ErrInvalidNode, wf.Name)
		}
		ret, err := b.typeOf(wf.Returns)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", wf.Name, err)
		}
		fn := &FunctionSymbol{Name: wf.Name, ReturnType: ret, Source: wf.Source}
		for _, wp := range wf.Params {
			t, err := b.typeOf(wp.Type)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", wf.Name, err)
			}
			fn.Parameters = append(fn.Parameters, &ParameterSymbol{Name: wp.Name, Type: t})
		}
		b.functions[wf.Name] = fn
	}

	for _, wf := range w.Functions {
		fn := b.functions[wf.Name]
		body := &BlockStatement{}
		for i := range wf.Body {
			stmt, err := b.statement(&wf.Body[i])
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", wf.Name, err)
			}
			body.Statements = append(body.Statements, stmt)
		}
		p.Add(fn, body)
	}

	if w.Main != "" {
		fn, ok := b.functions[w.Main]
		if !ok {
			return nil, fmt.Errorf("%w: main function %q not declared", ErrInvalidNode, w.Main)
		}
		p.Main = fn
	}
	if w.Script != "" {
		fn, ok := b.functions[w.Script]
		if !ok {
			return nil, fmt.Errorf("%w: script function %q not declared", ErrInvalidNode, w.Script)
		}
		p.Script = fn
	}
	return p, nil
}

func (b *binder) typeOf(name string) (*TypeSymbol, error) {
	t, ok := LookupType(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNode, name)
	}
	return t, nil
}

func (b *binder) children(n *WireNode, want int) error {
	if len(n.Children) != want {
		return fmt.Errorf("%w: %s node has %d children, want %d", ErrInvalidNode, n.Kind, len(n.Children), want)
	}
	return nil
}

func (b *binder) statement(n *WireNode) (Statement, error) {
	switch n.Kind {
	case KindBlock:
		block := &BlockStatement{}
		for i := range n.Children {
			stmt, err := b.statement(&n.Children[i])
			if err != nil {
				return nil, err
			}
			block.Statements = append(block.Statements, stmt)
		}
		return block, nil
	case KindLabel:
		return &LabelStatement{Label: &LabelSymbol{Name: n.Name}}, nil
	case KindGoto:
		return &GotoStatement{Label: &LabelSymbol{Name: n.Name}}, nil
	case KindConditionalGoto:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		cond, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ConditionalGotoStatement{Label: &LabelSymbol{Name: n.Name}, Condition: cond, JumpIfTrue: n.JumpIfTrue}, nil
	case KindReturn:
		if len(n.Children) == 0 {
			return &ReturnStatement{}, nil
		}
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		value, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ReturnStatement{Value: value}, nil
	case KindVariableDeclaration:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		initializer, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		t := initializer.Type()
		if n.Type != "" {
			if t, err = b.typeOf(n.Type); err != nil {
				return nil, err
			}
		}
		v := &VariableSymbol{Name: n.Name, Type: t, ReadOnly: n.ReadOnly}
		return &VariableDeclaration{Variable: v, Initializer: initializer}, nil
	case KindExpressionStatement:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		expr, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{Expression: expr}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a statement", ErrInvalidNode, n.Kind)
}

func (b *binder) expression(n *WireNode) (Expression, error) {
	switch n.Kind {
	case KindUnary:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		op, ok := ParseUnaryOperator(n.Op)
		if !ok {
			return nil, fmt.Errorf("%w: unknown unary operator %q", ErrInvalidNode, n.Op)
		}
		operand, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Op: op, Operand: operand}, nil
	case KindBinary:
		if err := b.children(n, 2); err != nil {
			return nil, err
		}
		op, ok := ParseBinaryOperator(n.Op)
		if !ok {
			return nil, fmt.Errorf("%w: unknown binary operator %q", ErrInvalidNode, n.Op)
		}
		left, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := b.expression(&n.Children[1])
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Op: op, Right: right}, nil
	case KindAssignment:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		value, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &AssignmentExpression{Variable: &VariableSymbol{Name: n.Name, Type: value.Type()}, Value: value}, nil
	case KindLiteral:
		switch {
		case n.Int != nil:
			if *n.Int < math.MinInt32 || *n.Int > math.MaxInt32 {
				return nil, fmt.Errorf("%w: int literal %d out of range", ErrInvalidNode, *n.Int)
			}
			return &LiteralExpression{Value: int32(*n.Int)}, nil
		case n.Bool != nil:
			return &LiteralExpression{Value: *n.Bool}, nil
		case n.Str != nil:
			return &LiteralExpression{Value: *n.Str}, nil
		}
		return nil, fmt.Errorf("%w: literal without a value", ErrInvalidNode)
	case KindVariable:
		t, err := b.typeOf(n.Type)
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: &VariableSymbol{Name: n.Name, Type: t}}, nil
	case KindCall:
		fn, ok := b.functions[n.Name]
		if !ok {
			if n.Name != SyscallName {
				return nil, fmt.Errorf("%w: call to undeclared function %q", ErrInvalidNode, n.Name)
			}
			fn = &FunctionSymbol{Name: SyscallName, ReturnType: Void}
		}
		call := &CallExpression{Function: fn}
		for i := range n.Children {
			arg, err := b.expression(&n.Children[i])
			if err != nil {
				return nil, err
			}
			call.Arguments = append(call.Arguments, arg)
		}
		return call, nil
	case KindConversion:
		if err := b.children(n, 1); err != nil {
			return nil, err
		}
		t, err := b.typeOf(n.Type)
		if err != nil {
			return nil, err
		}
		inner, err := b.expression(&n.Children[0])
		if err != nil {
			return nil, err
		}
		return &ConversionExpression{Target: t, Expression: inner}, nil
	}
	return nil, fmt.Errorf("%w: %q is not an expression", ErrInvalidNode, n.Kind)
}

// ---------------------------------------------------------------------------
// Tree -> wire
// ---------------------------------------------------------------------------

// ToWire converts a program tree to its interchange form.
func ToWire(p *Program) (*WireProgram, error) {
	w := &WireProgram{}
	for _, fn := range p.Functions {
		wf := WireFunction{Name: fn.Name, Source: fn.Source}
		if fn.ReturnType != nil {
			wf.Returns = fn.ReturnType.Name
		}
		for _, param := range fn.Parameters {
			wp := WireParam{Name: param.Name}
			if param.Type != nil {
				wp.Type = param.Type.Name
			}
			wf.Params = append(wf.Params, wp)
		}
		if body, ok := p.Body(fn); ok && body != nil {
			for _, stmt := range body.Statements {
				n, err := wireNode(stmt)
				if err != nil {
					return nil, fmt.Errorf("function %s: %w", fn.Name, err)
				}
				wf.Body = append(wf.Body, n)
			}
		}
		w.Functions = append(w.Functions, wf)
	}
	if p.Main != nil {
		w.Main = p.Main.Name
	}
	if p.Script != nil {
		w.Script = p.Script.Name
	}
	return w, nil
}

func typeName(t *TypeSymbol) string {
	if t == nil {
		return ""
	}
	return t.Name
}

func wireNodes(nodes ...Node) ([]WireNode, error) {
	out := make([]WireNode, 0, len(nodes))
	for _, n := range nodes {
		w, err := wireNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func wireNode(node Node) (WireNode, error) {
	w := WireNode{Kind: node.Kind()}
	var err error
	switch n := node.(type) {
	case *BlockStatement:
		for _, s := range n.Statements {
			c, err := wireNode(s)
			if err != nil {
				return w, err
			}
			w.Children = append(w.Children, c)
		}
	case *LabelStatement:
		w.Name = n.Label.Name
	case *GotoStatement:
		w.Name = n.Label.Name
	case *ConditionalGotoStatement:
		w.Name = n.Label.Name
		w.JumpIfTrue = n.JumpIfTrue
		w.Children, err = wireNodes(n.Condition)
	case *ReturnStatement:
		if n.Value != nil {
			w.Children, err = wireNodes(n.Value)
		}
	case *VariableDeclaration:
		w.Name = n.Variable.Name
		w.Type = typeName(n.Variable.Type)
		w.ReadOnly = n.Variable.ReadOnly
		w.Children, err = wireNodes(n.Initializer)
	case *ExpressionStatement:
		w.Children, err = wireNodes(n.Expression)
	case *UnaryExpression:
		w.Op = n.Op.String()
		w.Children, err = wireNodes(n.Operand)
	case *BinaryExpression:
		w.Op = n.Op.String()
		w.Children, err = wireNodes(n.Left, n.Right)
	case *AssignmentExpression:
		w.Name = n.Variable.Name
		w.Children, err = wireNodes(n.Value)
	case *LiteralExpression:
		switch v := n.Value.(type) {
		case bool:
			w.Bool = &v
		case string:
			w.Str = &v
		default:
			i, ok := n.IntValue()
			if !ok {
				return w, fmt.Errorf("%w: literal of type %T", ErrInvalidNode, n.Value)
			}
			i64 := int64(i)
			w.Int = &i64
		}
	case *VariableExpression:
		w.Name = n.Variable.Name
		w.Type = typeName(n.Variable.Type)
	case *CallExpression:
		w.Name = n.Function.Name
		for _, arg := range n.Arguments {
			c, err := wireNode(arg)
			if err != nil {
				return w, err
			}
			w.Children = append(w.Children, c)
		}
	case *ConversionExpression:
		w.Type = typeName(n.Target)
		w.Children, err = wireNodes(n.Expression)
	default:
		return w, fmt.Errorf("%w: %T", ErrInvalidNode, node)
	}
	return w, err
}
