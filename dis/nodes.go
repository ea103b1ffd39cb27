package dis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/bcc/address"
	"github.com/chazu/bcc/opcode"
)

// ---------------------------------------------------------------------------
// Decoded tree
// ---------------------------------------------------------------------------

// Names maps an address (hex) to the symbol it was assigned to. A nil Names
// renders raw slot numbers.
type Names map[string]string

// NamesFromEntries builds Names from allocator entries.
func NamesFromEntries(entries []address.Entry) Names {
	names := make(Names, len(entries))
	for _, e := range entries {
		names[e.Address.String()] = e.Name
	}
	return names
}

// Name returns the symbol for addr, or @slot when unknown.
func (n Names) Name(addr address.Address) string {
	if name, ok := n[addr.String()]; ok {
		return name
	}
	return fmt.Sprintf("@%d", addr.Value())
}

// Function is one decoded object.
type Function struct {
	Name   address.Address
	Params []address.Address
	Body   []Stmt
}

// Image is a decoded executable image.
type Image struct {
	Version   string
	Entry     address.Address
	Functions []*Function
}

// Function returns the decoded function whose name address equals addr.
func (img *Image) Function(addr address.Address) (*Function, bool) {
	for _, fn := range img.Functions {
		if fn.Name.Equal(addr) {
			return fn, true
		}
	}
	return nil, false
}

// Stmt is a decoded statement.
type Stmt interface {
	Format(names Names) string
}

// Expr is a decoded expression.
type Expr interface {
	Format(names Names) string
}

type (
	Label struct {
		Target address.Address
	}
	Goto struct {
		Target address.Address
	}
	ConditionalGoto struct {
		JumpIfTrue bool
		Target     address.Address
		Condition  Expr
	}
	Return struct {
		Value Expr
	}
	Declaration struct {
		Const bool
		Name  address.Address
		Init  Expr
	}
	ExpressionStmt struct {
		X Expr
	}
)

type (
	Unary struct {
		Op opcode.Tag
		X  Expr
	}
	Binary struct {
		Left  Expr
		Op    opcode.Tag
		Right Expr
	}
	Assign struct {
		Target address.Address
		Value  Expr
	}
	IntLit struct {
		Value byte
	}
	BoolLit struct {
		Value bool
	}
	StringLit struct {
		Value string
	}
	VarRef struct {
		Addr address.Address
	}
	Call struct {
		Syscall bool
		Callee  address.Address
		Args    []Expr
	}
)

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func (s *Label) Format(n Names) string { return "LABEL " + n.Name(s.Target) }
func (s *Goto) Format(n Names) string  { return "GOTO " + n.Name(s.Target) }

func (s *ConditionalGoto) Format(n Names) string {
	sense := "unless"
	if s.JumpIfTrue {
		sense = "if"
	}
	return fmt.Sprintf("CONDITIONAL_GOTO %s %s %s", n.Name(s.Target), sense, s.Condition.Format(n))
}

func (s *Return) Format(n Names) string {
	if s.Value == nil {
		return "RETURN"
	}
	return "RETURN " + s.Value.Format(n)
}

func (s *Declaration) Format(n Names) string {
	kw := "LET"
	if s.Const {
		kw = "CONST"
	}
	return fmt.Sprintf("%s %s = %s", kw, n.Name(s.Name), s.Init.Format(n))
}

func (s *ExpressionStmt) Format(n Names) string { return "EXPRESSION " + s.X.Format(n) }

func (e *Unary) Format(n Names) string { return fmt.Sprintf("(%s %s)", e.Op, e.X.Format(n)) }

func (e *Binary) Format(n Names) string {
	return fmt.Sprintf("(%s %s %s)", e.Left.Format(n), e.Op, e.Right.Format(n))
}

func (e *Assign) Format(n Names) string {
	return fmt.Sprintf("(%s = %s)", n.Name(e.Target), e.Value.Format(n))
}

func (e *IntLit) Format(Names) string    { return strconv.Itoa(int(e.Value)) }
func (e *BoolLit) Format(Names) string   { return strconv.FormatBool(e.Value) }
func (e *StringLit) Format(Names) string { return strconv.Quote(e.Value) }
func (e *VarRef) Format(n Names) string  { return n.Name(e.Addr) }

func (e *Call) Format(n Names) string {
	callee := opcode.Syscall.String()
	if !e.Syscall {
		callee = n.Name(e.Callee)
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Format(n)
	}
	return fmt.Sprintf("%s(%s)", callee, strings.Join(args, ", "))
}

// Signature renders the function header.
func (fn *Function) Signature(n Names) string {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = n.Name(p)
	}
	return fmt.Sprintf("func %s(%s)", n.Name(fn.Name), strings.Join(params, ", "))
}

// Lines renders the body, one statement per line.
func (fn *Function) Lines(n Names) []string {
	lines := make([]string, len(fn.Body))
	for i, s := range fn.Body {
		lines[i] = s.Format(n)
	}
	return lines
}
