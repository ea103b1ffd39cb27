package encoder

import (
	"fmt"

	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/opcode"
)

// ---------------------------------------------------------------------------
// Statement encoding
// ---------------------------------------------------------------------------

// writeBlock emits each statement followed by CloseCommand. A nested block
// flattens into its parent, leaving one extra CloseCommand behind.
func (e *Encoder) writeBlock(block *bound.BlockStatement) error {
	for _, stmt := range block.Statements {
		if err := e.writeStatement(stmt); err != nil {
			return err
		}
		e.tag(opcode.CloseCommand)
	}
	return nil
}

func (e *Encoder) writeStatement(stmt bound.Statement) error {
	switch s := stmt.(type) {
	case *bound.BlockStatement:
		return e.writeBlock(s)
	case *bound.LabelStatement:
		e.tag(opcode.Label)
		_, err := e.address(s.Label.Name)
		return err
	case *bound.GotoStatement:
		e.tag(opcode.Goto)
		_, err := e.address(s.Label.Name)
		return err
	case *bound.ConditionalGotoStatement:
		return e.writeConditionalGoto(s)
	case *bound.ReturnStatement:
		e.tag(opcode.Return)
		if s.Value == nil {
			return nil
		}
		return e.writeExpression(s.Value)
	case *bound.VariableDeclaration:
		return e.writeVariableDeclaration(s)
	case *bound.ExpressionStatement:
		e.tag(opcode.Expression)
		return e.writeExpression(s.Expression)
	}
	return fmt.Errorf("%w: statement %T", ErrUnsupportedNode, stmt)
}

// writeConditionalGoto emits the tag, the branch sense, the target label
// and then the condition.
func (e *Encoder) writeConditionalGoto(s *bound.ConditionalGotoStatement) error {
	e.tag(opcode.ConditionalGoto)
	e.flag(s.JumpIfTrue)
	if _, err := e.address(s.Label.Name); err != nil {
		return err
	}
	return e.writeExpression(s.Condition)
}

func (e *Encoder) writeVariableDeclaration(s *bound.VariableDeclaration) error {
	if s.Variable.ReadOnly {
		e.tag(opcode.Const)
	} else {
		e.tag(opcode.Let)
	}
	if _, err := e.address(s.Variable.Name); err != nil {
		return err
	}
	return e.writeExpression(s.Initializer)
}
