// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package celeval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OmniMCP-AI/cfengine"
	"github.com/xuri/efp"
)

// program is a formula rewritten into CEL. Every cell reference of the
// source is replaced by a positional variable, so all cells of a rule range
// share one source and one compiled program.
type program struct {
	source string
	refs   []cfengine.Address
}

// refVar names the variable bound to the i-th reference.
func refVar(i int) string {
	return "ref" + strconv.Itoa(i)
}

// frame tracks one open function call or parenthesis.
type frame struct {
	name string
	args int
}

// translate rewrites an Excel-style comparison formula into CEL. Numbers
// become doubles, "=" and "<>" become "==" and "!=", "&" concatenates and
// AND, OR, NOT and IF map onto the CEL operators.
func translate(expression string) (*program, error) {
	ps := efp.ExcelParser()
	tokens := ps.Parse(strings.TrimPrefix(strings.TrimSpace(expression), "="))
	if len(tokens) == 0 {
		return nil, ErrEmptyExpression
	}
	var (
		sb    strings.Builder
		p     program
		stack []frame
	)
	for _, token := range tokens {
		switch token.TType {
		case efp.TokenTypeOperand:
			if err := p.operand(&sb, token); err != nil {
				return nil, err
			}
		case efp.TokenTypeOperatorInfix:
			op, err := infix(token.TValue)
			if err != nil {
				return nil, err
			}
			sb.WriteString(" " + op + " ")
		case efp.TokenTypeOperatorPrefix:
			sb.WriteString(token.TValue)
		case efp.TokenTypeOperatorPostfix:
			if token.TValue != "%" {
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, token.TValue)
			}
			sb.WriteString(" / 100.0")
		case efp.TokenTypeSubexpression:
			if token.TSubType == efp.TokenSubTypeStart {
				sb.WriteString("(")
			} else {
				sb.WriteString(")")
			}
		case efp.TokenTypeFunction:
			if token.TSubType == efp.TokenSubTypeStart {
				name := strings.ToUpper(token.TValue)
				switch name {
				case "AND", "OR", "IF":
					sb.WriteString("(")
				case "NOT":
					sb.WriteString("!(")
				default:
					return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, token.TValue)
				}
				stack = append(stack, frame{name: name})
				continue
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced function call", ErrSyntax)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.name == "IF" && top.args == 1 {
				// IF without an else branch yields FALSE
				sb.WriteString(" : false")
			}
			sb.WriteString(")")
		case efp.TokenTypeArgument:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: argument outside a function", ErrSyntax)
			}
			top := &stack[len(stack)-1]
			top.args++
			switch top.name {
			case "AND":
				sb.WriteString(" && ")
			case "OR":
				sb.WriteString(" || ")
			case "IF":
				if top.args == 1 {
					sb.WriteString(" ? ")
				} else if top.args == 2 {
					sb.WriteString(" : ")
				} else {
					return nil, fmt.Errorf("%w: IF takes at most three arguments", ErrSyntax)
				}
			default:
				return nil, fmt.Errorf("%w: %s takes one argument", ErrSyntax, top.name)
			}
		case efp.TokenTypeWhitespace:
			sb.WriteString(" ")
		default:
			return nil, fmt.Errorf("%w: unexpected token %q", ErrSyntax, token.TValue)
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unbalanced function call", ErrSyntax)
	}
	p.source = sb.String()
	return &p, nil
}

func (p *program) operand(sb *strings.Builder, token efp.Token) error {
	switch token.TSubType {
	case efp.TokenSubTypeNumber:
		f, err := strconv.ParseFloat(token.TValue, 64)
		if err != nil {
			return fmt.Errorf("%w: bad number %q", ErrSyntax, token.TValue)
		}
		sb.WriteString(doubleLiteral(f))
	case efp.TokenSubTypeText:
		sb.WriteString(strconv.Quote(token.TValue))
	case efp.TokenSubTypeLogical:
		sb.WriteString(strings.ToLower(token.TValue))
	case efp.TokenSubTypeRange:
		if strings.Contains(token.TValue, "!") {
			return fmt.Errorf("%w: %s", ErrUnsupportedReference, token.TValue)
		}
		if isVariable(token.TValue) {
			sb.WriteString(token.TValue)
			return nil
		}
		r, err := cfengine.ParseRange(token.TValue)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedReference, token.TValue)
		}
		if r.Area() != 1 {
			return fmt.Errorf("%w: %s spans more than one cell", ErrUnsupportedReference, token.TValue)
		}
		sb.WriteString(refVar(len(p.refs)))
		p.refs = append(p.refs, r.Start)
	default:
		return fmt.Errorf("%w: %q", ErrSyntax, token.TValue)
	}
	return nil
}

func infix(op string) (string, error) {
	switch op {
	case "=":
		return "==", nil
	case "<>":
		return "!=", nil
	case "&":
		return "+", nil
	case "+", "-", "*", "/", "<", ">", "<=", ">=":
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
}

// doubleLiteral renders f so CEL parses it as a double.
func doubleLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func isVariable(name string) bool {
	switch name {
	case varValue, varRow, varCol:
		return true
	}
	return false
}
