/*
Package calc evaluates arithmetic expressions over numbers, parentheses and
the four basic operators. Anything else is rejected; input is never executed.

	expr   := term   (('+' | '-') term)*
	term   := factor (('*' | '/') factor)*
	factor := ('+' | '-') factor | number | '(' expr ')'
*/
package calc

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrEmptyExpression = errors.New("empty expression")
	ErrDivisionByZero  = errors.New("division by zero")
)

// maxDepth bounds parenthesis and unary-sign nesting.
const maxDepth = 64

/*
SyntaxError reports the offending position in the expression.
*/
type SyntaxError struct {
	Pos int
	Msg string
}

func (err *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", err.Pos, err.Msg)
}

type parser struct {
	input string
	pos   int
	depth int
}

/*
Evaluate parses and evaluates expr.
*/
func Evaluate(expr string) (float64, error) {
	p := &parser{input: expr}
	p.skipSpace()

	if p.pos == len(p.input) {
		return 0, ErrEmptyExpression
	}

	value, err := p.expr()

	if err != nil {
		return 0, err
	}

	p.skipSpace()

	if p.pos < len(p.input) {
		return 0, p.errorf("unexpected %q", p.input[p.pos])
	}

	return value, nil
}

/*
Format renders a result without a trailing ".0" for whole numbers.
*/
func Format(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()

	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()

		if p.pos >= len(p.input) {
			return left, nil
		}

		op := p.input[p.pos]

		if op != '+' && op != '-' {
			return left, nil
		}

		p.pos++
		right, err := p.term()

		if err != nil {
			return 0, err
		}

		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.factor()

	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()

		if p.pos >= len(p.input) {
			return left, nil
		}

		op := p.input[p.pos]

		if op != '*' && op != '/' {
			return left, nil
		}

		p.pos++
		right, err := p.factor()

		if err != nil {
			return 0, err
		}

		if op == '*' {
			left *= right
			continue
		}

		if right == 0 {
			return 0, ErrDivisionByZero
		}

		left /= right
	}
}

func (p *parser) factor() (float64, error) {
	p.skipSpace()

	if p.pos >= len(p.input) {
		return 0, p.errorf("unexpected end of expression")
	}

	p.depth++
	defer func() { p.depth-- }()

	if p.depth > maxDepth {
		return 0, p.errorf("expression nested too deeply")
	}

	switch ch := p.input[p.pos]; {
	case ch == '+' || ch == '-':
		p.pos++
		value, err := p.factor()

		if err != nil {
			return 0, err
		}

		if ch == '-' {
			value = -value
		}

		return value, nil
	case ch == '(':
		p.pos++
		value, err := p.expr()

		if err != nil {
			return 0, err
		}

		p.skipSpace()

		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, p.errorf("missing closing parenthesis")
		}

		p.pos++
		return value, nil
	case isDigit(ch) || ch == '.':
		return p.number()
	default:
		return 0, p.errorf("unexpected %q", ch)
	}
}

func (p *parser) number() (float64, error) {
	start := p.pos
	dots := 0

	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		if p.input[p.pos] == '.' {
			dots++
		}

		p.pos++
	}

	literal := p.input[start:p.pos]

	if dots > 1 || literal == "." {
		return 0, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", literal)}
	}

	value, err := strconv.ParseFloat(literal, 64)

	if err != nil {
		return 0, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", literal)}
	}

	return value, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
