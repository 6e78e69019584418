package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrInvalidCharacter = errors.New("only numbers and arithmetic operators are allowed")
	ErrMalformedExpr    = errors.New("malformed expression")
	ErrNotFinite        = errors.New("expression did not produce a valid number")
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	op   byte
	num  float64
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			toks = append(toks, token{kind: tokOp, op: c})
			i++
		case (c >= '0' && c <= '9') || c == '.':
			j := i
			dots := 0
			for j < len(s) && ((s[j] >= '0' && s[j] <= '9') || s[j] == '.') {
				if s[j] == '.' {
					dots++
				}
				j++
			}
			lit := s[i:j]
			if dots > 1 || lit == "." {
				return nil, fmt.Errorf("%w: bad number %q", ErrMalformedExpr, lit)
			}
			v, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrMalformedExpr, lit)
			}
			toks = append(toks, token{kind: tokNumber, num: v})
			i = j
		default:
			return nil, ErrInvalidCharacter
		}
	}
	return toks, nil
}

// parser is a recursive-descent evaluator:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "%") unary }
//	unary  = ("+" | "-") unary | primary
//	primary = number | "(" expr ")"
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '+' && t.op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if t.op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.op != '*' && t.op != '/' && t.op != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch t.op {
		case '*':
			left *= right
		case '/':
			left /= right
		case '%':
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) unary() (float64, error) {
	t, ok := p.peek()
	if ok && t.kind == tokOp && (t.op == '+' || t.op == '-') {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if t.op == '-' {
			return -v, nil
		}
		return v, nil
	}
	return p.primary()
}

func (p *parser) primary() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("%w: unexpected end", ErrMalformedExpr)
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return t.num, nil
	case tokLParen:
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return 0, fmt.Errorf("%w: missing )", ErrMalformedExpr)
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unexpected token at %d", ErrMalformedExpr, p.pos)
	}
}

// Evaluate computes an arithmetic expression over numbers, + - * / % and parentheses.
// Nothing else is accepted, and non-finite results are errors.
func Evaluate(expression string) (float64, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(toks) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrMalformedExpr)
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(toks) {
		return 0, fmt.Errorf("%w: trailing input", ErrMalformedExpr)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}
