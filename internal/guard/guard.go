// Package guard implements the boolean guard expressions that registry
// entries may attach to a handler descriptor. Expressions are parsed once
// when the registry snapshot is built and evaluated against the run scope
// when an event loads its handlers.
//
// Grammar (case-insensitive keywords):
//
//	expr       = and_expr ( "OR" and_expr )*
//	and_expr   = not_expr ( "AND" not_expr )*
//	not_expr   = [ "NOT" ] comparison | "(" expr ")"
//	comparison = operand ( "==" | "!=" | ">" | ">=" | "<" | "<=" | "contains" ) operand
//	operand    = field_path | string | number | bool
//
// Field paths are dot-separated and resolve into nested maps of the scope,
// e.g. `site.env == "production" AND plan != "free"`.
package guard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed guard expression.
type Expr struct {
	root node
	src  string
}

// String returns the original expression text.
func (e *Expr) String() string { return e.src }

type node interface {
	eval(scope map[string]any) (bool, error)
}

type logicNode struct {
	or          bool // false = AND
	left, right node
}

type notNode struct {
	inner node
}

type cmpNode struct {
	op          string
	left, right operand
}

type operand struct {
	path    []string // field reference when non-nil
	literal any      // otherwise a constant
}

// -----------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------

// Parse compiles an expression string. Parsing happens at snapshot build
// time only; evaluation never re-parses.
func Parse(src string) (*Expr, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != kindEOF {
		return nil, fmt.Errorf("guard: unexpected token %q after expression", p.peek().text)
	}
	return &Expr{root: root, src: src}, nil
}

type tokenKind int

const (
	kindWord tokenKind = iota
	kindOp
	kindString
	kindNumber
	kindBool
	kindLParen
	kindRParen
	kindEOF
)

type tok struct {
	kind tokenKind
	text string
}

func scan(src string) ([]tok, error) {
	var out []tok
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			out = append(out, tok{kindLParen, "("})
			i++
		case ch == ')':
			out = append(out, tok{kindRParen, ")"})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, tok{kindOp, src[i : i+2]})
				i += 2
			} else if ch == '<' || ch == '>' {
				out = append(out, tok{kindOp, string(ch)})
				i++
			} else {
				return nil, fmt.Errorf("guard: unexpected %q at position %d", ch, i)
			}
		case ch == '"' || ch == '\'':
			quote := ch
			j := i + 1
			for j < len(src) && src[j] != quote {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("guard: unterminated string at position %d", i)
			}
			inner := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(src[i+1 : j])
			out = append(out, tok{kindString, inner})
			i = j + 1
		case unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, tok{kindNumber, src[i:j]})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '.') {
				j++
			}
			word := src[i:j]
			if lw := strings.ToLower(word); lw == "true" || lw == "false" {
				out = append(out, tok{kindBool, lw})
			} else {
				out = append(out, tok{kindWord, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("guard: unexpected character %q at position %d", ch, i)
		}
	}
	return append(out, tok{kindEOF, ""}), nil
}

type parser struct {
	toks []tok
	pos  int
}

func (p *parser) peek() tok { return p.toks[p.pos] }

func (p *parser) next() tok {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == kindWord && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &logicNode{or: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = &logicNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) not() (node, error) {
	if p.keyword("not") {
		inner, err := p.not()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	if p.peek().kind == kindLParen {
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != kindRParen {
			return nil, fmt.Errorf("guard: expected %q, got %q", ")", p.peek().text)
		}
		p.next()
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	var op string
	switch {
	case t.kind == kindOp:
		op = t.text
		p.next()
	case t.kind == kindWord && strings.EqualFold(t.text, "contains"):
		op = "contains"
		p.next()
	default:
		return nil, fmt.Errorf("guard: expected comparison operator, got %q", t.text)
	}
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return &cmpNode{op: op, left: left, right: right}, nil
}

func (p *parser) operand() (operand, error) {
	t := p.peek()
	switch t.kind {
	case kindString:
		p.next()
		return operand{literal: t.text}, nil
	case kindNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, fmt.Errorf("guard: invalid number %q", t.text)
		}
		return operand{literal: f}, nil
	case kindBool:
		p.next()
		return operand{literal: t.text == "true"}, nil
	case kindWord:
		p.next()
		return operand{path: strings.Split(t.text, ".")}, nil
	default:
		return operand{}, fmt.Errorf("guard: expected operand, got %q", t.text)
	}
}

// -----------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------

// Eval evaluates the expression against a scope of nested maps.
// A comparison whose field path is absent from the scope is false rather
// than an error, so guards fail closed on sparse context.
func (e *Expr) Eval(scope map[string]any) (bool, error) {
	return e.root.eval(scope)
}

func (n *logicNode) eval(scope map[string]any) (bool, error) {
	left, err := n.left.eval(scope)
	if err != nil {
		return false, err
	}
	// Short-circuit.
	if n.or && left {
		return true, nil
	}
	if !n.or && !left {
		return false, nil
	}
	return n.right.eval(scope)
}

func (n *notNode) eval(scope map[string]any) (bool, error) {
	v, err := n.inner.eval(scope)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n *cmpNode) eval(scope map[string]any) (bool, error) {
	left, lok := n.left.resolve(scope)
	right, rok := n.right.resolve(scope)
	if !lok || !rok {
		return false, nil
	}
	switch n.op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "contains":
		return contains(left, right)
	default:
		lf, lnum := toFloat64(left)
		rf, rnum := toFloat64(right)
		if !lnum || !rnum {
			return false, fmt.Errorf("guard: operator %q needs numeric operands, got %T and %T", n.op, left, right)
		}
		switch n.op {
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		}
		return false, fmt.Errorf("guard: unknown operator %q", n.op)
	}
}

func (o operand) resolve(scope map[string]any) (any, bool) {
	if o.path == nil {
		return o.literal, true
	}
	var cur any = scope
	for _, seg := range o.path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equal(a, b any) bool {
	if af, ok := toFloat64(a); ok {
		bf, ok := toFloat64(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func contains(a, b any) (bool, error) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("guard: contains needs a string operand, got %T", b)
		}
		return strings.Contains(av, bv), nil
	case []any:
		for _, item := range av {
			if equal(item, b) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		bv, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("guard: contains needs a string operand, got %T", b)
		}
		for _, item := range av {
			if item == bv {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("guard: contains not supported on %T", a)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
