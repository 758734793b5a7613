package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/hupe1980/agentgraph/tool"
)

// NewCalculator returns the calculator tool. Expressions support + - * / %,
// ** or ^ for powers, parentheses, the constants pi and e, and the functions
// sqrt, abs, pow, log, log10, exp, sin, cos, tan, floor, ceil, round, min, max.
func NewCalculator() tool.Tool {
	return tool.NewFunctionTool(
		"calculator",
		"Evaluate a mathematical expression such as \"(2+3)*4\" or \"sqrt(16)\".",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string", "description": "Mathematical expression to evaluate"},
			},
			"required": []string{"expression"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			expr, _ := args["expression"].(string)
			v, err := Evaluate(expr)
			if err != nil {
				return nil, tool.NewToolError("calculator", err.Error(), "EVALUATION_ERROR")
			}
			return map[string]any{"expression": expr, "result": v}, nil
		},
	)
}

// Evaluate computes the value of an arithmetic expression.
func Evaluate(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, fmt.Errorf("empty expression")
	}
	p := &exprParser{}
	p.s.Init(strings.NewReader(expr))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	p.s.Error = func(_ *scanner.Scanner, msg string) { p.err = fmt.Errorf("invalid expression %q: %s", expr, msg) }
	p.next()

	v, err := p.expr()
	if err == nil && p.tok != scanner.EOF {
		err = fmt.Errorf("unexpected %q in expression %q", p.s.TokenText(), expr)
	}
	if err == nil {
		err = p.err
	}
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("expression %q has no finite value", expr)
	}
	return v, nil
}

// exprParser is a recursive-descent parser over:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ ("^" | "**") unary ]
//	primary = number | ident | ident "(" [ expr { "," expr } ] ")" | "(" expr ")"
type exprParser struct {
	s   scanner.Scanner
	tok rune
	err error
}

func (p *exprParser) next() { p.tok = p.s.Scan() }

func (p *exprParser) expr() (float64, error) {
	x, err := p.term()
	for err == nil && (p.tok == '+' || p.tok == '-') {
		op := p.tok
		p.next()
		var y float64
		if y, err = p.term(); err == nil {
			if op == '+' {
				x += y
			} else {
				x -= y
			}
		}
	}
	return x, err
}

func (p *exprParser) term() (float64, error) {
	x, err := p.unary()
	for err == nil && (p.tok == '/' || p.tok == '%' || (p.tok == '*' && p.s.Peek() != '*')) {
		op := p.tok
		p.next()
		var y float64
		if y, err = p.unary(); err != nil {
			break
		}
		switch {
		case op == '*':
			x *= y
		case y == 0:
			err = fmt.Errorf("division by zero")
		case op == '/':
			x /= y
		default:
			x = math.Mod(x, y)
		}
	}
	return x, err
}

func (p *exprParser) unary() (float64, error) {
	switch p.tok {
	case '-':
		p.next()
		x, err := p.unary()
		return -x, err
	case '+':
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *exprParser) power() (float64, error) {
	x, err := p.primary()
	if err != nil {
		return 0, err
	}
	switch {
	case p.tok == '^':
		p.next()
	case p.tok == '*' && p.s.Peek() == '*':
		p.next()
		p.next()
	default:
		return x, nil
	}
	y, err := p.unary()
	return math.Pow(x, y), err
}

func (p *exprParser) primary() (float64, error) {
	switch p.tok {
	case scanner.Int, scanner.Float:
		v, err := strconv.ParseFloat(p.s.TokenText(), 64)
		p.next()
		return v, err
	case '(':
		p.next()
		x, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.tok != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return x, nil
	case scanner.Ident:
		name := strings.ToLower(p.s.TokenText())
		p.next()
		if p.tok != '(' {
			switch name {
			case "pi":
				return math.Pi, nil
			case "e":
				return math.E, nil
			}
			return 0, fmt.Errorf("unknown identifier %q", name)
		}
		p.next()
		var args []float64
		for p.tok != ')' {
			v, err := p.expr()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if p.tok == ',' {
				p.next()
				continue
			}
			if p.tok != ')' {
				return 0, fmt.Errorf("expected ',' or ')' in call to %s", name)
			}
		}
		p.next()
		return callFunc(name, args)
	case scanner.EOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q", p.s.TokenText())
	}
}

var unaryFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"log":   math.Log,
	"log10": math.Log10,
	"exp":   math.Exp,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

var binaryFuncs = map[string]func(float64, float64) float64{
	"pow": math.Pow,
	"min": math.Min,
	"max": math.Max,
}

func callFunc(name string, args []float64) (float64, error) {
	if fn, ok := unaryFuncs[name]; ok {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		return fn(args[0]), nil
	}
	if fn, ok := binaryFuncs[name]; ok {
		if len(args) != 2 {
			return 0, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		return fn(args[0], args[1]), nil
	}
	return 0, fmt.Errorf("unknown function %q", name)
}
