package expr

// Grammar (formulas and conditions share it; conditions additionally allow
// comparisons and &&/||):
//
//	condition := and_expr {"||" and_expr}
//	and_expr  := compare {"&&" compare}
//	compare   := expr [(">"|">="|"<"|"<="|"=="|"!=") expr]   (non-associative)
//	expr      := term {("+"|"-") term}
//	term      := primary {("*"|"/") primary}
//	primary   := number | ref | func_call | "-" primary | "(" condition ")"
//
// The parser builds an untyped tree and a separate type check decides
// whether it is numeric (formula) or boolean (condition). That keeps
// parenthesized groups legal at every level while still rejecting things
// like (a > b) + 1 with a position.

type arity struct {
	min      int
	variadic bool
}

var functions = map[string]arity{
	"abs": {min: 1, variadic: false},
	"max": {min: 1, variadic: true},
	"min": {min: 1, variadic: true},
}

// CompileFormula compiles a monitor formula. The result must be numeric.
func CompileFormula(text string) (Node, error) {
	n, err := compile(text)
	if err != nil {
		return nil, err
	}
	if err := checkNumber(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CompileCondition compiles an alert condition. The result must be boolean.
func CompileCondition(text string) (Node, error) {
	n, err := compile(text)
	if err != nil {
		return nil, err
	}
	if err := checkBool(n); err != nil {
		return nil, err
	}
	return n, nil
}

func compile(text string) (Node, error) {
	toks, perr := lex(text)
	if perr != nil {
		return nil, perr
	}
	p := &parser{toks: toks}
	n, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, errAt(tok.pos, "unexpected %q after expression", tok.text)
	}
	return n, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseCondition() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "||", X: left, Y: right, pos: op.pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		op := p.next()
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "&&", X: left, Y: right, pos: op.pos}
	}
	return left, nil
}

func isCompareTok(k tokenKind) bool {
	switch k {
	case tokGT, tokGE, tokLT, tokLE, tokEQ, tokNE:
		return true
	}
	return false
}

func (p *parser) parseCompare() (Node, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !isCompareTok(p.peek().kind) {
		return left, nil
	}
	op := p.next()
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	// Comparisons are non-associative: a > b > c is rejected.
	if tok := p.peek(); isCompareTok(tok.kind) {
		return nil, errAt(tok.pos, "comparison %q cannot be chained; use && or ||", tok.text)
	}
	return &Compare{Op: op.text, X: left, Y: right, pos: op.pos}, nil
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPlus || p.peek().kind == tokMinus {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op.text, X: left, Y: right, pos: op.pos}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokStar || p.peek().kind == tokSlash {
		op := p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op.text, X: left, Y: right, pos: op.pos}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.next()
		return &Number{Value: tok.num, pos: tok.pos}, nil

	case tokRef:
		p.next()
		return &Ref{Tag: tok.tag, ID: tok.id, pos: tok.pos}, nil

	case tokMinus:
		p.next()
		x, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Neg{X: x, pos: tok.pos}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if close := p.next(); close.kind != tokRParen {
			return nil, errAt(close.pos, "expected ')', got %q", tokenText(close))
		}
		return inner, nil

	case tokIdent:
		return p.parseCall()

	case tokEOF:
		return nil, errAt(tok.pos, "unexpected end of expression")

	default:
		return nil, errAt(tok.pos, "unexpected %q", tok.text)
	}
}

func (p *parser) parseCall() (Node, error) {
	name := p.next()
	fn, known := functions[name.text]
	if !known {
		return nil, errAt(name.pos, "unknown function %q", name.text)
	}
	if open := p.next(); open.kind != tokLParen {
		return nil, errAt(open.pos, "expected '(' after %q", name.text)
	}

	var args []Node
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		sep := p.next()
		if sep.kind == tokComma {
			continue
		}
		if sep.kind == tokRParen {
			break
		}
		return nil, errAt(sep.pos, "expected ',' or ')' in %s(...), got %q", name.text, tokenText(sep))
	}

	if len(args) < fn.min {
		return nil, errAt(name.pos, "%s requires at least %d argument(s)", name.text, fn.min)
	}
	if !fn.variadic && len(args) > fn.min {
		return nil, errAt(name.pos, "%s takes exactly %d argument(s), got %d", name.text, fn.min, len(args))
	}

	return &Call{Fn: name.text, Args: args, pos: name.pos}, nil
}

func tokenText(t token) string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return t.text
}

// checkNumber verifies the tree reduces to a number.
func checkNumber(n Node) error {
	switch v := n.(type) {
	case *Number:
		return nil
	case *Ref:
		return nil
	case *Neg:
		return checkNumber(v.X)
	case *Binary:
		if err := checkNumber(v.X); err != nil {
			return err
		}
		return checkNumber(v.Y)
	case *Call:
		for _, a := range v.Args {
			if err := checkNumber(a); err != nil {
				return err
			}
		}
		return nil
	case *Compare:
		return errAt(v.pos, "comparison produces a boolean where a number is required")
	case *Logical:
		return errAt(v.pos, "%q produces a boolean where a number is required", v.Op)
	}
	return errAt(n.Pos(), "internal: unknown node")
}

// checkBool verifies the tree reduces to a boolean.
func checkBool(n Node) error {
	switch v := n.(type) {
	case *Compare:
		if err := checkNumber(v.X); err != nil {
			return err
		}
		return checkNumber(v.Y)
	case *Logical:
		if err := checkBool(v.X); err != nil {
			return err
		}
		return checkBool(v.Y)
	default:
		return errAt(n.Pos(), "condition must reduce to a boolean (use a comparison)")
	}
}
