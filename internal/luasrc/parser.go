package luasrc

// Parse parses Lua 5.1 source text into a loose syntax tree. The whole
// chunk is checked against the grammar, but only top-level statements are
// kept as nodes; their expressions carry byte ranges into src.
func Parse(src string) (*Chunk, error) {
	p, err := newParser(src, true)
	if err != nil {
		return nil, err
	}
	stmts, err := p.block()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf(p.peek(), "'<eof>' expected near '%s'", p.peek().text)
	}
	return &Chunk{Stmts: stmts}, nil
}

// ParseExpression parses src as exactly one expression.
func ParseExpression(src string) (Expr, error) {
	p, err := newParser(src, false)
	if err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf(p.peek(), "'<eof>' expected near '%s'", p.peek().text)
	}
	return e, nil
}

type parser struct {
	src  string
	toks []token
	i    int
}

func newParser(src string, chunk bool) (*parser, error) {
	toks, err := tokenize(src, chunk)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// prevEnd is the end offset of the last consumed token.
func (p *parser) prevEnd() int {
	if p.i == 0 {
		return 0
	}
	return p.toks[p.i-1].end
}

func (p *parser) check(text string) bool {
	t := p.peek()
	return (t.kind == tokKeyword || t.kind == tokSymbol) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.check(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf(p.peek(), "'%s' expected near '%s'", text, p.peek().text)
	}
	return nil
}

func (p *parser) expectName() (token, error) {
	t := p.peek()
	if t.kind != tokName {
		return t, p.errorf(t, "<name> expected near '%s'", t.text)
	}
	return p.advance(), nil
}

func (p *parser) errorf(t token, format string, args ...interface{}) *ParseError {
	return newParseError(p.src, t.start, format, args...)
}

func (p *parser) blockEnd() bool {
	t := p.peek()
	if t.kind == tokEOF {
		return true
	}
	if t.kind != tokKeyword {
		return false
	}
	switch t.text {
	case "else", "elseif", "end", "until":
		return true
	}
	return false
}

func (p *parser) block() ([]Stmt, error) {
	var stmts []Stmt
	for !p.blockEnd() {
		start := p.peek().start
		if p.check("return") || p.check("break") {
			if err := p.lastStatement(); err != nil {
				return nil, err
			}
			stmts = append(stmts, &OtherStmt{Range: Range{start, p.prevEnd()}})
			p.accept(";")
			break
		}
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
		p.accept(";")
	}
	return stmts, nil
}

func (p *parser) lastStatement() error {
	if p.accept("break") {
		return nil
	}
	p.advance() // return
	if p.blockEnd() || p.check(";") {
		return nil
	}
	_, err := p.exprList()
	return err
}

func (p *parser) statement() (Stmt, error) {
	start := p.peek().start
	other := func(err error) (Stmt, error) {
		if err != nil {
			return nil, err
		}
		return &OtherStmt{Range: Range{start, p.prevEnd()}}, nil
	}

	switch {
	case p.accept(";"):
		return other(nil)
	case p.check("if"):
		return other(p.ifStatement())
	case p.accept("while"):
		if _, err := p.expr(); err != nil {
			return nil, err
		}
		return other(p.doBlock())
	case p.accept("do"):
		return other(p.blockUntil("end"))
	case p.accept("for"):
		return other(p.forStatement())
	case p.accept("repeat"):
		if err := p.blockUntil("until"); err != nil {
			return nil, err
		}
		_, err := p.expr()
		return other(err)
	case p.accept("function"):
		if err := p.funcName(); err != nil {
			return nil, err
		}
		return other(p.funcBody())
	case p.accept("local"):
		if p.accept("function") {
			if _, err := p.expectName(); err != nil {
				return nil, err
			}
			return other(p.funcBody())
		}
		return p.localStatement(start)
	}
	return p.exprStatement(start)
}

func (p *parser) doBlock() error {
	if err := p.expect("do"); err != nil {
		return err
	}
	return p.blockUntil("end")
}

func (p *parser) blockUntil(closer string) error {
	if _, err := p.block(); err != nil {
		return err
	}
	return p.expect(closer)
}

func (p *parser) ifStatement() error {
	p.advance() // if
	for {
		if _, err := p.expr(); err != nil {
			return err
		}
		if err := p.expect("then"); err != nil {
			return err
		}
		if _, err := p.block(); err != nil {
			return err
		}
		if !p.accept("elseif") {
			break
		}
	}
	if p.accept("else") {
		if _, err := p.block(); err != nil {
			return err
		}
	}
	return p.expect("end")
}

func (p *parser) forStatement() error {
	if _, err := p.expectName(); err != nil {
		return err
	}
	if p.accept("=") {
		if _, err := p.expr(); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		if _, err := p.expr(); err != nil {
			return err
		}
		if p.accept(",") {
			if _, err := p.expr(); err != nil {
				return err
			}
		}
		return p.doBlock()
	}
	for p.accept(",") {
		if _, err := p.expectName(); err != nil {
			return err
		}
	}
	if err := p.expect("in"); err != nil {
		return err
	}
	if _, err := p.exprList(); err != nil {
		return err
	}
	return p.doBlock()
}

func (p *parser) funcName() error {
	if _, err := p.expectName(); err != nil {
		return err
	}
	for p.accept(".") {
		if _, err := p.expectName(); err != nil {
			return err
		}
	}
	if p.accept(":") {
		if _, err := p.expectName(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) funcBody() error {
	if err := p.expect("("); err != nil {
		return err
	}
	if !p.check(")") {
		for {
			if p.accept("...") {
				break
			}
			if _, err := p.expectName(); err != nil {
				return err
			}
			if !p.accept(",") {
				break
			}
		}
	}
	if err := p.expect(")"); err != nil {
		return err
	}
	return p.blockUntil("end")
}

func (p *parser) localStatement(start int) (Stmt, error) {
	st := &LocalStmt{}
	for {
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		st.Names = append(st.Names, name.text)
		if !p.accept(",") {
			break
		}
	}
	if p.accept("=") {
		values, err := p.exprList()
		if err != nil {
			return nil, err
		}
		st.Values = values
	}
	st.Range = Range{start, p.prevEnd()}
	return st, nil
}

func (p *parser) exprStatement(start int) (Stmt, error) {
	first, err := p.suffixedExpr()
	if err != nil {
		return nil, err
	}
	if !p.check("=") && !p.check(",") {
		if _, ok := first.(*CallExpr); !ok {
			return nil, p.errorf(p.peek(), "syntax error near '%s'", p.peek().text)
		}
		return &OtherStmt{Range: Range{start, p.prevEnd()}}, nil
	}

	targets := []Expr{first}
	for p.accept(",") {
		target, err := p.suffixedExpr()
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	for _, target := range targets {
		switch target.(type) {
		case *NameExpr, *IndexExpr:
		default:
			return nil, newParseError(p.src, target.Span().Start, "syntax error: cannot assign to expression")
		}
	}
	if err := p.expect("="); err != nil {
		return nil, err
	}
	values, err := p.exprList()
	if err != nil {
		return nil, err
	}
	return &AssignStmt{Range: Range{start, p.prevEnd()}, Targets: targets, Values: values}, nil
}

func (p *parser) exprList() ([]Expr, error) {
	var list []Expr
	for {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.accept(",") {
			return list, nil
		}
	}
}

const unaryPriority = 8

// binaryPriority returns the left and right binding power of a binary
// operator token.
func binaryPriority(t token) (int, int, bool) {
	if t.kind != tokSymbol && t.kind != tokKeyword {
		return 0, 0, false
	}
	switch t.text {
	case "or":
		return 1, 1, true
	case "and":
		return 2, 2, true
	case "<", ">", "<=", ">=", "~=", "==":
		return 3, 3, true
	case "..":
		return 5, 4, true
	case "+", "-":
		return 6, 6, true
	case "*", "/", "%":
		return 7, 7, true
	case "^":
		return 10, 9, true
	}
	return 0, 0, false
}

func (p *parser) expr() (Expr, error) {
	return p.subExpr(0)
}

func (p *parser) subExpr(limit int) (Expr, error) {
	start := p.peek().start

	var e Expr
	if p.check("not") || p.check("-") || p.check("#") {
		op := p.advance().text
		operand, err := p.subExpr(unaryPriority)
		if err != nil {
			return nil, err
		}
		e = &UnaryExpr{Range: Range{start, p.prevEnd()}, Op: op, Operand: operand}
	} else {
		simple, err := p.simpleExpr()
		if err != nil {
			return nil, err
		}
		e = simple
	}

	for {
		left, right, ok := binaryPriority(p.peek())
		if !ok || left <= limit {
			return e, nil
		}
		p.advance()
		if _, err := p.subExpr(right); err != nil {
			return nil, err
		}
		e = &OtherExpr{Range: Range{start, p.prevEnd()}}
	}
}

func (p *parser) simpleExpr() (Expr, error) {
	t := p.peek()
	r := Range{t.start, t.end}
	switch {
	case t.kind == tokNumber:
		p.advance()
		return &NumberExpr{Range: r, Value: t.num}, nil
	case t.kind == tokString:
		p.advance()
		return &StringExpr{Range: r, Value: t.str}, nil
	case p.check("nil"):
		p.advance()
		return &NilExpr{Range: r}, nil
	case p.check("true"), p.check("false"):
		p.advance()
		return &BoolExpr{Range: r, Value: t.text == "true"}, nil
	case p.check("..."):
		p.advance()
		return &OtherExpr{Range: r}, nil
	case p.check("{"):
		return p.tableConstructor()
	case p.check("function"):
		p.advance()
		if err := p.funcBody(); err != nil {
			return nil, err
		}
		return &OtherExpr{Range: Range{t.start, p.prevEnd()}}, nil
	}
	return p.suffixedExpr()
}

func (p *parser) suffixedExpr() (Expr, error) {
	start := p.peek().start

	var e Expr
	switch t := p.peek(); {
	case t.kind == tokName:
		p.advance()
		e = &NameExpr{Range: Range{t.start, t.end}, Name: t.text}
	case p.accept("("):
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		e = &ParenExpr{Range: Range{start, p.prevEnd()}, Inner: inner}
	default:
		return nil, p.errorf(t, "unexpected symbol near '%s'", t.text)
	}

	for {
		switch {
		case p.accept("."):
			if _, err := p.expectName(); err != nil {
				return nil, err
			}
			e = &IndexExpr{Range: Range{start, p.prevEnd()}}
		case p.accept("["):
			if _, err := p.expr(); err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			e = &IndexExpr{Range: Range{start, p.prevEnd()}}
		case p.accept(":"):
			if _, err := p.expectName(); err != nil {
				return nil, err
			}
			if err := p.callArgs(); err != nil {
				return nil, err
			}
			e = &CallExpr{Range: Range{start, p.prevEnd()}}
		case p.check("("), p.check("{"), p.peek().kind == tokString:
			if err := p.callArgs(); err != nil {
				return nil, err
			}
			e = &CallExpr{Range: Range{start, p.prevEnd()}}
		default:
			return e, nil
		}
	}
}

func (p *parser) callArgs() error {
	switch {
	case p.peek().kind == tokString:
		p.advance()
		return nil
	case p.check("{"):
		_, err := p.tableConstructor()
		return err
	}
	if err := p.expect("("); err != nil {
		return p.errorf(p.peek(), "function arguments expected near '%s'", p.peek().text)
	}
	if !p.check(")") {
		if _, err := p.exprList(); err != nil {
			return err
		}
	}
	return p.expect(")")
}

func (p *parser) tableConstructor() (*TableExpr, error) {
	start := p.peek().start
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	table := &TableExpr{}
	for !p.check("}") {
		f, err := p.field()
		if err != nil {
			return nil, err
		}
		table.Fields = append(table.Fields, f)
		if !p.accept(",") && !p.accept(";") {
			break
		}
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	table.Range = Range{start, p.prevEnd()}
	return table, nil
}

func (p *parser) field() (*Field, error) {
	start := p.peek().start

	if p.accept("[") {
		key, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		value, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Field{Range: Range{start, p.prevEnd()}, Kind: FieldBracket, Key: key, Value: value}, nil
	}

	if next := p.peekAt(1); p.peek().kind == tokName && next.kind == tokSymbol && next.text == "=" {
		name := p.advance()
		p.advance() // =
		value, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Field{Range: Range{start, p.prevEnd()}, Kind: FieldNamed, Name: name.text, Value: value}, nil
	}

	value, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &Field{Range: Range{start, p.prevEnd()}, Kind: FieldPositional, Value: value}, nil
}
