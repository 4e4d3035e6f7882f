package luasrc

// Range is a half-open byte range [Start, End) in the source text it was
// derived from. It is only valid for that exact text.
type Range struct {
	Start int
	End   int
}

// Span returns the range itself so every node embedding Range exposes it.
func (r Range) Span() Range { return r }

// Text returns the substring of src covered by the range.
func (r Range) Text(src string) string { return src[r.Start:r.End] }

// Len returns the number of bytes covered.
func (r Range) Len() int { return r.End - r.Start }

// Expr is an expression node of the loose syntax tree.
type Expr interface {
	Span() Range
	exprNode()
}

// Stmt is a top-level statement of a chunk.
type Stmt interface {
	Span() Range
	stmtNode()
}

// Chunk is a parsed source file. Only top-level statements are kept;
// nested blocks are validated and folded into OtherStmt ranges.
type Chunk struct {
	Stmts []Stmt
}

type (
	NumberExpr struct {
		Range
		Value float64
	}

	StringExpr struct {
		Range
		Value string
	}

	BoolExpr struct {
		Range
		Value bool
	}

	NilExpr struct {
		Range
	}

	NameExpr struct {
		Range
		Name string
	}

	// TableExpr is a table constructor literal.
	TableExpr struct {
		Range
		Fields []*Field
	}

	UnaryExpr struct {
		Range
		Op      string
		Operand Expr
	}

	// IndexExpr covers a.b and a[b].
	IndexExpr struct {
		Range
	}

	CallExpr struct {
		Range
	}

	ParenExpr struct {
		Range
		Inner Expr
	}

	// OtherExpr covers binary operations, varargs and function literals.
	OtherExpr struct {
		Range
	}
)

func (*NumberExpr) exprNode() {}
func (*StringExpr) exprNode() {}
func (*BoolExpr) exprNode()   {}
func (*NilExpr) exprNode()    {}
func (*NameExpr) exprNode()   {}
func (*TableExpr) exprNode()  {}
func (*UnaryExpr) exprNode()  {}
func (*IndexExpr) exprNode()  {}
func (*CallExpr) exprNode()   {}
func (*ParenExpr) exprNode()  {}
func (*OtherExpr) exprNode()  {}

// FieldKind tells how a table constructor field was written.
type FieldKind int

const (
	// FieldPositional is a bare value: {10, 20}.
	FieldPositional FieldKind = iota
	// FieldNamed is name = value.
	FieldNamed
	// FieldBracket is [key] = value.
	FieldBracket
)

// Field is one entry of a table constructor.
type Field struct {
	Range
	Kind  FieldKind
	Name  string // FieldNamed only
	Key   Expr   // FieldBracket only
	Value Expr
}

type (
	// AssignStmt is targets = values. Targets may be names or index
	// expressions.
	AssignStmt struct {
		Range
		Targets []Expr
		Values  []Expr
	}

	LocalStmt struct {
		Range
		Names  []string
		Values []Expr
	}

	// OtherStmt is any statement the extractor does not look into.
	OtherStmt struct {
		Range
	}
)

func (*AssignStmt) stmtNode() {}
func (*LocalStmt) stmtNode()  {}
func (*OtherStmt) stmtNode()  {}
