package luasrc

// AssignmentSpan is the location of one top-level assignment's value
// expression. Range is only valid for the exact text it was computed from:
// any edit before it shifts every later offset, so spans are re-derived
// from the current text before each patch.
type AssignmentSpan struct {
	Name      string
	Kind      Kind
	NameRange Range
	Range     Range
}

// assignment pairs one identifier target with its value expression.
type assignment struct {
	name     *NameExpr
	value    Expr
	position int
}

// topLevelAssignments lists "name = expr" pairs in source order. A target
// without a matching expression (a, b = f()) is skipped, as are index
// targets and local declarations.
func topLevelAssignments(chunk *Chunk) []assignment {
	var out []assignment
	for _, st := range chunk.Stmts {
		as, ok := st.(*AssignStmt)
		if !ok {
			continue
		}
		for i, target := range as.Targets {
			name, ok := target.(*NameExpr)
			if !ok || i >= len(as.Values) {
				continue
			}
			out = append(out, assignment{name: name, value: as.Values[i], position: len(out)})
		}
	}
	return out
}

func firstAssignment(chunk *Chunk, name string) (assignment, bool) {
	for _, a := range topLevelAssignments(chunk) {
		if a.name.Name == name {
			return a, true
		}
	}
	return assignment{}, false
}

// Assignments returns the span of every top-level identifier assignment in
// source order.
func Assignments(src string) ([]AssignmentSpan, error) {
	chunk, err := Parse(src)
	if err != nil {
		return nil, err
	}
	list := topLevelAssignments(chunk)
	spans := make([]AssignmentSpan, 0, len(list))
	for _, a := range list {
		spans = append(spans, a.span(src))
	}
	return spans, nil
}

// Locate returns the span of the first top-level assignment to name.
func Locate(src, name string) (AssignmentSpan, bool, error) {
	chunk, err := Parse(src)
	if err != nil {
		return AssignmentSpan{}, false, err
	}
	a, ok := firstAssignment(chunk, name)
	if !ok {
		return AssignmentSpan{}, false, nil
	}
	return a.span(src), true, nil
}

func (a assignment) span(src string) AssignmentSpan {
	return AssignmentSpan{
		Name:      a.name.Name,
		Kind:      valueOf(src, a.value, 0).Kind,
		NameRange: a.name.Span(),
		Range:     a.value.Span(),
	}
}

// LocateField returns the value range of one entry in the table literal
// assigned to tableName. Keys match as in PatchField.
func LocateField(src, tableName, key string) (Range, bool, error) {
	chunk, err := Parse(src)
	if err != nil {
		return Range{}, false, err
	}
	field, ok := findField(chunk, tableName, key)
	if !ok {
		return Range{}, false, nil
	}
	return field.Value.Span(), true, nil
}

func findField(chunk *Chunk, tableName, key string) (*Field, bool) {
	a, ok := firstAssignment(chunk, tableName)
	if !ok {
		return nil, false
	}
	t, ok := a.value.(*TableExpr)
	if !ok {
		return nil, false
	}
	// 同名 key 以最后一个为准, 与 Extract 一致
	keys := fieldKeys(t)
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] == key {
			return t.Fields[i], true
		}
	}
	return nil, false
}
