package luasrc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableValue is returned when a table-shaped value would have to be
	// serialized. Callers pre-render table literals and pass them as Raw.
	ErrTableValue = errors.New("table values must be pre-rendered as a raw literal")

	// ErrInvalidLiteral is returned when a raw literal is not exactly one
	// expression.
	ErrInvalidLiteral = errors.New("raw literal is not a single expression")
)

// ParseError reports malformed source text.
type ParseError struct {
	Offset  int
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lua parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func newParseError(src string, offset int, format string, args ...interface{}) *ParseError {
	line, col := lineColumn(src, offset)
	return &ParseError{
		Offset:  offset,
		Line:    line,
		Column:  col,
		Message: fmt.Sprintf(format, args...),
	}
}

// lineColumn converts a byte offset into 1-based line and column numbers.
func lineColumn(src string, offset int) (int, int) {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return line, col
}
