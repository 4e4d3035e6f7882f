package luasrc

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokKeyword
	tokNumber
	tokString
	tokSymbol
)

// token is one lexeme with its byte range in the source text.
type token struct {
	kind  tokenKind
	text  string // name, keyword or symbol text; raw source for numbers and strings
	start int
	end   int
	num   float64
	str   string
}

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// Longest first so "..." wins over ".." and ".".
var symbols = []string{
	"...", "..", "==", "~=", "<=", ">=", "::",
	"+", "-", "*", "/", "%", "^", "#", "<", ">", "=",
	"(", ")", "{", "}", "[", "]", ";", ":", ",", ".",
}

type lexer struct {
	src string
	pos int
}

// tokenize splits src into tokens, always ending with a tokEOF token. A
// whole chunk may start with a BOM and a "#!" line; a bare expression may
// not.
func tokenize(src string, chunk bool) ([]token, error) {
	lx := &lexer{src: src}
	if chunk {
		lx.skipPrelude()
	}

	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

// skipPrelude skips a UTF-8 BOM and a leading "#!" line.
func (lx *lexer) skipPrelude() {
	if strings.HasPrefix(lx.src, "\xEF\xBB\xBF") {
		lx.pos = 3
	}
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '#' {
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
			lx.pos++
		}
	}
}

func (lx *lexer) at(offset int) byte {
	i := lx.pos + offset
	if i < 0 || i >= len(lx.src) {
		return 0
	}
	return lx.src[i]
}

func (lx *lexer) errorf(offset int, format string, args ...interface{}) *ParseError {
	return newParseError(lx.src, offset, format, args...)
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, text: "<eof>", start: lx.pos, end: lx.pos}, nil
	}

	start := lx.pos
	c := lx.src[lx.pos]
	switch {
	case isNameStart(c):
		for lx.pos < len(lx.src) && isNameChar(lx.src[lx.pos]) {
			lx.pos++
		}
		text := lx.src[start:lx.pos]
		kind := tokName
		if keywords[text] {
			kind = tokKeyword
		}
		return token{kind: kind, text: text, start: start, end: lx.pos}, nil

	case isDigit(c) || (c == '.' && isDigit(lx.at(1))):
		return lx.number()

	case c == '"' || c == '\'':
		return lx.shortString(c)

	case c == '[':
		if level, ok := lx.longBracketLevel(); ok {
			content, err := lx.longBracket(level, "string")
			if err != nil {
				return token{}, err
			}
			return token{kind: tokString, text: lx.src[start:lx.pos], start: start, end: lx.pos, str: content}, nil
		}
		if lx.at(1) == '=' {
			return token{}, lx.errorf(start, "invalid long string delimiter")
		}
	}

	for _, sym := range symbols {
		if strings.HasPrefix(lx.src[lx.pos:], sym) {
			lx.pos += len(sym)
			return token{kind: tokSymbol, text: sym, start: start, end: lx.pos}, nil
		}
	}
	return token{}, lx.errorf(start, "unexpected symbol near '%c'", c)
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.pos < len(lx.src) {
		switch c := lx.src[lx.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			lx.pos++
		case c == '-' && lx.at(1) == '-':
			lx.pos += 2
			if lx.at(0) == '[' {
				if level, ok := lx.longBracketLevel(); ok {
					if _, err := lx.longBracket(level, "comment"); err != nil {
						return err
					}
					continue
				}
			}
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' && lx.src[lx.pos] != '\r' {
				lx.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

// longBracketLevel reports whether "[" at the current position opens a
// long bracket ("[[", "[==[") and how many '=' it carries.
func (lx *lexer) longBracketLevel() (int, bool) {
	level := 0
	for lx.at(1+level) == '=' {
		level++
	}
	return level, lx.at(1+level) == '['
}

// longBracket consumes a long bracket of the given level and returns its
// content. A newline directly after the opening bracket is dropped.
func (lx *lexer) longBracket(level int, what string) (string, error) {
	start := lx.pos
	lx.pos += level + 2
	if c := lx.at(0); c == '\r' || c == '\n' {
		lx.pos++
		if d := lx.at(0); (d == '\r' || d == '\n') && d != c {
			lx.pos++
		}
	}
	closing := "]" + strings.Repeat("=", level) + "]"
	idx := strings.Index(lx.src[lx.pos:], closing)
	if idx < 0 {
		lx.pos = len(lx.src)
		return "", lx.errorf(start, "unfinished long %s", what)
	}
	content := lx.src[lx.pos : lx.pos+idx]
	lx.pos += idx + len(closing)
	return content, nil
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	var value float64

	if lx.at(0) == '0' && (lx.at(1) == 'x' || lx.at(1) == 'X') {
		lx.pos += 2
		digits := 0
		for lx.pos < len(lx.src) && isHexDigit(lx.src[lx.pos]) {
			value = value*16 + float64(hexValue(lx.src[lx.pos]))
			lx.pos++
			digits++
		}
		if digits == 0 || lx.trailingNumberChar() {
			return token{}, lx.errorf(start, "malformed number near '%s'", lx.src[start:lx.pos])
		}
		return token{kind: tokNumber, text: lx.src[start:lx.pos], start: start, end: lx.pos, num: value}, nil
	}

	for isDigit(lx.at(0)) {
		lx.pos++
	}
	if lx.at(0) == '.' {
		lx.pos++
		for isDigit(lx.at(0)) {
			lx.pos++
		}
	}
	if c := lx.at(0); c == 'e' || c == 'E' {
		lx.pos++
		if c := lx.at(0); c == '+' || c == '-' {
			lx.pos++
		}
		if !isDigit(lx.at(0)) {
			return token{}, lx.errorf(start, "malformed number near '%s'", lx.src[start:lx.pos])
		}
		for isDigit(lx.at(0)) {
			lx.pos++
		}
	}
	if lx.trailingNumberChar() {
		return token{}, lx.errorf(start, "malformed number near '%s'", lx.src[start:lx.pos+1])
	}

	text := lx.src[start:lx.pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil && !isRangeError(err) {
		return token{}, lx.errorf(start, "malformed number near '%s'", text)
	}
	return token{kind: tokNumber, text: text, start: start, end: lx.pos, num: value}, nil
}

func (lx *lexer) trailingNumberChar() bool {
	c := lx.at(0)
	return lx.pos < len(lx.src) && (isNameChar(c) || c == '.')
}

func (lx *lexer) shortString(quote byte) (token, error) {
	start := lx.pos
	lx.pos++

	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return token{}, lx.errorf(start, "unfinished string")
		}
		c := lx.src[lx.pos]
		switch {
		case c == quote:
			lx.pos++
			return token{kind: tokString, text: lx.src[start:lx.pos], start: start, end: lx.pos, str: b.String()}, nil
		case c == '\n' || c == '\r':
			return token{}, lx.errorf(start, "unfinished string")
		case c == '\\':
			if err := lx.escape(&b); err != nil {
				return token{}, err
			}
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
}

// escape decodes one backslash sequence starting at the backslash.
func (lx *lexer) escape(b *strings.Builder) error {
	start := lx.pos
	lx.pos++
	if lx.pos >= len(lx.src) {
		return lx.errorf(start, "unfinished string")
	}

	e := lx.src[lx.pos]
	switch e {
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'v':
		b.WriteByte('\v')
	case '\n', '\r':
		b.WriteByte('\n')
		lx.pos++
		if d := lx.at(0); (d == '\n' || d == '\r') && d != e {
			lx.pos++
		}
		return nil
	case 'x':
		if !isHexDigit(lx.at(1)) || !isHexDigit(lx.at(2)) {
			return lx.errorf(start, "hexadecimal digit expected")
		}
		b.WriteByte(byte(hexValue(lx.at(1))<<4 | hexValue(lx.at(2))))
		lx.pos += 3
		return nil
	case 'z':
		lx.pos++
		for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
			lx.pos++
		}
		return nil
	default:
		if isDigit(e) {
			value := 0
			for i := 0; i < 3 && isDigit(lx.at(0)); i++ {
				value = value*10 + int(lx.at(0)-'0')
				lx.pos++
			}
			if value > 255 {
				return lx.errorf(start, "escape sequence too large")
			}
			b.WriteByte(byte(value))
			return nil
		}
		// \\, \", \' and unknown escapes keep the escaped byte.
		b.WriteByte(e)
	}
	lx.pos++
	return nil
}

func isRangeError(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func hexValue(c byte) byte {
	switch {
	case isDigit(c):
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
