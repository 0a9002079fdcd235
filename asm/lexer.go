package asm

import (
	"strconv"
	"strings"

	"github.com/atlas8/atlasasm/isa"
)

// LexErrorKind classifies why the lexer rejected the source, per spec §4.1.
type LexErrorKind int

const (
	LexBadCharacter LexErrorKind = iota
	LexBadNumber
	LexUnterminatedString
)

func (k LexErrorKind) String() string {
	switch k {
	case LexBadCharacter:
		return "unexpected character"
	case LexBadNumber:
		return "invalid numeric literal"
	case LexUnterminatedString:
		return "unterminated string literal"
	default:
		return "lex error"
	}
}

// LexError reports a lexical failure with enough position information to
// be user-diagnostic, per spec §7.
type LexError struct {
	Line, Col int
	Kind      LexErrorKind
	Detail    string
}

func (e *LexError) Error() string {
	if e.Detail != "" {
		return e.Kind.String() + ": " + e.Detail
	}
	return e.Kind.String()
}

// tokString is an internal token kind the lexer emits for a double-quoted
// string literal. It is not part of the token vocabulary spec §4.1
// enumerates by name, but it is how the lexer satisfies that same section's
// contract that tokenize() can fail on an "unterminated string": the lexer
// always recognizes a leading '"' as the start of a string, and it is the
// parser (not the lexer) that restricts acceptance of this token to the
// operand position of `.ascii`, which is what "string literals are
// recognized only inside .ascii" means in practice.
const tokString TokenKind = -1

// Lexer converts Atlas-8 assembly source text into a stream of Tokens.
// It is a single-pass, unbuffered scanner: callers drive it one token at a
// time via Next. Tokenize drains it into a slice for callers that want the
// whole stream at once.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// NewLexer creates a Lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, pos: 0, line: 1, col: 0}
}

// Tokenize lexes src in full, returning every token up to and including a
// single trailing TokEOF.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) byteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance(n int) {
	l.pos += n
	l.col += n
}

func (l *Lexer) newline() {
	l.pos++
	l.line++
	l.col = 0
}

// skipSpaceAndComments consumes spaces, tabs, and ';' comments, but leaves
// newlines in place for Next to tokenize.
func (l *Lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.advance(1)
		case c == ';':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

// isWordChar reports whether c can appear within (or start, aside from a
// leading sign) an identifier, directive name, mnemonic, register, or
// numeric literal. Any other non-space, non-punctuation byte is rejected by
// Next as an unknown character (spec §4.1/§7).
func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.'
}

// Next returns the next token in the stream. Once it returns a TokEOF
// token, every subsequent call also returns that same TokEOF.
func (l *Lexer) Next() (Token, error) {
	l.skipSpaceAndComments()

	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF, Line: l.line, Col: l.col}, nil
	}

	line, col := l.line, l.col
	c := l.src[l.pos]

	if c == '\n' {
		l.newline()
		return Token{Kind: TokNewline, Line: line, Col: col}, nil
	}

	if tok, ok := singleCharToken(c); ok {
		l.advance(1)
		return Token{Kind: tok, Line: line, Col: col}, nil
	}

	if c == '"' {
		return l.scanString(line, col)
	}

	if !(c == '+' || c == '-' || isWordChar(c)) {
		l.advance(1)
		return Token{}, &LexError{Line: line, Col: col, Kind: LexBadCharacter, Detail: string(c)}
	}

	word := l.scanWord()
	return l.classify(word, line, col)
}

func singleCharToken(c byte) (TokenKind, bool) {
	switch c {
	case ',':
		return TokComma, true
	case '[':
		return TokLBracket, true
	case ']':
		return TokRBracket, true
	case '@':
		return TokAt, true
	case ':':
		return TokColon, true
	default:
		return 0, false
	}
}

// scanWord consumes a leading sign (if present) followed by a maximal run
// of word characters, and returns it. Any byte that is neither a word
// character nor recognized punctuation/whitespace ends the word where it
// stands, leaving it for the next call to Next to reject.
func (l *Lexer) scanWord() string {
	start := l.pos
	if c := l.peekByte(); c == '+' || c == '-' {
		l.advance(1)
	}
	for l.pos < len(l.src) && isWordChar(l.src[l.pos]) {
		l.advance(1)
	}
	return l.src[start:l.pos]
}

func (l *Lexer) scanString(line, col int) (Token, error) {
	l.advance(1) // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return Token{}, &LexError{Line: line, Col: col, Kind: LexUnterminatedString}
		}
		c := l.src[l.pos]
		if c == '"' {
			l.advance(1)
			return Token{Kind: tokString, Line: line, Col: col, Str: sb.String()}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			switch l.byteAt(1) {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '0':
				sb.WriteByte(0)
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(l.byteAt(1))
			}
			l.advance(2)
			continue
		}
		sb.WriteByte(c)
		l.advance(1)
	}
}

func (l *Lexer) classify(word string, line, col int) (Token, error) {
	if rest, ok := strings.CutPrefix(word, "."); ok {
		if rest == "" {
			return Token{}, &LexError{Line: line, Col: col, Kind: LexBadCharacter, Detail: "'.'"}
		}
		return Token{Kind: TokDirective, Line: line, Col: col, Str: strings.ToLower(rest)}, nil
	}

	if reg, ok := parseRegisterWord(word); ok {
		return Token{Kind: TokRegister, Line: line, Col: col, Reg: reg}, nil
	}

	if isNumberWord(word) {
		val, err := parseImmediate(word)
		if err != nil {
			return Token{}, &LexError{Line: line, Col: col, Kind: LexBadNumber, Detail: word}
		}
		signed := word[0] == '+' || word[0] == '-'
		return Token{Kind: TokImmediate, Line: line, Col: col, Imm: val, Signed: signed}, nil
	}

	if _, ok := isa.Lookup(word); ok {
		return Token{Kind: TokMnemonic, Line: line, Col: col, Str: strings.ToLower(word)}, nil
	}

	return Token{Kind: TokIdentifier, Line: line, Col: col, Str: word}, nil
}

func parseRegisterWord(word string) (byte, bool) {
	if reg, ok := isa.RegisterAlias(strings.ToLower(word)); ok {
		return reg, true
	}
	if len(word) < 2 || (word[0] != 'r' && word[0] != 'R') {
		return 0, false
	}
	n, err := strconv.Atoi(word[1:])
	if err != nil || n < 0 || n > 15 {
		return 0, false
	}
	return byte(n), true
}

func isNumberWord(word string) bool {
	w := word
	if len(w) > 0 && (w[0] == '+' || w[0] == '-') {
		w = w[1:]
	}
	return len(w) > 0 && w[0] >= '0' && w[0] <= '9'
}

func parseImmediate(word string) (int32, error) {
	neg := false
	w := word
	if len(w) > 0 && (w[0] == '+' || w[0] == '-') {
		neg = w[0] == '-'
		w = w[1:]
	}

	var v int64
	var err error
	switch {
	case strings.HasPrefix(w, "0x") || strings.HasPrefix(w, "0X"):
		v, err = strconv.ParseInt(w[2:], 16, 64)
	case strings.HasPrefix(w, "0b") || strings.HasPrefix(w, "0B"):
		v, err = strconv.ParseInt(w[2:], 2, 64)
	case strings.HasPrefix(w, "0o") || strings.HasPrefix(w, "0O"):
		v, err = strconv.ParseInt(w[2:], 8, 64)
	default:
		v, err = strconv.ParseInt(w, 10, 64)
	}
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return int32(v), nil
}
