package sql

import (
	"fmt"
	"strings"
)

type TokenType int

const (
	Unknown TokenType = iota
	EOF
	Identifier
	String
	Number
	Wildcard
	Comma
	Semicolon
	ParenOpen
	ParenClose

	// operators
	Equals
	NotEquals
	LessThan
	GreaterThan
	LessThanOrEqual
	GreaterThanOrEqual

	// keywords
	Select
	Insert
	Update
	Delete
	From
	Into
	Where
	And
	Or
	Not
	Like
	In
	Set
	Values
	Join
	True
	False
	Null
)

var tokenNames = map[TokenType]string{
	Unknown:            "Unknown",
	EOF:                "EOF",
	Identifier:         "Identifier",
	String:             "String",
	Number:             "Number",
	Wildcard:           "Wildcard",
	Comma:              "Comma",
	Semicolon:          "Semicolon",
	ParenOpen:          "ParenOpen",
	ParenClose:         "ParenClose",
	Equals:             "Equals",
	NotEquals:          "NotEquals",
	LessThan:           "LessThan",
	GreaterThan:        "GreaterThan",
	LessThanOrEqual:    "LessThanOrEqual",
	GreaterThanOrEqual: "GreaterThanOrEqual",
}

// keywords maps the upper-cased spelling of every reserved word to its
// token. Words the grammar rejects (OR, JOIN, SET...) are still reserved so
// the parser can name them in its errors.
var keywords = map[string]TokenType{
	"SELECT": Select,
	"INSERT": Insert,
	"UPDATE": Update,
	"DELETE": Delete,
	"FROM":   From,
	"INTO":   Into,
	"WHERE":  Where,
	"AND":    And,
	"OR":     Or,
	"NOT":    Not,
	"LIKE":   Like,
	"IN":     In,
	"SET":    Set,
	"VALUES": Values,
	"JOIN":   Join,
	"TRUE":   True,
	"FALSE":  False,
	"NULL":   Null,
}

var operators = map[string]TokenType{
	"=":  Equals,
	"==": Equals,
	"!=": NotEquals,
	"<>": NotEquals,
	"<":  LessThan,
	">":  GreaterThan,
	"<=": LessThanOrEqual,
	">=": GreaterThanOrEqual,
}

func init() {
	for word, tokenType := range keywords {
		tokenNames[tokenType] = word
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexeme. Pos is the byte offset of its first character.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (token Token) String() string {
	switch token.Type {
	case Identifier, String, Number, Unknown:
		return fmt.Sprintf("%s(%s)", token.Type, token.Value)
	default:
		return token.Type.String()
	}
}

// Lexer splits a query into tokens. It works on bytes: identifiers are
// ASCII, string literals may hold any UTF-8.
type Lexer struct {
	input string
	pos   int
}

func NewLexer(query string) *Lexer {
	return &Lexer{input: query}
}

func (lexer *Lexer) NextToken() Token {
	lexer.skipWhitespace()

	start := lexer.pos
	if start >= len(lexer.input) {
		return Token{Type: EOF, Pos: start}
	}

	ch := lexer.input[start]
	switch {
	case ch == '\'' || ch == '"':
		value, ok := lexer.scanString(ch)
		if !ok {
			return Token{Type: Unknown, Value: value, Pos: start}
		}
		return Token{Type: String, Value: value, Pos: start}

	case isDigit(ch) || (ch == '-' && isDigit(lexer.byteAt(start+1))):
		return Token{Type: Number, Value: lexer.scanNumber(), Pos: start}

	case isIdentifierStart(ch):
		word := lexer.scanWhile(isIdentifierPart)
		if keyword, ok := keywords[strings.ToUpper(word)]; ok {
			return Token{Type: keyword, Value: word, Pos: start}
		}
		return Token{Type: Identifier, Value: word, Pos: start}

	case isOperator(ch):
		operator := lexer.scanWhile(isOperator)
		if tokenType, ok := operators[operator]; ok {
			return Token{Type: tokenType, Value: operator, Pos: start}
		}
		return Token{Type: Unknown, Value: operator, Pos: start}
	}

	lexer.pos++
	value := string(ch)
	switch ch {
	case '*':
		return Token{Type: Wildcard, Value: value, Pos: start}
	case ',':
		return Token{Type: Comma, Value: value, Pos: start}
	case ';':
		return Token{Type: Semicolon, Value: value, Pos: start}
	case '(':
		return Token{Type: ParenOpen, Value: value, Pos: start}
	case ')':
		return Token{Type: ParenClose, Value: value, Pos: start}
	default:
		return Token{Type: Unknown, Value: value, Pos: start}
	}
}

// PeekToken returns the next token without consuming it.
func (lexer *Lexer) PeekToken() Token {
	saved := lexer.pos
	token := lexer.NextToken()
	lexer.pos = saved
	return token
}

func (lexer *Lexer) byteAt(i int) byte {
	if i >= len(lexer.input) {
		return 0
	}
	return lexer.input[i]
}

func (lexer *Lexer) skipWhitespace() {
	lexer.scanWhile(func(ch byte) bool {
		return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
	})
}

func (lexer *Lexer) scanWhile(accept func(byte) bool) string {
	start := lexer.pos
	for lexer.pos < len(lexer.input) && accept(lexer.input[lexer.pos]) {
		lexer.pos++
	}
	return lexer.input[start:lexer.pos]
}

// scanString reads a literal opened by quote. A doubled quote stands for
// one quote character. ok is false when the input ends first.
func (lexer *Lexer) scanString(quote byte) (value string, ok bool) {
	var b strings.Builder
	lexer.pos++ // opening quote
	for lexer.pos < len(lexer.input) {
		ch := lexer.input[lexer.pos]
		lexer.pos++
		if ch != quote {
			b.WriteByte(ch)
			continue
		}
		if lexer.byteAt(lexer.pos) != quote {
			return b.String(), true
		}
		b.WriteByte(quote)
		lexer.pos++
	}
	return b.String(), false
}

func (lexer *Lexer) scanNumber() string {
	start := lexer.pos
	if lexer.input[lexer.pos] == '-' {
		lexer.pos++
	}
	lexer.scanWhile(isDigit)
	if lexer.byteAt(lexer.pos) == '.' && isDigit(lexer.byteAt(lexer.pos+1)) {
		lexer.pos++
		lexer.scanWhile(isDigit)
	}
	return lexer.input[start:lexer.pos]
}

func isIdentifierStart(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
}

func isIdentifierPart(ch byte) bool {
	return isIdentifierStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isOperator(ch byte) bool {
	return ch == '=' || ch == '!' || ch == '<' || ch == '>'
}

// tokenize lexes the whole input, EOF included.
func tokenize(query string) []Token {
	lexer := NewLexer(query)
	var tokens []Token
	for {
		token := lexer.NextToken()
		tokens = append(tokens, token)
		if token.Type == EOF {
			return tokens
		}
	}
}
