package sql

import (
	"fmt"
	"strings"

	"github.com/nickyhof/AtlasDB/errs"
)

// DeleteKeyColumn is the only column a DELETE predicate may name.
const DeleteKeyColumn = "id"

type CommandType int

const (
	SelectCommandType CommandType = iota
	InsertCommandType
	UpdateCommandType
	DeleteCommandType
)

func (t CommandType) String() string {
	switch t {
	case SelectCommandType:
		return "SELECT"
	case InsertCommandType:
		return "INSERT"
	case UpdateCommandType:
		return "UPDATE"
	case DeleteCommandType:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Command is a parsed query. Every command targets exactly one table.
type Command interface {
	Type() CommandType
	TableName() string
}

// Predicate is a single equality condition. Value is the literal text with
// any quotes stripped.
type Predicate struct {
	Column string
	Value  string
}

type SelectCommand struct {
	Table      string
	Predicates []Predicate // AND'ed
}

// InsertCommand is an insert-or-replace keyed by the table's primary key.
// The row is bound from params[0] at execution time.
type InsertCommand struct {
	Table string
}

// UpdateCommand replaces a whole row by primary key, exactly like
// InsertCommand. A WHERE clause is accepted for compatibility but never
// evaluated; the row's own key decides what is replaced.
type UpdateCommand struct {
	Table string
	Where []Predicate // parsed, never evaluated
}

type DeleteCommand struct {
	Table     string
	Predicate Predicate
}

func (c SelectCommand) Type() CommandType { return SelectCommandType }
func (c InsertCommand) Type() CommandType { return InsertCommandType }
func (c UpdateCommand) Type() CommandType { return UpdateCommandType }
func (c DeleteCommand) Type() CommandType { return DeleteCommandType }

func (c SelectCommand) TableName() string { return c.Table }
func (c InsertCommand) TableName() string { return c.Table }
func (c UpdateCommand) TableName() string { return c.Table }
func (c DeleteCommand) TableName() string { return c.Table }

type Parser struct {
	lexer *Lexer
}

func NewParser(sql string) *Parser {
	return &Parser{lexer: NewLexer(sql)}
}

// Parse parses a single query.
func Parse(query string) (Command, error) {
	return NewParser(query).Parse()
}

func (parser *Parser) Parse() (Command, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case Select:
		return ParseSelect(parser)
	case Insert:
		return ParseInsert(parser)
	case Update:
		return ParseUpdate(parser)
	case Delete:
		return ParseDelete(parser)
	case EOF:
		return nil, syntaxError("empty query")
	default:
		return nil, syntaxError("unknown statement type %q", token.Value)
	}
}

func ParseSelect(parser *Parser) (Command, error) {
	var command SelectCommand

	token := parser.lexer.NextToken()
	if token.Type != Wildcard {
		return nil, syntaxError("expected '*' after SELECT, column lists are not supported")
	}

	token = parser.lexer.NextToken()
	if token.Type != From {
		return nil, syntaxError("expected FROM after SELECT *")
	}

	table, err := parser.parseTableName("FROM")
	if err != nil {
		return nil, err
	}
	command.Table = table

	token = parser.lexer.NextToken()
	if token.Type == Where {
		predicates, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		command.Predicates = predicates
		token = parser.lexer.NextToken()
	}

	if err := parser.expectEnd(token); err != nil {
		return nil, err
	}
	return command, nil
}

// ParseWhere parses `<col> = <val> [AND <col> = <val>]*`.
func ParseWhere(parser *Parser) ([]Predicate, error) {
	var predicates []Predicate

	for {
		token := parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, syntaxError("expected column name in WHERE clause at position %d, got %s", token.Pos, token)
		}
		column := token.Value

		token = parser.lexer.NextToken()
		switch token.Type {
		case Equals:
		case NotEquals, LessThan, GreaterThan, LessThanOrEqual, GreaterThanOrEqual, Like, In, Not:
			return nil, syntaxError("only equality predicates are supported, got %q", token.Value)
		default:
			return nil, syntaxError("expected '=' after %s in WHERE clause", column)
		}

		token = parser.lexer.NextToken()
		switch token.Type {
		case String, Number, True, False, Null:
		default:
			return nil, syntaxError("expected value after %s = in WHERE clause at position %d, got %s", column, token.Pos, token)
		}
		value := token.Value
		if token.Type == True || token.Type == False || token.Type == Null {
			value = strings.ToLower(token.Value)
		}

		predicates = append(predicates, Predicate{Column: column, Value: value})

		token = parser.lexer.PeekToken()
		switch token.Type {
		case And:
			parser.lexer.NextToken() // consume AND
			continue
		case Or:
			return nil, syntaxError("OR predicates are not supported")
		}
		return predicates, nil
	}
}

func ParseInsert(parser *Parser) (Command, error) {
	token := parser.lexer.NextToken()
	if token.Type != Into {
		return nil, syntaxError("expected INTO after INSERT")
	}

	table, err := parser.parseTableName("INSERT INTO")
	if err != nil {
		return nil, err
	}

	token = parser.lexer.NextToken()
	if token.Type == ParenOpen || token.Type == Values {
		return nil, syntaxError("INSERT takes its row from the first parameter, not from VALUES")
	}
	if err := parser.expectEnd(token); err != nil {
		return nil, err
	}
	return InsertCommand{Table: table}, nil
}

func ParseUpdate(parser *Parser) (Command, error) {
	table, err := parser.parseTableName("UPDATE")
	if err != nil {
		return nil, err
	}

	command := UpdateCommand{Table: table}

	token := parser.lexer.NextToken()
	if token.Type == Set {
		return nil, syntaxError("UPDATE takes its row from the first parameter, SET is not supported")
	}
	if token.Type == Where {
		predicates, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		command.Where = predicates
		token = parser.lexer.NextToken()
	}

	if err := parser.expectEnd(token); err != nil {
		return nil, err
	}
	return command, nil
}

func ParseDelete(parser *Parser) (Command, error) {
	token := parser.lexer.NextToken()
	if token.Type != From {
		return nil, syntaxError("expected FROM after DELETE")
	}

	table, err := parser.parseTableName("DELETE FROM")
	if err != nil {
		return nil, err
	}

	token = parser.lexer.NextToken()
	if token.Type != Where {
		if err := parser.expectEnd(token); err != nil {
			return nil, err
		}
		return nil, unsafeDelete(table)
	}

	predicates, err := ParseWhere(parser)
	if err != nil {
		return nil, err
	}
	if err := parser.expectEnd(parser.lexer.NextToken()); err != nil {
		return nil, err
	}

	if len(predicates) != 1 || predicates[0].Column != DeleteKeyColumn {
		return nil, unsafeDelete(table)
	}

	return DeleteCommand{Table: table, Predicate: predicates[0]}, nil
}

func (parser *Parser) parseTableName(after string) (string, error) {
	token := parser.lexer.NextToken()
	if token.Type != Identifier {
		return "", syntaxError("expected table name after %s", after)
	}
	if next := parser.lexer.PeekToken(); next.Type == Comma || next.Type == Join {
		return "", syntaxError("queries address a single table, joins are not supported")
	}
	return token.Value, nil
}

// expectEnd accepts an optional trailing semicolon before end of input.
func (parser *Parser) expectEnd(token Token) error {
	if token.Type == Semicolon {
		token = parser.lexer.NextToken()
	}
	if token.Type == EOF {
		return nil
	}
	if token.Type == Or {
		return syntaxError("OR predicates are not supported")
	}
	return syntaxError("unexpected %s at position %d", token, token.Pos)
}

func unsafeDelete(table string) error {
	return errs.Newf(errs.KindUnsafeOperation,
		"DELETE FROM %s requires exactly one WHERE %s = '<value>' predicate", table, DeleteKeyColumn)
}

func syntaxError(format string, args ...any) error {
	return errs.New(errs.KindSyntax, fmt.Sprintf(format, args...))
}
