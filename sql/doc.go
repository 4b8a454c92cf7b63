// Package sql provides lexing and parsing for the AtlasDB query subset.
//
// The lexer tokenizes a query string and the parser turns it into a typed
// command. The grammar is deliberately small:
//
//	SELECT * FROM <table> [WHERE <col> = '<val>' [AND <col> = '<val>']*]
//	INSERT INTO <table>
//	UPDATE <table> [WHERE ...]
//	DELETE FROM <table> WHERE id = '<val>'
//
// There is no OR, no range operator, no join and no column list; each of
// those is rejected with a syntax error rather than silently ignored.
// INSERT and UPDATE carry no values in the query text: the row is bound
// from the first execution parameter.
//
// # Lexer Usage
//
//	lexer := sql.NewLexer("SELECT * FROM saved_items")
//	for {
//	    token := lexer.NextToken()
//	    if token.Type == sql.EOF {
//	        break
//	    }
//	    fmt.Println(token)
//	}
//
// # Parser Usage
//
//	command, err := sql.Parse("SELECT * FROM saved_items WHERE type = 'Country'")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	selectCommand := command.(sql.SelectCommand)
package sql
