package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	atlasdb "github.com/nickyhof/AtlasDB"
	"github.com/nickyhof/AtlasDB/config"
	"github.com/nickyhof/AtlasDB/db"
	"github.com/nickyhof/AtlasDB/schema"
	"go.uber.org/zap"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

var errQuit = errors.New("quit")

// CLI is one interactive session against a store.
type CLI struct {
	store   *db.Store
	out     io.Writer
	history *commandHistory
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	engine := flag.String("engine", "", "Storage engine: git, bolt or memory")
	dataDir := flag.String("dataDir", "", "Data directory for the git and bolt engines")
	sqlFile := flag.String("sqlFile", "", "File of queries to execute (non-interactive)")
	userName := flag.String("name", "", "User name for Git commits")
	userEmail := flag.String("email", "", "User email for Git commits")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *engine != "" {
		cfg.Engine = *engine
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *userName != "" {
		cfg.Identity.Name = *userName
	}
	if *userEmail != "" {
		cfg.Identity.Email = *userEmail
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	store, err := atlasdb.Open(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	printBanner()
	fmt.Printf("%sUsing %s engine%s\n", SuccessColor, cfg.Engine, ResetColor)

	cli := &CLI{store: store, out: os.Stdout, history: newCommandHistory()}
	cli.history.load()

	if *sqlFile != "" {
		if err := cli.importFile(*sqlFile); err != nil {
			fatal(err)
		}
		return
	}

	cli.run(os.Stdin)
	if err := cli.history.save(); err != nil {
		logger.Warn("could not save history", zap.Error(err))
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%sError: %v%s\n", ErrorColor, err, ResetColor)
	os.Exit(1)
}

func printBanner() {
	fmt.Println()
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("AtlasDB v%s", Version)
	padding := max(bannerWidth-len(versionLine)-2, 0)
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║   Explorer record store               ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Println("Type .help for commands, .quit to exit")
	fmt.Println()
}

func (cli *CLI) run(in io.Reader) {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(cli.out, cli.getPrompt())

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			fmt.Fprintf(cli.out, "\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, ".") {
			if errors.Is(cli.handleCommand(input), errQuit) {
				fmt.Fprintf(cli.out, "%sGoodbye!%s\n", SuccessColor, ResetColor)
				return
			}
			continue
		}

		cli.history.add(input)
		cli.execute(input)
	}
}

func (cli *CLI) getPrompt() string {
	return fmt.Sprintf("%satlasdb>%s ", PromptColor, ResetColor)
}

func (cli *CLI) fail(format string, args ...any) {
	fmt.Fprintf(cli.out, ErrorColor+"✗ "+format+ResetColor+"\n", args...)
}

func (cli *CLI) ok(format string, args ...any) {
	fmt.Fprintf(cli.out, SuccessColor+"✓ "+format+ResetColor+"\n", args...)
}

// execute runs one line: a query optionally followed by a JSON object
// that becomes the first parameter.
func (cli *CLI) execute(line string) db.Result {
	query, params, err := parseLine(line)
	if err != nil {
		cli.fail("Error: %v", err)
		return db.Result{}
	}

	result := cli.store.Execute(context.Background(), query, params...)
	if result.Success {
		result.Display(cli.out, primaryKeyOf(query))
	} else {
		cli.fail("%s", result.Message)
	}
	return result
}

// parseLine splits `INSERT INTO t {"id":"1"}` into the query and its
// parameter. The JSON object starts at the first '{' outside a quoted
// literal.
func parseLine(line string) (string, []any, error) {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '{':
			raw := json.RawMessage(strings.TrimSpace(line[i:]))
			if !json.Valid(raw) {
				return "", nil, fmt.Errorf("invalid JSON parameter: %s", truncate(string(raw), 40))
			}
			return strings.TrimSpace(line[:i]), []any{raw}, nil
		}
	}
	return line, nil, nil
}

// primaryKeyOf finds the declared primary key of the table a query names,
// so it can be shown as the first column.
func primaryKeyOf(query string) string {
	for _, word := range strings.Fields(query) {
		if table, ok := schema.Default.Table(strings.TrimSuffix(word, ";")); ok {
			return table.PrimaryKey
		}
	}
	return "id"
}

func (cli *CLI) handleCommand(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	ctx := context.Background()
	args := parts[1:]

	// usage is printed when a command gets too few arguments
	need := func(n int, usage string) bool {
		if len(args) < n {
			cli.fail("Usage: %s", usage)
			return false
		}
		return true
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		return errQuit

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".tables":
		cli.showTables(ctx)

	case ".history":
		if len(args) > 0 {
			cli.showTableHistory(ctx, args[0])
		} else {
			cli.printHistory()
		}

	case ".dump":
		if !need(1, ".dump <path|file://|s3://>") {
			break
		}
		if n, err := cli.store.Dump(ctx, args[0]); err != nil {
			cli.fail("Error: %v", err)
		} else {
			cli.ok("Dumped %d record(s) to %s", n, args[0])
		}

	case ".restore":
		if !need(1, ".restore <path|file://|http(s)://|s3://>") {
			break
		}
		if n, err := cli.store.Restore(ctx, args[0]); err != nil {
			cli.fail("Error: %v", err)
		} else {
			cli.ok("Restored %d record(s) from %s", n, args[0])
		}

	case ".revert":
		if !need(2, ".revert <table> <transaction id>") {
			break
		}
		if txn, err := cli.store.Revert(ctx, args[0], args[1]); err != nil {
			cli.fail("Error: %v", err)
		} else {
			cli.ok("Reverted %s (%s)", args[0], truncate(txn.Id, 12))
		}

	case ".import":
		if !need(1, ".import <file>") {
			break
		}
		if err := cli.importFile(args[0]); err != nil {
			cli.fail("Error: %v", err)
		}

	case ".clear", ".cls":
		fmt.Fprint(cli.out, "\033[H\033[2J")

	case ".version":
		fmt.Fprintf(cli.out, "AtlasDB version %s\n", Version)

	default:
		cli.fail("Unknown command: %s (type .help for commands)", parts[0])
	}

	return nil
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  .help, .h          Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit       Exit the CLI")
	fmt.Fprintln(cli.out, "  .tables            List tables")
	fmt.Fprintln(cli.out, "  .history [table]   Show a table's transactions, or command history")
	fmt.Fprintln(cli.out, "  .dump <url>        Write every table to a file or s3:// URL")
	fmt.Fprintln(cli.out, "  .restore <url>     Upsert every row of a dump")
	fmt.Fprintln(cli.out, "  .revert <t> <id>   Move a table back to one of its transactions")
	fmt.Fprintln(cli.out, "  .import <file>     Execute queries from a file, one per line")
	fmt.Fprintln(cli.out, "  .clear             Clear the screen")
	fmt.Fprintln(cli.out, "  .version           Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sQueries:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  SELECT * FROM <table> [WHERE <col> = '<val>' [AND ...]]")
	fmt.Fprintln(cli.out, `  INSERT INTO <table> {"id": "...", ...}`)
	fmt.Fprintln(cli.out, `  UPDATE <table> {"id": "...", ...}`)
	fmt.Fprintln(cli.out, "  DELETE FROM <table> WHERE id = '<val>'")
	fmt.Fprintln(cli.out)
}

func (cli *CLI) showTables(ctx context.Context) {
	tables, err := cli.store.Tables(ctx)
	if err != nil {
		cli.fail("Error: %v", err)
		return
	}

	table := db.NewTable(cli.out)
	table.Header([]string{"table", "primary key", "indexes"})
	for _, t := range tables {
		var indexes []string
		for _, idx := range t.Indexes {
			indexes = append(indexes, fmt.Sprintf("%s(%s)", idx.Name, idx.Column))
		}
		table.Row([]string{t.Name, t.PrimaryKey, strings.Join(indexes, ", ")})
	}
	table.Render()
}

func (cli *CLI) showTableHistory(ctx context.Context, name string) {
	history, err := cli.store.History(ctx, name, 20)
	if err != nil {
		cli.fail("Error: %v", err)
		return
	}
	if len(history) == 0 {
		fmt.Fprintln(cli.out, "No transactions recorded")
		return
	}

	table := db.NewTable(cli.out)
	table.Header([]string{"id", "when", "author", "message"})
	for _, txn := range history {
		table.Row([]string{
			truncate(txn.Id, 12),
			txn.When.Format("2006-01-02 15:04:05"),
			txn.Author,
			strings.TrimSpace(txn.Message),
		})
	}
	table.Render()
}

func (cli *CLI) printHistory() {
	lines, first := cli.history.recent(20)
	if len(lines) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}
	for i, line := range lines {
		fmt.Fprintf(cli.out, "  %3d  %s\n", first+i, line)
	}
}

// importFile executes one query per line. Blank lines and lines starting
// with -- are skipped. A failing line is reported and the import goes on.
func (cli *CLI) importFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer file.Close()

	var succeeded, failed int
	report := func(lineNo int, line string, err error) {
		failed++
		cli.fail("[%d] %s", lineNo, truncate(line, 50))
		fmt.Fprintf(cli.out, "      Error: %v\n", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		query, params, err := parseLine(line)
		if err != nil {
			report(lineNo, line, err)
			continue
		}
		result := cli.store.Execute(context.Background(), query, params...)
		if !result.Success {
			report(lineNo, line, result.Err())
			continue
		}
		succeeded++
		cli.ok("[%d] %s (%s)", lineNo, truncate(line, 50), result.Message)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	fmt.Fprintln(cli.out)
	cli.ok("Import complete: %d succeeded, %d failed", succeeded, failed)
	return nil
}

// truncate flattens s onto one line and cuts it to at most n bytes.
func truncate(s string, n int) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
