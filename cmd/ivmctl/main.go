// Package main is the ivmctl command-line tool: a thin cobra front end over
// pkg/engine for driving one-shot analyzer runs against a SQLite replica
// from the shell, without a running sync server.
//
// Grounded on Pieczasz-smf's cmd/smf/main.go (flag structs per subcommand,
// RunE closures, os.Exit(1) on a top-level error), replacing the teacher's
// flag-less cmd/relational-db/main.go.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syncbase/ivmcore/internal/analyzer"
	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/config"
	"github.com/syncbase/ivmcore/internal/row"
	"github.com/syncbase/ivmcore/pkg/engine"
)

type analyzeFlags struct {
	sqlitePath   string
	schemaFiles  []string
	queryFile    string
	readRows     bool
	syncedRows   bool
	planDebugger bool
	maxJoinTables int
	out          string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ivmctl",
		Short: "Drive the IVM core's query planner and analyzer from the shell",
	}

	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a query AST read-only against a SQLite replica and print diagnostics",
		Long: `analyze loads one or more table schemas and a query AST from JSON files,
plans the query against a SQLite replica, and prints the analyzer's
diagnostics (synced row count, read row counts, captured EXPLAIN QUERY PLAN
output, and the planner's join decisions) as JSON.

Example:
  ivmctl analyze --sqlite ./data/replica.db \
    --schema messages.schema.json --schema users.schema.json \
    --query query.json --read-rows --synced-rows`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runAnalyze(flags)
		},
	}

	cmd.Flags().StringVar(&flags.sqlitePath, "sqlite", "./data/replica.db", "Path to the SQLite replica (\":memory:\" for an in-memory one)")
	cmd.Flags().StringArrayVar(&flags.schemaFiles, "schema", nil, "Path to a table schema JSON file (repeatable)")
	cmd.Flags().StringVar(&flags.queryFile, "query", "", "Path to the query AST JSON file (required)")
	cmd.Flags().BoolVar(&flags.readRows, "read-rows", false, "Collect per-table read-row counts and captured EXPLAIN QUERY PLAN output")
	cmd.Flags().BoolVar(&flags.syncedRows, "synced-rows", false, "Include the synced rows themselves in the result")
	cmd.Flags().BoolVar(&flags.planDebugger, "plan-debugger", false, "Capture the planner's join-decision trace")
	cmd.Flags().IntVar(&flags.maxJoinTables, "max-join-tables", 0, "Override the configured max-join-tables bound (0 keeps the default)")
	cmd.Flags().StringVarP(&flags.out, "output", "o", "", "Write the JSON result here instead of stdout")

	return cmd
}

func runAnalyze(flags *analyzeFlags) error {
	if flags.queryFile == "" {
		return fmt.Errorf("--query is required")
	}
	if len(flags.schemaFiles) == 0 {
		return fmt.Errorf("at least one --schema is required")
	}

	cfg := config.Default()
	cfg.SQLite.Path = flags.sqlitePath
	if flags.maxJoinTables > 0 {
		cfg.CostModel.MaxJoinTables = flags.maxJoinTables
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
	}()

	for _, path := range flags.schemaFiles {
		schema, err := loadSchema(path)
		if err != nil {
			return err
		}
		if err := eng.RegisterTable(schema); err != nil {
			return err
		}
	}

	q, err := loadQuery(flags.queryFile)
	if err != nil {
		return err
	}

	result, err := eng.Query(q, analyzerOptionsFrom(flags))
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	return writeJSON(result, flags.out)
}

func analyzerOptionsFrom(flags *analyzeFlags) analyzer.RunOptions {
	return analyzer.RunOptions{
		SyncedRows:   flags.syncedRows,
		ReadRows:     flags.readRows,
		PlanDebugger: flags.planDebugger,
	}
}

func loadSchema(path string) (*row.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	var schema row.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	return &schema, nil
}

func loadQuery(path string) (*ast.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query %s: %w", path, err)
	}
	var q ast.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parsing query %s: %w", path, err)
	}
	return &q, nil
}

func writeJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result to %s: %w", path, err)
	}
	fmt.Printf("result written to %s\n", path)
	return nil
}
