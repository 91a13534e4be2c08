package main

import (
	"flag"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/root-talis/sakusei"
	"github.com/root-talis/sakusei/schema"
)

type generateResult struct {
	Report *sakusei.Report       `json:"report"`
	Revert *sakusei.RevertReport `json:"revert,omitempty"`
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	dryRun := fs.Bool("dry-run", false, "Report what would change without writing files")
	revert := fs.Bool("revert", false, "Also write revert (.down.sql) files")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: sakusei generate [options]

Generate the root and per-version migration files of every schema and
print a JSON report of what changed.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := opts.setup()
	if err != nil {
		return err
	}

	tables, err := s.loadTables(opts.schema)
	if err != nil {
		return err
	}

	results, err := generateAll(s.generator, tables, *dryRun, *revert)
	if err != nil {
		return err
	}

	return printJSON(results)
}

// generateAll runs one goroutine per schema; a schema directory is never
// touched by two goroutines.
func generateAll(gen *sakusei.Generator, tables []schema.Table, dryRun, revert bool) (map[string]generateResult, error) {
	results := make([]generateResult, len(tables))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range tables {
		i := i
		g.Go(func() error {
			table := &tables[i]

			report, err := gen.CreateMigrationFiles(table, dryRun)
			if err != nil {
				return err
			}
			results[i].Report = report

			if revert {
				revertReport, err := gen.CreateRevertMigrationFiles(table, dryRun)
				if err != nil {
					return err
				}
				results[i].Revert = revertReport
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	byClass := make(map[string]generateResult, len(tables))
	for i, table := range tables {
		byClass[table.ClassName] = results[i]
	}
	return byClass, nil
}

func runFiles(args []string) error {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := opts.setup()
	if err != nil {
		return err
	}

	tables, err := s.loadTables(opts.schema)
	if err != nil {
		return err
	}

	result := make(map[string]sakusei.SQLFiles, len(tables))
	for i := range tables {
		result[tables[i].ClassName] = s.generator.AllSQLFiles(&tables[i])
	}

	return printJSON(result)
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	dryRun := fs.Bool("dry-run", false, "Only log what would be removed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := opts.setup()
	if err != nil {
		return err
	}

	tables, err := s.loadTables(opts.schema)
	if err != nil {
		return err
	}

	for i := range tables {
		if err := s.generator.RemoveAllMigrationFiles(&tables[i], *dryRun); err != nil {
			return err
		}
	}

	return nil
}
