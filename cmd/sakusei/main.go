package main

import (
	"fmt"
	"io"
	"os"
)

var version = "dev"

var (
	stdout io.Writer = os.Stdout // nolint:gochecknoglobals
	stderr io.Writer = os.Stderr // nolint:gochecknoglobals
)

var commands = map[string]func([]string) error{ // nolint:gochecknoglobals
	"generate": runGenerate,
	"files":    runFiles,
	"clean":    runClean,
	"status":   runStatus,
	"up":       runUp,
	"down":     runDown,
	"watch":    runWatch,
}

func usage() {
	fmt.Fprintf(stderr, `sakusei - SQL migration file generator (version %s)

Usage:
  sakusei <command> [options]

Commands:
  generate   Generate migration files from schema definitions
  files      List the files generated for every schema
  clean      Remove generated migration files
  status     Show applied, pending, missing and modified migrations
  up         Apply pending migrations
  down       Revert a schema to a version
  watch      Regenerate migration files when definitions change
  version    Print the version

Settings are read from .env and SAKUSEI_* environment variables;
flags override them. Run 'sakusei <command> -h' for command-specific help.
`, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	cmd := args[0]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		return 0
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Fprintln(stdout, version)
		return 0
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n\n", cmd)
		usage()
		return 1
	}

	if err := fn(args[1:]); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
