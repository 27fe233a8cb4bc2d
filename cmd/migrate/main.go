// Command migrate manages the finledger schema and seed data.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&migrateCmd{}, "schema")
	commander.Register(&dropCmd{}, "schema")
	commander.Register(&seedCmd{}, "data")
	commander.Register(&populateCmd{}, "data")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
