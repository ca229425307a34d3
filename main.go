package main

import (
	"fmt"
	"os"

	"github.com/Screamnox/sarchura/crypt"
	"github.com/Screamnox/sarchura/installer"
	"github.com/Screamnox/sarchura/schema"
	"github.com/Screamnox/sarchura/state"
	"github.com/urfave/cli/v2"
)

var version = "v0.0.0-dev"

func main() {
	app := &cli.App{
		Name:    "sarchura",
		Version: version,
		Usage:   "provision encrypted LVM Arch Linux systems",
		Commands: assembleCommands(
			installer.CliCommands(),
			schema.CliCommands(),
			state.CliCommands(),
			crypt.CliCommands(),
		),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func assembleCommands(groups ...[]*cli.Command) []*cli.Command {
	var commands []*cli.Command
	for _, g := range groups {
		commands = append(commands, g...)
	}
	return commands
}
