package crypt

import (
	"github.com/Screamnox/sarchura/types"
	"github.com/urfave/cli/v2"
)

func CliCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "unlock",
			Usage: "open every LUKS partition a discovery plugin can provide a passphrase for",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
			},
			Action: func(cCtx *cli.Context) error {
				level := "info"
				if cCtx.Bool("debug") {
					level = "debug"
				}
				logger := types.NewSarchuraLogger("unlock", level, false)
				return UnlockAll(logger)
			},
		},
	}
}
