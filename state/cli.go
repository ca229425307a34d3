package state

import (
	"fmt"

	"github.com/Screamnox/sarchura/types"
	"github.com/urfave/cli/v2"
)

func CliCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "state",
			Usage:     "print the host runtime state, optionally reduced with a jq expression",
			ArgsUsage: "[query]",
			Action: func(cCtx *cli.Context) error {
				logger := types.NewSarchuraLogger("state", "info", false)
				runtime, err := NewRuntime(&logger)
				if err != nil {
					return err
				}

				if cCtx.NArg() == 0 {
					fmt.Print(runtime.String())
					return nil
				}

				res, err := runtime.Query(cCtx.Args().First())
				if err != nil {
					return err
				}
				fmt.Println(res)
				return nil
			},
		},
	}
}
