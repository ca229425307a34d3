package schema

import (
	"fmt"
	"os"

	"github.com/Screamnox/sarchura/collector"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	sourceFlag *cli.StringSliceFlag = &cli.StringSliceFlag{
		Name:  "source",
		Usage: "directory to scan for configuration (repeatable)",
	}

	cmdlineFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:  "cmdline",
		Usage: "merge configuration from the kernel command line",
	}
)

func collectorOptions(cCtx *cli.Context) []collector.Option {
	opts := []collector.Option{collector.NoLogs}
	if dirs := cCtx.StringSlice(sourceFlag.Name); len(dirs) > 0 {
		opts = append(opts, collector.Directories(dirs...))
	}
	if cCtx.Bool(cmdlineFlag.Name) {
		opts = append(opts, collector.MergeBootLine)
	}
	return opts
}

func CliCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "plan",
			Usage: "inspect and validate the install plan",
			Subcommands: []*cli.Command{
				{
					Name:  "show",
					Usage: "print the effective plan with defaults filled in",
					Flags: []cli.Flag{sourceFlag, cmdlineFlag},
					Action: func(cCtx *cli.Context) error {
						cfg, err := config.Scan(nil, collectorOptions(cCtx)...)
						if err != nil {
							return err
						}
						if err := cfg.Plan.Sanitize(); err != nil {
							return err
						}
						out, err := yaml.Marshal(cfg.Plan)
						if err != nil {
							return err
						}
						fmt.Print(string(out))
						return nil
					},
				},
				{
					Name:      "validate",
					Usage:     "check a plan file against the schema",
					ArgsUsage: "<plan.yaml>",
					Action: func(cCtx *cli.Context) error {
						if cCtx.NArg() != 1 {
							return fmt.Errorf("expected exactly one plan file")
						}
						data, err := os.ReadFile(cCtx.Args().First())
						if err != nil {
							return err
						}
						if err := Validate(data); err != nil {
							return err
						}
						fmt.Println("plan is valid")
						return nil
					},
				},
				{
					Name:  "schema",
					Usage: "print the JSON schema of the plan",
					Action: func(cCtx *cli.Context) error {
						out, err := GenerateSchema()
						if err != nil {
							return err
						}
						fmt.Println(out)
						return nil
					},
				},
			},
		},
	}
}
