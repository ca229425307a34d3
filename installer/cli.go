package installer

import (
	"fmt"
	"os"

	"github.com/Screamnox/sarchura/collector"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/loop"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/utils"
	"github.com/urfave/cli/v2"
)

var (
	deviceFlag *cli.StringFlag = &cli.StringFlag{
		Name:  "device",
		Usage: "target disk, overrides the collected plan",
	}

	confirmFlag *cli.StringFlag = &cli.StringFlag{
		Name:  "confirm-erase",
		Usage: "repeat the device path to confirm its content may be destroyed",
	}

	sourceDirFlag *cli.StringSliceFlag = &cli.StringSliceFlag{
		Name:  "source",
		Usage: "directory to scan for configuration (repeatable)",
	}

	cmdlineFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:  "cmdline",
		Usage: "merge configuration from the kernel command line",
	}

	debugFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "verbose logging",
	}

	sizeFlag *cli.UintFlag = &cli.UintFlag{
		Name:  "size",
		Value: 32 * 1024,
		Usage: "image size in MiB",
	}

	azureFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:  "azure",
		Usage: "convert the result to an Azure VHD",
	}

	gceFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:  "gce",
		Usage: "convert the result to a GCE tarball",
	}
)

func scanConfig(cCtx *cli.Context) (*config.Config, error) {
	level := "info"
	if cCtx.Bool(debugFlag.Name) {
		level = "debug"
	}
	logger := types.NewSarchuraLogger("sarchura", level, false)

	collectorOpts := []collector.Option{}
	if dirs := cCtx.StringSlice(sourceDirFlag.Name); len(dirs) > 0 {
		collectorOpts = append(collectorOpts, collector.Directories(dirs...))
	}
	if cCtx.Bool(cmdlineFlag.Name) {
		collectorOpts = append(collectorOpts, collector.MergeBootLine)
	}

	cfg, err := config.Scan([]config.Option{config.WithLogger(logger)}, collectorOpts...)
	if err != nil {
		return nil, err
	}
	cfg.Debug = cCtx.Bool(debugFlag.Name)

	if device := cCtx.String(deviceFlag.Name); device != "" {
		cfg.Plan.Device = device
	}
	if confirm := cCtx.String(confirmFlag.Name); confirm != "" {
		cfg.Plan.ConfirmErase = confirm
	}
	return cfg, nil
}

func CliCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "install",
			Usage: "provision a disk according to the collected plan",
			Flags: []cli.Flag{deviceFlag, confirmFlag, sourceDirFlag, cmdlineFlag, debugFlag},
			Action: func(cCtx *cli.Context) error {
				cfg, err := scanConfig(cCtx)
				if err != nil {
					return err
				}

				if err := New(cfg).Run(cCtx.Context); err != nil {
					return err
				}

				if cfg.Plan.Reboot {
					utils.Reboot()
				}
				if cfg.Plan.Poweroff {
					utils.PowerOFF()
				}
				return nil
			},
		},
		{
			Name:      "image",
			Usage:     "provision a raw disk image through a loop device",
			ArgsUsage: "<image-file>",
			Flags:     []cli.Flag{sizeFlag, confirmFlag, sourceDirFlag, cmdlineFlag, debugFlag, azureFlag, gceFlag},
			Action: func(cCtx *cli.Context) error {
				if cCtx.NArg() != 1 {
					return fmt.Errorf("expected exactly one image file")
				}
				img := cCtx.Args().First()

				cfg, err := scanConfig(cCtx)
				if err != nil {
					return err
				}

				size := int64(cCtx.Uint(sizeFlag.Name)) * constants.MiB
				f, err := os.OpenFile(img, os.O_CREATE|os.O_WRONLY, constants.FilePerm)
				if err != nil {
					return fmt.Errorf("creating image %s: %w", img, err)
				}
				if err := f.Truncate(size); err != nil {
					f.Close()
					return fmt.Errorf("sizing image %s: %w", img, err)
				}
				f.Close()

				device, err := loop.Loop(img, false, cfg.Logger)
				if err != nil {
					return err
				}
				defer func() {
					if err := loop.Unloop(device, cfg.Logger); err != nil {
						cfg.Logger.Logger.Error().Err(err).Str("device", device).Msg("Detaching loop device failed")
					}
				}()

				// The image is ours, attach counts as consent to erase it.
				cfg.Plan.Device = device
				cfg.Plan.ConfirmErase = device

				if err := New(cfg).Run(cCtx.Context); err != nil {
					return err
				}

				if cCtx.Bool(azureFlag.Name) {
					if err := utils.Raw2Azure(img, cfg.Logger); err != nil {
						return err
					}
				}
				if cCtx.Bool(gceFlag.Name) {
					if err := utils.Raw2Gce(img, cfg.Fs, cfg.Logger); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
