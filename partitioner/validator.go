package partitioner

import (
	"github.com/Screamnox/sarchura/block"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
)

// Validate is the destructive-operation guard in front of the pipeline. It
// checks the target exists as a block device, carries no active mounts and
// that the plan confirms the erase explicitly. Pure checks, no side effects.
func Validate(c *config.Config) error {
	plan := c.Plan
	paths := block.NewPaths("")

	disk := block.GetDiskByDevice(paths, plan.Device, &c.Logger)
	if disk == nil {
		return &types.DeviceNotFoundError{Device: plan.Device}
	}

	if points := block.MountedPoints(paths, plan.Device, &c.Logger); len(points) > 0 {
		return &types.AlreadyMountedError{Device: plan.Device, MountPoints: points}
	}

	if !plan.Confirmed() {
		return &types.NotConfirmedError{Device: plan.Device}
	}

	c.Logger.Logger.Info().Str("device", plan.Device).Uint64("size", disk.SizeBytes).Msg("Target device validated")
	return nil
}
