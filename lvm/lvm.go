// Package lvm layers the volume group with the root and home volumes over
// the opened encrypted device. Sizing is done in extents, checked against
// the group's free extents before any volume is created.
package lvm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
)

// Setup registers the mapped device as a physical volume, creates the
// volume group and carves out root and home. Root is created first with its
// fixed size so the remainder home consumes is well defined.
func Setup(c *config.Config, volume *types.EncryptedVolume) (*types.VolumeGroup, error) {
	plan := c.Plan
	device := volume.MappedPath()
	vgName := plan.VolumeGroup
	log := c.Logger.Logger.With().Str("vg", vgName).Str("pv", device).Logger()

	log.Info().Msg("Creating physical volume")
	if out, err := c.Runner.Run("pvcreate", "--force", device); err != nil {
		return nil, fmt.Errorf("pvcreate on %s: %w: %s", device, err, string(out))
	}

	log.Info().Msg("Creating volume group")
	extentArg := fmt.Sprintf("%db", constants.LVMExtentBytes)
	if out, err := c.Runner.Run("vgcreate", "--physicalextentsize", extentArg, vgName, device); err != nil {
		return nil, fmt.Errorf("vgcreate %s: %w: %s", vgName, err, string(out))
	}

	group, err := readGroup(c, vgName, device)
	if err != nil {
		return nil, err
	}

	rootExtents := extentsFor(uint64(plan.RootSizeMiB)*uint64(constants.MiB), group.ExtentSize)
	if rootExtents > group.FreeExtents {
		return nil, &types.InsufficientSpaceError{
			VolumeGroup:      vgName,
			Volume:           constants.RootVolume,
			RequestedExtents: rootExtents,
			FreeExtents:      group.FreeExtents,
		}
	}

	homeExtents, err := homeExtents(plan, group.FreeExtents-rootExtents, group.ExtentSize)
	if err != nil {
		return nil, err
	}

	log.Info().Uint64("extents", rootExtents).Msg("Creating root volume")
	if out, err := c.Runner.Run("lvcreate", "--yes", "-l", strconv.FormatUint(rootExtents, 10),
		"-n", constants.RootVolume, vgName); err != nil {
		return nil, fmt.Errorf("lvcreate %s/%s: %w: %s", vgName, constants.RootVolume, err, string(out))
	}

	log.Info().Uint64("extents", homeExtents).Msg("Creating home volume")
	homeSize := "100%FREE"
	if plan.Home.Policy == types.HomeFullMinusReserve {
		homeSize = strconv.FormatUint(homeExtents, 10)
	}
	if out, err := c.Runner.Run("lvcreate", "--yes", "-l", homeSize,
		"-n", constants.HomeVolume, vgName); err != nil {
		return nil, fmt.Errorf("lvcreate %s/%s: %w: %s", vgName, constants.HomeVolume, err, string(out))
	}

	if out, err := c.Runner.Run("vgchange", "-ay", vgName); err != nil {
		return nil, fmt.Errorf("activating %s: %w: %s", vgName, err, string(out))
	}

	group.Volumes = []types.LogicalVolume{
		{Name: constants.RootVolume, VolumeGroup: vgName, Extents: rootExtents, FS: plan.Filesystems.Root},
		{Name: constants.HomeVolume, VolumeGroup: vgName, Extents: homeExtents, FS: plan.Filesystems.Home},
	}
	group.FreeExtents -= rootExtents + homeExtents
	return group, nil
}

// Deactivate takes every volume of the group offline. Used on teardown and
// on the failure path before closing the encrypted mapping.
func Deactivate(c *config.Config, vgName string) error {
	if out, err := c.Runner.Run("vgchange", "-an", vgName); err != nil {
		return fmt.Errorf("deactivating %s: %w: %s", vgName, err, string(out))
	}
	return nil
}

// Remove drops the whole group and its physical volume. Destructive, only
// for explicit cleanup commands, the pipeline never rolls back this far.
func Remove(c *config.Config, vgName, device string) error {
	if out, err := c.Runner.Run("vgremove", "--force", vgName); err != nil {
		return fmt.Errorf("vgremove %s: %w: %s", vgName, err, string(out))
	}
	if out, err := c.Runner.Run("pvremove", "--force", device); err != nil {
		return fmt.Errorf("pvremove %s: %w: %s", device, err, string(out))
	}
	return nil
}

// homeExtents applies the remainder policy. With a reserve the deduction is
// rounded up to whole extents, and home must still end up with at least one.
func homeExtents(plan *types.InstallPlan, remaining, extentSize uint64) (uint64, error) {
	if plan.Home.Policy == types.HomeFull {
		if remaining == 0 {
			return 0, &types.InsufficientSpaceError{
				VolumeGroup:      plan.VolumeGroup,
				Volume:           constants.HomeVolume,
				RequestedExtents: 1,
				FreeExtents:      remaining,
			}
		}
		return remaining, nil
	}

	reserve := extentsFor(uint64(plan.Home.ReserveMiB)*uint64(constants.MiB), extentSize)
	if remaining <= reserve {
		return 0, &types.InsufficientSpaceError{
			VolumeGroup:      plan.VolumeGroup,
			Volume:           constants.HomeVolume,
			RequestedExtents: reserve + 1,
			FreeExtents:      remaining,
		}
	}
	return remaining - reserve, nil
}

// extentsFor rounds a byte size up to whole extents.
func extentsFor(bytes, extentSize uint64) uint64 {
	return (bytes + extentSize - 1) / extentSize
}

// readGroup asks vgs for the extent geometry of a freshly created group.
func readGroup(c *config.Config, vgName, device string) (*types.VolumeGroup, error) {
	out, err := c.Runner.Run("vgs", "--noheadings", "--nosuffix", "--units", "b",
		"--separator", ":", "-o", "vg_extent_size,vg_extent_count,vg_free_count", vgName)
	if err != nil {
		return nil, fmt.Errorf("reading extents of %s: %w: %s", vgName, err, string(out))
	}

	fields := strings.Split(strings.TrimSpace(string(out)), ":")
	if len(fields) != 3 {
		return nil, fmt.Errorf("unexpected vgs output for %s: %q", vgName, string(out))
	}

	values := make([]uint64, 3)
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing vgs field %q for %s: %w", f, vgName, err)
		}
		values[i] = v
	}

	return &types.VolumeGroup{
		Name:         vgName,
		PhysicalVol:  device,
		ExtentSize:   values[0],
		TotalExtents: values[1],
		FreeExtents:  values[2],
	}, nil
}
