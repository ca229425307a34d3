// Package filesystem formats the provisioned targets and assembles the
// mount hierarchy under the installation root. Formatting is strictly
// once per target, and any mounts this stage performed are unwound in
// reverse order when it fails.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/hashicorp/go-multierror"
)

// Provisioner tracks what this run formatted and mounted so failures can be
// unwound without ever touching third-party state.
type Provisioner struct {
	cfg       *config.Config
	formatted map[string]bool
	mounted   []types.MountPoint
}

func NewProvisioner(cfg *config.Config) *Provisioner {
	return &Provisioner{cfg: cfg, formatted: map[string]bool{}}
}

// Provision formats every target and mounts the plan in order. On any
// failure the mounts already made are rolled back before the error surfaces,
// leaving the system as it was when the stage began.
func (p *Provisioner) Provision(table *types.PartitionTable, plan types.MountPlan) error {
	esp := table.ESP()
	if esp == nil {
		return fmt.Errorf("partition table on %s has no ESP", table.Device)
	}

	if err := p.Format(esp.Path, constants.ESPFs, constants.ESPLabel); err != nil {
		return err
	}
	if err := p.Format(p.cfg.Plan.RootDevice(), p.cfg.Plan.Filesystems.Root, constants.RootVolume); err != nil {
		return err
	}
	if err := p.Format(p.cfg.Plan.HomeDevice(), p.cfg.Plan.Filesystems.Home, constants.HomeVolume); err != nil {
		return err
	}

	return p.MountAll(plan)
}

// Format creates the filesystem on a target. Asking twice for the same
// target is a caller bug and fails loudly instead of silently reformatting.
func (p *Provisioner) Format(target, fs, label string) error {
	if p.formatted[target] {
		return &types.FormatError{Target: target, FS: fs,
			Err: fmt.Errorf("%s was already formatted in this run", target)}
	}

	var args []string
	switch fs {
	case constants.ESPFs:
		args = []string{"mkfs.vfat", "-F", "32", "-n", label, target}
	case "ext4":
		args = []string{"mkfs.ext4", "-F", "-L", label, target}
	case "xfs":
		args = []string{"mkfs.xfs", "-f", "-L", label, target}
	default:
		return &types.FormatError{Target: target, FS: fs, Err: fmt.Errorf("unsupported filesystem %q", fs)}
	}

	p.cfg.Logger.Logger.Info().Str("target", target).Str("fs", fs).Msg("Formatting")
	if out, err := p.cfg.Runner.Run(args[0], args[1:]...); err != nil {
		return &types.FormatError{Target: target, FS: fs, Err: fmt.Errorf("%w: %s", err, string(out))}
	}

	p.formatted[target] = true
	return nil
}

// MountAll mounts the plan parents-first. A failed mount unwinds whatever
// this call already mounted, in reverse order, before the error is returned.
func (p *Provisioner) MountAll(plan types.MountPlan) error {
	for _, point := range plan.ByMountOrder() {
		target := filepath.Join(plan.Root, point.Target)
		p.cfg.Logger.Logger.Info().Str("source", point.Source).Str("target", target).Msg("Mounting")

		if err := os.MkdirAll(target, constants.DirPerm); err != nil {
			return p.unwindAfter(&types.MountError{Source: point.Source, Target: target, Err: err})
		}
		if err := p.cfg.Mounter.Mount(point.Source, target, point.FSType, point.Options); err != nil {
			return p.unwindAfter(&types.MountError{Source: point.Source, Target: target, Err: err})
		}

		mounted := point
		mounted.Target = target
		p.mounted = append(p.mounted, mounted)
	}
	return nil
}

// UnmountAll releases everything this provisioner mounted, children first.
func (p *Provisioner) UnmountAll() error {
	var result *multierror.Error
	for i := len(p.mounted) - 1; i >= 0; i-- {
		point := p.mounted[i]
		p.cfg.Logger.Logger.Info().Str("target", point.Target).Msg("Unmounting")
		if err := p.cfg.Mounter.Unmount(point.Target); err != nil {
			result = multierror.Append(result, &types.MountError{Source: point.Source, Target: point.Target, Err: err})
		}
	}
	p.mounted = nil
	return result.ErrorOrNil()
}

// Mounted returns the mounts performed so far, in mount order.
func (p *Provisioner) Mounted() []types.MountPoint {
	points := make([]types.MountPoint, len(p.mounted))
	copy(points, p.mounted)
	return points
}

func (p *Provisioner) unwindAfter(cause error) error {
	if err := p.UnmountAll(); err != nil {
		p.cfg.Logger.Logger.Error().Err(err).Msg("Unwind after mount failure left mounts behind")
		return multierror.Append(cause, err)
	}
	return cause
}
