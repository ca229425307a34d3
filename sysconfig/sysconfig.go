// Package sysconfig turns a mounted, bootstrapped target tree into a system
// that boots on its own: fstab and crypttab, identity and locale, initramfs
// and bootloader, users and staged first-boot configuration.
package sysconfig

import (
	"fmt"

	"github.com/Screamnox/sarchura/chroot"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
)

// Apply writes the full system configuration into the target hierarchy. The
// filesystems must be mounted and the base system bootstrapped before this
// runs, everything here assumes working binaries inside the target.
func Apply(c *config.Config, table *types.PartitionTable, volume *types.EncryptedVolume) error {
	targetRoot := c.Plan.InstallRoot
	system := c.Plan.System
	if system == nil {
		system = &types.SystemConfig{}
	}

	entries, err := FstabEntries(c, table)
	if err != nil {
		return fmt.Errorf("deriving fstab: %w", err)
	}
	if err := WriteFstab(c, targetRoot, entries); err != nil {
		return fmt.Errorf("writing fstab: %w", err)
	}
	if err := WriteCrypttab(c, targetRoot, volume); err != nil {
		return fmt.Errorf("writing crypttab: %w", err)
	}

	root := chroot.NewChroot(targetRoot, c)
	if err := root.Prepare(); err != nil {
		return fmt.Errorf("preparing chroot: %w", err)
	}
	defer func() {
		if err := root.Close(); err != nil {
			c.Logger.Logger.Error().Err(err).Msg("Releasing chroot mounts failed")
		}
	}()

	if err := applyIdentity(c, targetRoot, system, root); err != nil {
		return fmt.Errorf("configuring identity: %w", err)
	}
	if err := applyBoot(c, targetRoot, volume, system, root); err != nil {
		return fmt.Errorf("configuring boot: %w", err)
	}
	if err := applyUsers(c, targetRoot, system.Users, root); err != nil {
		return fmt.Errorf("creating users: %w", err)
	}
	if err := stageCloudInit(c, targetRoot, system.CloudInit); err != nil {
		return fmt.Errorf("staging cloud-init: %w", err)
	}

	c.Logger.Logger.Info().Str("root", targetRoot).Msg("System configuration applied")
	return nil
}
