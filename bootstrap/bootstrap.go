// Package bootstrap lands the base system inside the mounted target
// hierarchy, either by delegating to pacstrap or by unpacking a root
// filesystem from a container image, a tarball, a directory or an ISO.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Screamnox/sarchura/iso"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
)

// Run installs the base system into targetRoot following the plan's
// bootstrap section. With no source configured, pacstrap installs the
// package list verbatim; which packages land there is the plan author's
// business, not ours.
func Run(ctx context.Context, c *config.Config, targetRoot string) error {
	spec := c.Plan.Bootstrap
	if spec == nil {
		c.Logger.Logger.Info().Msg("No bootstrap configured, leaving the target empty")
		return nil
	}

	if spec.Source == "" {
		return pacstrap(ctx, c, targetRoot, spec.Packages)
	}

	src, err := types.NewSrcFromURI(spec.Source)
	if err != nil {
		return fmt.Errorf("parsing bootstrap source %q: %w", spec.Source, err)
	}

	log := c.Logger.Logger.With().Str("source", src.String()).Str("target", targetRoot).Logger()
	switch {
	case src.IsOCI():
		log.Info().Msg("Unpacking container image rootfs")
		return unpackImage(ctx, c, src.Value(), targetRoot)
	case src.IsFile():
		log.Info().Msg("Unpacking rootfs tarball")
		return unpackTarball(ctx, c, src.Value(), targetRoot)
	case src.IsDir():
		log.Info().Msg("Syncing rootfs directory")
		return syncDir(c, src.Value(), targetRoot)
	case src.IsISO():
		log.Info().Msg("Extracting rootfs from ISO")
		return unpackFromISO(ctx, c, src.Value(), spec.ISOPath, targetRoot)
	default:
		return fmt.Errorf("unsupported bootstrap source %q", spec.Source)
	}
}

func pacstrap(ctx context.Context, c *config.Config, targetRoot string, packages []string) error {
	if len(packages) == 0 {
		packages = []string{"base", "linux", "linux-firmware", "lvm2", "mkinitcpio"}
	}
	c.Logger.Logger.Info().Strs("packages", packages).Str("target", targetRoot).Msg("Running pacstrap")

	args := append([]string{"-K", targetRoot}, packages...)
	if out, err := c.Runner.RunContext(ctx, "pacstrap", args...); err != nil {
		return fmt.Errorf("pacstrap into %s: %w: %s", targetRoot, err, string(out))
	}
	return nil
}

// syncDir copies a prepared rootfs tree. rsync keeps sparse files, xattrs
// and ACLs intact, a plain copy would not.
func syncDir(c *config.Config, source, targetRoot string) error {
	if out, err := c.Runner.Run("rsync", "-aqAX", source+"/", targetRoot+"/"); err != nil {
		return fmt.Errorf("syncing %s to %s: %w: %s", source, targetRoot, err, string(out))
	}
	return nil
}

// unpackFromISO pulls the rootfs archive out of the ISO first, then unpacks
// it like any local tarball. isoPath is the archive path inside the image.
func unpackFromISO(ctx context.Context, c *config.Config, isoFile, isoPath, targetRoot string) error {
	if isoPath == "" {
		isoPath = "/arch/x86_64/airootfs.sfs"
	}

	tmp, err := os.MkdirTemp("", "sarchura-iso")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	extracted := filepath.Join(tmp, filepath.Base(isoPath))
	if err := iso.ExtractFileFromIso(isoPath, isoFile, extracted, &c.Logger); err != nil {
		return fmt.Errorf("extracting %s from %s: %w", isoPath, isoFile, err)
	}

	if filepath.Ext(extracted) == ".sfs" {
		// Squashfs images cannot be streamed, unsquashfs writes them out
		if out, err := c.Runner.RunContext(ctx, "unsquashfs", "-f", "-d", targetRoot, extracted); err != nil {
			return fmt.Errorf("unsquashing %s: %w: %s", extracted, err, string(out))
		}
		return nil
	}
	return unpackTarball(ctx, c, extracted, targetRoot)
}
