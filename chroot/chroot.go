// Package chroot runs commands inside the freshly assembled target tree,
// with the pseudo filesystems the tools in there expect bind-mounted from
// the host.
package chroot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/hashicorp/go-multierror"
)

// Chroot represents the target tree between Prepare and Close. Only mounts
// made by Prepare are released again, the installation mounts below the
// same root belong to the filesystem stage.
type Chroot struct {
	path          string
	defaultMounts []string
	activeMounts  []string
	config        *config.Config
}

func NewChroot(path string, cfg *config.Config) *Chroot {
	return &Chroot{
		path:          path,
		defaultMounts: []string{"/dev", "/dev/pts", "/proc", "/sys", "/run"},
		config:        cfg,
	}
}

// Prepare bind-mounts the default pseudo filesystems into the target.
func (c *Chroot) Prepare() error {
	if len(c.activeMounts) > 0 {
		return fmt.Errorf("chroot at %s is already prepared", c.path)
	}

	sort.Strings(c.defaultMounts)
	for _, mnt := range c.defaultMounts {
		target := filepath.Join(c.path, mnt)
		if err := os.MkdirAll(target, constants.DirPerm); err != nil {
			_ = c.Close()
			return err
		}
		if err := c.config.Mounter.Mount(mnt, target, "bind", []string{"bind"}); err != nil {
			_ = c.Close()
			return fmt.Errorf("bind mounting %s: %w", target, err)
		}
		c.activeMounts = append(c.activeMounts, target)
	}
	return nil
}

// Close releases the bind mounts, children first.
func (c *Chroot) Close() error {
	var result *multierror.Error
	for i := len(c.activeMounts) - 1; i >= 0; i-- {
		mnt := c.activeMounts[i]
		c.config.Logger.Logger.Debug().Str("mount", mnt).Msg("Releasing chroot mount")
		if err := c.config.Mounter.Unmount(mnt); err != nil {
			result = multierror.Append(result, fmt.Errorf("unmounting %s: %w", mnt, err))
		}
	}
	c.activeMounts = nil
	return result.ErrorOrNil()
}

// RunCallback executes the callback with the process root moved into the
// target, restoring the original root afterwards whatever happens.
func (c *Chroot) RunCallback(callback func() error) (err error) {
	// Store the current root to escape the chroot later
	oldRoot, err := os.Open("/")
	if err != nil {
		return fmt.Errorf("opening current root: %w", err)
	}
	defer oldRoot.Close()

	if err = c.config.Syscall.Chroot(c.path); err != nil {
		return fmt.Errorf("chrooting into %s: %w", c.path, err)
	}

	defer func() {
		if tmpErr := oldRoot.Chdir(); tmpErr != nil {
			c.config.Logger.Logger.Error().Err(tmpErr).Msg("Cannot change back to old root dir")
			if err == nil {
				err = tmpErr
			}
			return
		}
		if tmpErr := c.config.Syscall.Chroot("."); tmpErr != nil {
			c.config.Logger.Logger.Error().Err(tmpErr).Msg("Cannot chroot back to old root")
			if err == nil {
				err = tmpErr
			}
		}
	}()

	if err = c.config.Syscall.Chdir("/"); err != nil {
		return fmt.Errorf("changing to the new root: %w", err)
	}

	return callback()
}

// Run executes a command inside the chroot, with the pseudo filesystems
// prepared and released around it when they are not up yet.
func (c *Chroot) Run(command string, args ...string) ([]byte, error) {
	var out []byte
	if len(c.activeMounts) == 0 {
		if err := c.Prepare(); err != nil {
			return nil, err
		}
		defer func() {
			if err := c.Close(); err != nil {
				c.config.Logger.Logger.Error().Err(err).Msg("Releasing chroot mounts failed")
			}
		}()
	}

	err := c.RunCallback(func() error {
		var cbErr error
		out, cbErr = c.config.Runner.Run(command, args...)
		return cbErr
	})
	if err != nil {
		return out, fmt.Errorf("running %s in chroot %s: %w", command, c.path, err)
	}
	return out, nil
}
