package sysconfig

import (
	"fmt"
	"path/filepath"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/mudler/yip/pkg/schema"
	vfs "github.com/twpayne/go-vfs/v4"
)

// CloudInitDir is where staged first-boot configuration lands in the target.
const CloudInitDir = "/etc/sarchura/cloud-init.d"

// stageCloudInit validates the given yip files and copies them into the
// target so the installed system can run them on first boot. A file that does
// not parse aborts the whole stage, half-staged configuration is worse than
// none.
func stageCloudInit(c *config.Config, targetRoot string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	destDir := filepath.Join(targetRoot, CloudInitDir)
	if err := vfs.MkdirAll(c.Fs, destDir, constants.DirPerm); err != nil {
		return err
	}

	for _, path := range paths {
		data, err := c.Fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading cloud-init file %s: %w", path, err)
		}
		if _, err := schema.Load(string(data), nil, nil, nil); err != nil {
			return fmt.Errorf("cloud-init file %s is not valid: %w", path, err)
		}

		dest := filepath.Join(destDir, filepath.Base(path))
		if err := c.Fs.WriteFile(dest, data, constants.FilePerm); err != nil {
			return fmt.Errorf("staging cloud-init file %s: %w", path, err)
		}
		c.Logger.Logger.Info().Str("file", path).Str("dest", dest).Msg("Staged cloud-init file")
	}

	if c.CloudInit != nil {
		if err := c.CloudInit.Run("after-install", destDir); err != nil {
			return fmt.Errorf("running after-install stage: %w", err)
		}
	}
	return nil
}
