package sysconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Screamnox/sarchura/chroot"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	vfs "github.com/twpayne/go-vfs/v4"
)

// applyUsers creates the plan users inside the target. Password hashes go to
// chpasswd -e on stdin so they never show up in process listings or logs.
func applyUsers(c *config.Config, targetRoot string, users []types.User, root *chroot.Chroot) error {
	needsSudoers := false
	for _, user := range users {
		if user.Name == "" {
			return fmt.Errorf("user entry without a name")
		}

		args := []string{"-m"}
		groups := user.Groups
		if user.Sudoer && !contains(groups, "wheel") {
			groups = append(append([]string{}, groups...), "wheel")
		}
		if len(groups) > 0 {
			args = append(args, "-G", strings.Join(groups, ","))
		}
		args = append(args, user.Name)

		if out, err := root.Run("useradd", args...); err != nil {
			return fmt.Errorf("creating user %s: %w: %s", user.Name, err, string(out))
		}
		c.Logger.Logger.Info().Str("user", user.Name).Strs("groups", groups).Msg("Created user")

		if user.PasswordHash != "" {
			err := root.RunCallback(func() error {
				_, cbErr := c.Runner.RunWithInput(user.Name+":"+user.PasswordHash+"\n", "chpasswd", "-e")
				return cbErr
			})
			if err != nil {
				return fmt.Errorf("setting password for %s: %w", user.Name, err)
			}
		}
		if user.Sudoer {
			needsSudoers = true
		}
	}

	if needsSudoers {
		path := filepath.Join(targetRoot, "etc", "sudoers.d", "10-wheel")
		if err := vfs.MkdirAll(c.Fs, filepath.Dir(path), 0750); err != nil {
			return err
		}
		if err := c.Fs.WriteFile(path, []byte("%wheel ALL=(ALL:ALL) ALL\n"), 0440); err != nil {
			return fmt.Errorf("writing sudoers drop-in: %w", err)
		}
	}
	return nil
}

func contains(list []string, item string) bool {
	for _, l := range list {
		if l == item {
			return true
		}
	}
	return false
}
