package sysconfig

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Screamnox/sarchura/chroot"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/efi"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	vfs "github.com/twpayne/go-vfs/v4"
)

// LoaderEntry is the typed systemd-boot entry we render, no heredocs.
type LoaderEntry struct {
	Title   string
	Linux   string
	Initrd  string
	Options []string
}

func (e LoaderEntry) String() string {
	lines := []string{
		"title " + e.Title,
		"linux " + e.Linux,
		"initrd " + e.Initrd,
		"options " + strings.Join(e.Options, " "),
	}
	return strings.Join(lines, "\n") + "\n"
}

var hooksRe = regexp.MustCompile(`(?m)^HOOKS=\([^)]*\)`)

// applyBoot rebuilds the initramfs with the encrypt and lvm2 hooks and
// installs systemd-boot with an entry whose cmdline opens the container and
// mounts the root volume.
func applyBoot(c *config.Config, targetRoot string, volume *types.EncryptedVolume, system *types.SystemConfig, root *chroot.Chroot) error {
	if err := enableInitramfsHooks(c, targetRoot); err != nil {
		return err
	}
	if _, err := root.Run("mkinitcpio", "-P"); err != nil {
		return fmt.Errorf("rebuilding initramfs: %w", err)
	}

	if _, err := root.Run("bootctl", "--esp-path="+constants.BootDir, "install"); err != nil {
		return fmt.Errorf("installing systemd-boot: %w", err)
	}
	if err := efi.VerifyBootloader(filepath.Join(targetRoot, "boot")); err != nil {
		return fmt.Errorf("verifying bootloader: %w", err)
	}

	entriesDir := filepath.Join(targetRoot, "boot", "loader", "entries")
	if err := vfs.MkdirAll(c.Fs, entriesDir, constants.DirPerm); err != nil {
		return err
	}

	loaderConf := "default arch.conf\ntimeout 3\nconsole-mode max\neditor no\n"
	if err := c.Fs.WriteFile(filepath.Join(targetRoot, "boot", "loader", "loader.conf"),
		[]byte(loaderConf), constants.FilePerm); err != nil {
		return err
	}

	options := []string{
		fmt.Sprintf("cryptdevice=UUID=%s:%s", volume.UUID, volume.MapperName),
		"root=" + c.Plan.RootDevice(),
		"rw",
	}
	if system != nil {
		options = append(options, system.KernelParams...)
	}
	entry := LoaderEntry{
		Title:   "Arch Linux",
		Linux:   "/vmlinuz-linux",
		Initrd:  "/initramfs-linux.img",
		Options: options,
	}

	return c.Fs.WriteFile(filepath.Join(entriesDir, "arch.conf"),
		[]byte(entry.String()), constants.FilePerm)
}

// enableInitramfsHooks splices encrypt and lvm2 into the HOOKS line right
// before filesystems, where the busybox init expects them.
func enableInitramfsHooks(c *config.Config, targetRoot string) error {
	path := filepath.Join(targetRoot, "etc", "mkinitcpio.conf")
	data, err := c.Fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	match := hooksRe.Find(data)
	if match == nil {
		return fmt.Errorf("no HOOKS line in %s", path)
	}

	hooks := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(string(match), "HOOKS=("), ")"))
	hooks = spliceHooks(hooks)

	updated := hooksRe.ReplaceAll(data, []byte("HOOKS=("+strings.Join(hooks, " ")+")"))
	return c.Fs.WriteFile(path, updated, constants.FilePerm)
}

func spliceHooks(hooks []string) []string {
	filtered := hooks[:0]
	for _, h := range hooks {
		if h == "encrypt" || h == "lvm2" {
			continue
		}
		filtered = append(filtered, h)
	}

	result := make([]string, 0, len(filtered)+2)
	inserted := false
	for _, h := range filtered {
		if h == "filesystems" {
			result = append(result, "encrypt", "lvm2")
			inserted = true
		}
		result = append(result, h)
	}
	if !inserted {
		result = append(result, "encrypt", "lvm2")
	}
	return result
}
