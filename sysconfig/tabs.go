package sysconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
)

// FstabEntry is one typed line of the generated fstab.
type FstabEntry struct {
	Source  string
	Target  string
	FSType  string
	Options string
	Dump    int
	Pass    int
}

func (e FstabEntry) String() string {
	options := e.Options
	if options == "" {
		options = "defaults"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%d %d", e.Source, e.Target, e.FSType, options, e.Dump, e.Pass)
}

// CrypttabEntry is one typed line of the generated crypttab.
type CrypttabEntry struct {
	Name    string
	Device  string
	KeyFile string
	Options string
}

func (e CrypttabEntry) String() string {
	key := e.KeyFile
	if key == "" {
		key = "none"
	}
	options := e.Options
	if options == "" {
		options = "luks"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", e.Name, e.Device, key, options)
}

// FstabEntries derives the fstab for the target hierarchy, root first. UUID
// sources survive device renames, raw paths do not.
func FstabEntries(c *config.Config, table *types.PartitionTable) ([]FstabEntry, error) {
	espUUID, err := filesystemUUID(c, table.ESP().Path)
	if err != nil {
		return nil, err
	}
	rootUUID, err := filesystemUUID(c, c.Plan.RootDevice())
	if err != nil {
		return nil, err
	}
	homeUUID, err := filesystemUUID(c, c.Plan.HomeDevice())
	if err != nil {
		return nil, err
	}

	return []FstabEntry{
		{Source: "UUID=" + rootUUID, Target: "/", FSType: c.Plan.Filesystems.Root, Options: "rw,relatime", Pass: 1},
		{Source: "UUID=" + espUUID, Target: constants.BootDir, FSType: constants.ESPFs, Options: "rw,relatime,fmask=0022,dmask=0022", Pass: 2},
		{Source: "UUID=" + homeUUID, Target: constants.HomeDir, FSType: c.Plan.Filesystems.Home, Options: "rw,relatime", Pass: 2},
	}, nil
}

// WriteFstab renders the entries under the target root.
func WriteFstab(c *config.Config, targetRoot string, entries []FstabEntry) error {
	lines := []string{"# <device> <dir> <type> <options> <dump> <fsck>"}
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	path := filepath.Join(targetRoot, "etc", "fstab")
	return c.Fs.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), constants.FilePerm)
}

// WriteCrypttab renders the container entry so systemd-based initramfs
// images can open it too. The busybox hooks read the kernel cmdline instead
// and ignore this file.
func WriteCrypttab(c *config.Config, targetRoot string, volume *types.EncryptedVolume) error {
	entry := CrypttabEntry{
		Name:    volume.MapperName,
		Device:  "UUID=" + volume.UUID,
		Options: "luks,discard",
	}
	path := filepath.Join(targetRoot, "etc", "crypttab")
	return c.Fs.WriteFile(path, []byte(entry.String()+"\n"), 0600)
}

// filesystemUUID asks blkid for the filesystem UUID of a formatted target.
func filesystemUUID(c *config.Config, device string) (string, error) {
	out, err := c.Runner.Run("blkid", "-s", "UUID", "-o", "value", device)
	if err != nil {
		return "", fmt.Errorf("reading UUID of %s: %w: %s", device, err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("no UUID on %s", device)
	}
	return id, nil
}
