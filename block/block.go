// Package block scans sysfs and the udev runtime database for disks and
// their partitions. It is a stripped down take on the ghw library which
// can be pointed at a different root, so tests and chrooted installs can
// present a fake tree.
package block

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Screamnox/sarchura/types"
)

const (
	sectorSize = 512
	UNKNOWN    = "unknown"
)

type Paths struct {
	SysBlock    string
	RunUdevData string
	ProcMounts  string
}

func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{
		SysBlock:    "/sys/block/",
		RunUdevData: "/run/udev/data",
		ProcMounts:  "/proc/mounts",
	}

	// Allow overriding the paths via env var. It has precedence over anything
	val, exists := os.LookupEnv("SARCHURA_CHROOT")
	if exists {
		val = strings.TrimSuffix(val, "/")
		p.SysBlock = fmt.Sprintf("%s%s", val, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", val, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", val, p.ProcMounts)
		return p
	}

	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", withOptionalPrefix, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", withOptionalPrefix, p.ProcMounts)
	}
	return p
}

func GetDisks(paths *Paths, logger *types.SarchuraLogger) []*types.Disk {
	if logger == nil {
		newLogger := types.NewSarchuraLogger("block", "info", false)
		logger = &newLogger
	}
	disks := make([]*types.Disk, 0)
	logger.Logger.Debug().Str("path", paths.SysBlock).Msg("Scanning for disks")
	files, err := os.ReadDir(paths.SysBlock)
	if err != nil {
		return nil
	}
	for _, file := range files {
		var partitionHandler PartitionHandler
		logger.Logger.Debug().Str("file", file.Name()).Msg("Reading file")
		dname := file.Name()
		size := diskSizeBytes(paths, dname, logger)

		// Skip entries that are multipath partitions,
		// we handle them when we parse their parent disk
		if isMultipathPartition(file, paths, logger) {
			logger.Logger.Debug().Str("file", dname).Msg("Skipping multipath partition")
			continue
		}

		if strings.HasPrefix(dname, "loop") && size == 0 {
			// We don't care about unused loop devices...
			continue
		}
		d := &types.Disk{
			Name:      dname,
			SizeBytes: size,
			UUID:      diskUUID(paths, dname, logger),
		}

		if isMultipathDevice(paths, file, logger) {
			partitionHandler = NewMultipathPartitionHandler(dname)
		} else {
			partitionHandler = NewDiskPartitionHandler(dname)
		}

		d.Partitions = partitionHandler.GetPartitions(paths, logger)

		disks = append(disks, d)
	}

	return disks
}

// GetDiskByDevice returns the disk matching the given device, passed as
// either "/dev/vda" or plain "vda". Nil when no such disk is present.
func GetDiskByDevice(paths *Paths, device string, logger *types.SarchuraLogger) *types.Disk {
	name := filepath.Base(device)
	for _, d := range GetDisks(paths, logger) {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// MountedPoints returns every mount point backed by the given device or
// one of its partitions, in the order the mounts file lists them.
func MountedPoints(paths *Paths, device string, logger *types.SarchuraLogger) []string {
	if logger == nil {
		newLogger := types.NewSarchuraLogger("block", "info", false)
		logger = &newLogger
	}

	points := []string{}
	for _, entry := range mountEntries(paths, logger) {
		if belongsToDevice(entry.Partition, device) {
			points = append(points, entry.Mountpoint)
		}
	}
	return points
}

// belongsToDevice is true when source is the device itself or one of its
// partition nodes. The suffix is checked so /dev/sda does not claim
// /dev/sdaa: only digits, or "p" plus digits, count as a partition.
func belongsToDevice(source, device string) bool {
	if source == device {
		return true
	}
	if !strings.HasPrefix(source, device) {
		return false
	}

	rest := strings.TrimPrefix(source, device)
	rest = strings.TrimPrefix(rest, "p")
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PartitionPath returns the device node of the nth partition of a disk.
// Disks whose name ends in a digit get a "p" separator, so /dev/nvme0n1
// becomes /dev/nvme0n1p1 while /dev/sda becomes /dev/sda1.
func PartitionPath(device string, index int) string {
	last := device[len(device)-1]
	if last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", device, index)
	}
	return fmt.Sprintf("%s%d", device, index)
}

func isMultipathDevice(paths *Paths, entry os.DirEntry, logger *types.SarchuraLogger) bool {
	hasPrefix := strings.HasPrefix(entry.Name(), "dm-")
	if !hasPrefix {
		return false
	}

	// Check if the device has a "slaves" directory, which is a common indicator
	_, err := os.Stat(filepath.Join(paths.SysBlock, entry.Name(), "slaves"))
	if err != nil {
		var msg string
		if os.IsNotExist(err) {
			msg = "No slaves directory, not a multipath device"
		} else {
			msg = "Error checking slaves directory"
		}

		logger.Logger.Debug().Str("devNo", entry.Name()).Msg(msg)
		return false
	}

	// If the device has a "slaves" directory, check its udev info to
	// confirm it's a multipath device. More reliable than just the name.
	udevInfo, err := udevInfoPartition(paths, entry.Name(), logger)
	if err != nil {
		logger.Logger.Error().Err(err).Str("devNo", entry.Name()).Msg("Failed to get udev info")
		return false
	}
	_, ok := udevInfo["DM_NAME"]
	if !ok {
		logger.Logger.Debug().Str("devNo", entry.Name()).Msg("Not a multipath device")
	}

	return ok
}

func isMultipathPartition(entry os.DirEntry, paths *Paths, logger *types.SarchuraLogger) bool {
	// Must be a dm device to be a multipath partition
	if !isMultipathDevice(paths, entry, logger) {
		return false
	}

	deviceName := entry.Name()
	udevInfo, err := udevInfoPartition(paths, deviceName, logger)
	if err != nil {
		logger.Logger.Error().Err(err).Str("devNo", deviceName).Msg("Failed to get udev info")
		return false
	}

	// DM_PART in the udev info marks a multipath partition
	_, ok := udevInfo["DM_PART"]
	return ok
}

func diskSizeBytes(paths *Paths, disk string, logger *types.SarchuraLogger) uint64 {
	// The number of 512-byte sectors is in /sys/block/$DEVICE/size
	path := filepath.Join(paths.SysBlock, disk, "size")
	logger.Logger.Debug().Str("path", path).Msg("Reading disk size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Msg("Failed to read file")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Str("content", string(contents)).Msg("Failed to parse size")
		return 0
	}
	logger.Logger.Trace().Uint64("size", size*sectorSize).Msg("Got disk size")
	return size * sectorSize
}
