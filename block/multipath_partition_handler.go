package block

import (
	"os"
	"path/filepath"

	"github.com/Screamnox/sarchura/types"
)

type MultipathPartitionHandler struct {
	DiskName string
}

var _ PartitionHandler = &MultipathPartitionHandler{}

func NewMultipathPartitionHandler(diskName string) *MultipathPartitionHandler {
	return &MultipathPartitionHandler{DiskName: diskName}
}

func (m *MultipathPartitionHandler) GetPartitions(paths *Paths, logger *types.SarchuraLogger) types.PartitionList {
	out := make(types.PartitionList, 0)

	// For multipath devices, partitions appear as holders of the parent
	// device in /sys/block/<disk>/holders/<holder>
	holdersPath := filepath.Join(paths.SysBlock, m.DiskName, "holders")
	logger.Logger.Debug().Str("path", holdersPath).Msg("Reading multipath holders")

	holders, err := os.ReadDir(holdersPath)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to read holders directory")
		return out
	}

	for _, holder := range holders {
		partName := holder.Name()

		// Only consider dm- devices as potential multipath partitions
		if !isMultipathDevice(paths, holder, logger) {
			logger.Logger.Debug().Str("path", holder.Name()).Msg("Is not a multipath device")
			continue
		}

		if !isMultipathPartition(holder, paths, logger) {
			logger.Logger.Debug().Str("partition", partName).Msg("Holder is not a multipath partition")
			continue
		}

		logger.Logger.Debug().Str("partition", partName).Msg("Found multipath partition")

		udevInfo, err := udevInfoPartition(paths, partName, logger)
		if err != nil {
			logger.Logger.Error().Err(err).Str("devNo", partName).Msg("Failed to get udev info")
			return out
		}

		mapperName, ok := udevInfo["DM_NAME"]
		if !ok {
			logger.Logger.Error().Str("devNo", partName).Msg("DM_NAME not found in udev info")
			continue
		}

		// Multipath partitions are top-level entries in /sys/block, not
		// nested under the parent, so size comes from the partition device
		size := partitionSizeBytes(paths, partName, logger)
		du := diskPartUUID(paths, partName, logger)

		// The partition can be mounted either through its mapper name or
		// through the raw dm node, so we need to check both
		potentialMountNames := []string{
			filepath.Join("/dev/mapper", mapperName),
			filepath.Join("/dev", partName),
		}

		var mp, pt string
		for _, mountName := range potentialMountNames {
			mp, pt = partitionInfo(paths, mountName, logger)
			if mp != "" {
				logger.Logger.Debug().Str("mountPoint", mp).Msg("Found mount point for partition")
				break
			}
		}

		if pt == "" {
			pt = diskPartTypeUdev(paths, partName, logger)
		}
		fsLabel := diskFSLabel(paths, partName, logger)

		p := &types.Partition{
			Name:            partName,
			Size:            uint(size / (1024 * 1024)),
			MountPoint:      mp,
			UUID:            du,
			FilesystemLabel: fsLabel,
			FS:              pt,
			Path:            filepath.Join("/dev", partName),
			Disk:            filepath.Join("/dev", m.DiskName),
		}
		out = append(out, p)
	}

	return out
}
