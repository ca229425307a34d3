package types

import "sort"

// Partition is the runtime view of a block partition as the kernel reports
// it, filled from sysfs and udev data.
type Partition struct {
	Name            string   `yaml:"name,omitempty" json:"name,omitempty"`
	FilesystemLabel string   `yaml:"label,omitempty" json:"label,omitempty"`
	Size            uint     `yaml:"size,omitempty" json:"size,omitempty"`
	FS              string   `yaml:"fs,omitempty" json:"fs,omitempty"`
	Flags           []string `yaml:"flags,omitempty" json:"flags,omitempty"`
	Type            string   `yaml:"type,omitempty" json:"type,omitempty"`
	UUID            string   `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	MountPoint      string   `yaml:"-" json:"-"`
	Path            string   `yaml:"-" json:"-"`
	Disk            string   `yaml:"-" json:"-"`
}

type PartitionList []*Partition

// GetByName returns the first partition matching the device name.
func (pl PartitionList) GetByName(name string) *Partition {
	for _, p := range pl {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ByMountPoint sorts the mounted partitions by their mount point, ascending
// mounts parents first, descending gives the unmount order. Partitions
// without a mount point are skipped.
func (pl PartitionList) ByMountPoint(descending bool) PartitionList {
	byTarget := map[string]*Partition{}
	targets := []string{}
	for _, p := range pl {
		if p.MountPoint != "" {
			byTarget[p.MountPoint] = p
			targets = append(targets, p.MountPoint)
		}
	}

	if descending {
		sort.Sort(sort.Reverse(sort.StringSlice(targets)))
	} else {
		sort.Strings(targets)
	}

	sorted := PartitionList{}
	for _, t := range targets {
		sorted = append(sorted, byTarget[t])
	}
	return sorted
}

// Disk is the runtime view of a whole block device.
type Disk struct {
	Name       string        `yaml:"name,omitempty" json:"name,omitempty"`
	SizeBytes  uint64        `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	UUID       string        `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	Partitions PartitionList `yaml:"partitions,omitempty" json:"partitions,omitempty"`
}
