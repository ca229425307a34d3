// Package constants This file contains all the constants that can be reused across the project
package constants

import "time"

const (
	MiB      = int64(1024 * 1024)
	GiB      = 1024 * MiB
	FilePerm = 0644
	DirPerm  = 0755

	// GPT is the only partition table layout we create.
	GPT = "gpt"
	// EFI is the only firmware we install for.
	EFI = "efi"

	ESPFlag  = "esp"
	BootFlag = "boot"
	LVMFlag  = "lvm"

	ESPLabel = "ESP"
	ESPFs    = "vfat"

	// PartitionAlignmentMiB is the gap left before the first partition.
	PartitionAlignmentMiB = uint(1)

	// DefaultESPSizeMiB is the ESP size used when the plan does not set one.
	DefaultESPSizeMiB = uint(1024)
	// DefaultRootSizeMiB is the root logical volume size used when the plan does not set one.
	DefaultRootSizeMiB = uint(20 * 1024)
	// DefaultHomeReserveMiB is kept free in the volume group for metadata and
	// snapshot headroom when the home policy deducts a reserve.
	DefaultHomeReserveMiB = uint(256)

	DefaultVolumeGroup = "vg0"
	DefaultMapperName  = "cryptlvm"
	RootVolume         = "root"
	HomeVolume         = "home"

	DefaultRootFs = "ext4"
	DefaultHomeFs = "ext4"

	// DefaultInstallRoot is where the target hierarchy gets assembled.
	DefaultInstallRoot = "/mnt"

	BootDir = "/boot"
	HomeDir = "/home"

	// LVMExtentBytes is the volume group physical extent size we create groups with.
	LVMExtentBytes = int64(4 * 1024 * 1024)

	// LuksVersion is passed to luksFormat, together with a shorter iteration
	// benchmark so formatting stays bearable on slow installer media.
	LuksVersion  = "luks2"
	LuksIterTime = "5"

	// MaxPassphraseAttempts bounds how many fresh passphrases a source may
	// provide before an open is abandoned.
	MaxPassphraseAttempts = 3

	// PartitionVisibilityAttempts and PartitionVisibilityDelay bound the wait
	// for the kernel to re-read a partition table. The delay grows with backoff.
	PartitionVisibilityAttempts = 10
	PartitionVisibilityDelay    = 200 * time.Millisecond

	ConfigHeader = "#sarchura-config"
)
