package types

import (
	"fmt"
	"strings"
)

// Validation failures. All of them abort the run before anything touches the
// disk, so they carry no wrapped cause.

// DeviceNotFoundError reports a target path that does not exist or is not a
// block device.
type DeviceNotFoundError struct {
	Device string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %s not found or not a block device", e.Device)
}

// AlreadyMountedError reports a target device with active mounts. The caller
// has to release them explicitly, we never unmount what we did not mount.
type AlreadyMountedError struct {
	Device      string
	MountPoints []string
}

func (e *AlreadyMountedError) Error() string {
	return fmt.Sprintf("device %s is mounted at %s, refusing to continue", e.Device, strings.Join(e.MountPoints, ", "))
}

// NotConfirmedError reports a missing or mismatched erase confirmation.
type NotConfirmedError struct {
	Device string
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("destructive operation on %s not confirmed, set confirm_erase to the device path", e.Device)
}

// PartitioningError reports a failed partitioning step. The whole run aborts,
// partially written tables are not recovered.
type PartitioningError struct {
	Device string
	Op     string
	Err    error
}

func (e *PartitioningError) Error() string {
	return fmt.Sprintf("partitioning %s failed during %s: %v", e.Device, e.Op, e.Err)
}

func (e *PartitioningError) Unwrap() error { return e.Err }

// EncryptionSetupError reports a failed LUKS format or open that is not an
// authentication failure.
type EncryptionSetupError struct {
	Device string
	Op     string
	Err    error
}

func (e *EncryptionSetupError) Error() string {
	return fmt.Sprintf("encryption setup on %s failed during %s: %v", e.Device, e.Op, e.Err)
}

func (e *EncryptionSetupError) Unwrap() error { return e.Err }

// WrongPassphraseError reports a LUKS open rejected by authentication. A new
// attempt needs a fresh passphrase, the same value is never retried.
type WrongPassphraseError struct {
	Device string
}

func (e *WrongPassphraseError) Error() string {
	return fmt.Sprintf("passphrase rejected for %s", e.Device)
}

// InsufficientSpaceError reports a sizing request exceeding what the volume
// group can hold. It is raised from the extent math, before any lvcreate runs.
type InsufficientSpaceError struct {
	VolumeGroup      string
	Volume           string
	RequestedExtents uint64
	FreeExtents      uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("volume %s/%s needs %d extents but only %d are free",
		e.VolumeGroup, e.Volume, e.RequestedExtents, e.FreeExtents)
}

// FormatError reports a failed filesystem creation, naming the target.
type FormatError struct {
	Target string
	FS     string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("formatting %s as %s failed: %v", e.Target, e.FS, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MountError reports a failed mount or unmount, naming source and target.
type MountError struct {
	Source string
	Target string
	Err    error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mounting %s on %s failed: %v", e.Source, e.Target, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }
