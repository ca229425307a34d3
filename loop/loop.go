// Package loop attaches raw disk images to loop devices so an image can be
// provisioned through the same pipeline as real hardware.
package loop

import (
	"fmt"
	"os"

	"github.com/Screamnox/sarchura/types"
	"golang.org/x/sys/unix"
)

const loopControl = "/dev/loop-control"

// Loop attaches the given image to the next free loop device and returns its
// path. With partscan set, the kernel scans the image's partition table and
// exposes /dev/loopNpM nodes for every partition it finds.
func Loop(img string, partscan bool, log types.SarchuraLogger) (string, error) {
	ctl, err := os.OpenFile(loopControl, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", loopControl, err)
	}
	defer ctl.Close()

	num, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return "", fmt.Errorf("no free loop device: %w", err)
	}
	device := fmt.Sprintf("/dev/loop%d", num)

	backing, err := os.OpenFile(img, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open image %s: %w", img, err)
	}
	defer backing.Close()

	loopFile, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", device, err)
	}
	defer loopFile.Close()

	if err := unix.IoctlSetInt(int(loopFile.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return "", fmt.Errorf("binding %s to %s: %w", img, device, err)
	}

	info := unix.LoopInfo64{}
	copy(info.File_name[:], img)
	if partscan {
		info.Flags |= unix.LO_FLAGS_PARTSCAN
	}
	if err := unix.IoctlLoopSetStatus64(int(loopFile.Fd()), &info); err != nil {
		// The fd is already bound, release it before bailing out.
		_ = unix.IoctlSetInt(int(loopFile.Fd()), unix.LOOP_CLR_FD, 0)
		return "", fmt.Errorf("configuring %s: %w", device, err)
	}

	log.Logger.Debug().Str("image", img).Str("device", device).Bool("partscan", partscan).Msg("Attached loop device")
	return device, nil
}

// Unloop detaches the given loop device.
func Unloop(device string, log types.SarchuraLogger) error {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer f.Close()

	if err := unix.IoctlSetInt(int(f.Fd()), unix.LOOP_CLR_FD, 0); err != nil {
		return fmt.Errorf("detaching %s: %w", device, err)
	}
	log.Logger.Debug().Str("device", device).Msg("Detached loop device")
	return nil
}
