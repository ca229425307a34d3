// Package efi answers the firmware questions the installer asks before and
// after provisioning: are we on UEFI at all, is SecureBoot enforcing, and did
// a real bootloader actually land on the ESP.
package efi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Screamnox/sarchura/types"
	"github.com/edsrzf/mmap-go"
	efilib "github.com/foxboron/go-uefi/efi"
	"github.com/saferwall/pe"
)

// FirmwarePath is the sysfs directory only present when the kernel booted
// through UEFI firmware.
const FirmwarePath = "/sys/firmware/efi"

// loaderInfoSection is where systemd-boot stamps its identification string.
const loaderInfoSection = ".sdmagic"

// IsUEFIBoot reports whether the running system booted through UEFI. GPT plus
// systemd-boot requires it, BIOS machines are rejected up front.
func IsUEFIBoot(fs types.SarchuraFS) bool {
	info, err := fs.Stat(firmwarePath())
	return err == nil && info.IsDir()
}

// IsSecureBoot reports whether SecureBoot is enabled and enforcing.
func IsSecureBoot() bool {
	return efilib.GetSecureBoot() && !efilib.GetSetupMode()
}

func firmwarePath() string {
	if chroot := os.Getenv("SARCHURA_CHROOT"); chroot != "" {
		return filepath.Join(chroot, FirmwarePath)
	}
	return FirmwarePath
}

// LoaderInfo extracts the loader identification string from a bootloader PE
// binary. The file is mapped read-only, bootloaders fit comfortably but there
// is no point copying them through the heap.
func LoaderInfo(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening bootloader %s: %w", path, err)
	}
	defer f.Close()

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("mapping bootloader %s: %w", path, err)
	}
	defer mapped.Unmap()

	pefile, err := pe.NewBytes(mapped, &pe.Options{Fast: true})
	if err != nil {
		return "", fmt.Errorf("reading bootloader %s: %w", path, err)
	}
	defer pefile.Close()

	if err := pefile.Parse(); err != nil {
		return "", fmt.Errorf("parsing bootloader %s: %w", path, err)
	}

	for _, section := range pefile.Sections {
		if section.String() != loaderInfoSection {
			continue
		}
		data := section.Data(0, section.Header.VirtualSize, pefile)
		return strings.TrimRight(string(data), "\x00"), nil
	}
	return "", fmt.Errorf("no %s section in %s", loaderInfoSection, path)
}

// VerifyBootloader checks that bootctl installed a systemd-boot binary on the
// mounted ESP and that the binary identifies itself as one.
func VerifyBootloader(espDir string) error {
	candidates := []string{
		filepath.Join(espDir, "EFI", "systemd", "systemd-bootx64.efi"),
		filepath.Join(espDir, "EFI", "BOOT", "BOOTX64.EFI"),
	}

	for _, path := range candidates {
		info, err := LoaderInfo(path)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(info), "systemd-boot") {
			return nil
		}
		return fmt.Errorf("bootloader %s identifies as %q, expected systemd-boot", path, info)
	}
	return fmt.Errorf("no systemd-boot binary found on %s", espDir)
}
