package efi_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/efi"
	vfs "github.com/twpayne/go-vfs/v4"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEFI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EFI test suite")
}

var _ = Describe("IsUEFIBoot", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "efi")
		Expect(err).ToNot(HaveOccurred())
		os.Setenv("SARCHURA_CHROOT", dir)
	})

	AfterEach(func() {
		os.Unsetenv("SARCHURA_CHROOT")
		os.RemoveAll(dir)
	})

	It("is true when the firmware directory exists", func() {
		Expect(os.MkdirAll(filepath.Join(dir, efi.FirmwarePath), 0755)).To(Succeed())
		Expect(efi.IsUEFIBoot(vfs.OSFS)).To(BeTrue())
	})

	It("is false on a BIOS boot", func() {
		Expect(efi.IsUEFIBoot(vfs.OSFS)).To(BeFalse())
	})

	It("is false when the path is a file, not a directory", func() {
		Expect(os.MkdirAll(filepath.Join(dir, "sys", "firmware"), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, efi.FirmwarePath), nil, 0644)).To(Succeed())
		Expect(efi.IsUEFIBoot(vfs.OSFS)).To(BeFalse())
	})
})

var _ = Describe("LoaderInfo", func() {
	It("fails on a file that is not a PE binary", func() {
		dir, err := os.MkdirTemp("", "loader")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "BOOTX64.EFI")
		Expect(os.WriteFile(path, []byte("definitely not a bootloader"), 0644)).To(Succeed())

		_, err = efi.LoaderInfo(path)
		Expect(err).To(HaveOccurred())
	})

	It("fails on a missing file", func() {
		_, err := efi.LoaderInfo("/nonexistent/BOOTX64.EFI")
		Expect(err).To(MatchError(ContainSubstring("opening bootloader")))
	})
})

var _ = Describe("VerifyBootloader", func() {
	It("reports an ESP without any bootloader", func() {
		dir, err := os.MkdirTemp("", "esp")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)

		err = efi.VerifyBootloader(dir)
		Expect(err).To(MatchError(ContainSubstring("no systemd-boot binary")))
	})
})
