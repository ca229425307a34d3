package sysconfig

import (
	"testing"

	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/types/mocks"
	"github.com/twpayne/go-vfs/v4/vfst"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSysconfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sysconfig test suite")
}

var _ = Describe("spliceHooks", func() {
	It("inserts encrypt and lvm2 right before filesystems", func() {
		hooks := spliceHooks([]string{"base", "udev", "autodetect", "modconf", "block", "filesystems", "fsck"})
		Expect(hooks).To(Equal([]string{"base", "udev", "autodetect", "modconf", "block",
			"encrypt", "lvm2", "filesystems", "fsck"}))
	})

	It("does not duplicate hooks that are already there", func() {
		hooks := spliceHooks([]string{"base", "udev", "encrypt", "lvm2", "filesystems"})
		Expect(hooks).To(Equal([]string{"base", "udev", "encrypt", "lvm2", "filesystems"}))
	})

	It("moves misplaced hooks in front of filesystems", func() {
		hooks := spliceHooks([]string{"base", "filesystems", "encrypt", "lvm2"})
		Expect(hooks).To(Equal([]string{"base", "encrypt", "lvm2", "filesystems"}))
	})

	It("appends when there is no filesystems hook at all", func() {
		hooks := spliceHooks([]string{"base", "udev"})
		Expect(hooks).To(Equal([]string{"base", "udev", "encrypt", "lvm2"}))
	})
})

var _ = Describe("enableInitramfsHooks", func() {
	var cfg *config.Config
	var cleanup func()

	newFs := func(files map[string]interface{}) {
		fs, c, err := vfst.NewTestFS(files)
		Expect(err).ToNot(HaveOccurred())
		cleanup = c
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithFs(fs),
		)
	}

	AfterEach(func() {
		cleanup()
	})

	It("rewrites only the HOOKS line", func() {
		newFs(map[string]interface{}{
			"/mnt/etc/mkinitcpio.conf": "MODULES=()\n" +
				"# comment mentioning HOOKS=(nothing)\n" +
				"HOOKS=(base udev block filesystems fsck)\n" +
				"COMPRESSION=\"zstd\"\n",
		})

		Expect(enableInitramfsHooks(cfg, "/mnt")).To(Succeed())

		data, err := cfg.Fs.ReadFile("/mnt/etc/mkinitcpio.conf")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("HOOKS=(base udev block encrypt lvm2 filesystems fsck)"))
		Expect(string(data)).To(ContainSubstring("MODULES=()"))
		Expect(string(data)).To(ContainSubstring("COMPRESSION=\"zstd\""))
	})

	It("fails loudly when the template has no HOOKS line", func() {
		newFs(map[string]interface{}{
			"/mnt/etc/mkinitcpio.conf": "MODULES=()\n",
		})

		err := enableInitramfsHooks(cfg, "/mnt")
		Expect(err).To(MatchError(ContainSubstring("no HOOKS line")))
	})
})

var _ = Describe("enableLocale", func() {
	var cfg *config.Config
	var cleanup func()

	BeforeEach(func() {
		fs, c, err := vfst.NewTestFS(map[string]interface{}{
			"/mnt/etc/locale.gen": "# Comment\n#de_DE.UTF-8 UTF-8\n#en_US.UTF-8 UTF-8\n",
		})
		Expect(err).ToNot(HaveOccurred())
		cleanup = c
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithFs(fs),
		)
	})

	AfterEach(func() {
		cleanup()
	})

	It("uncomments the wanted locale and leaves the rest alone", func() {
		Expect(enableLocale(cfg, "/mnt", "en_US.UTF-8")).To(Succeed())

		data, err := cfg.Fs.ReadFile("/mnt/etc/locale.gen")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("\nen_US.UTF-8 UTF-8"))
		Expect(string(data)).To(ContainSubstring("#de_DE.UTF-8 UTF-8"))
	})

	It("appends a locale the template does not list", func() {
		Expect(enableLocale(cfg, "/mnt", "sv_SE.UTF-8")).To(Succeed())

		data, err := cfg.Fs.ReadFile("/mnt/etc/locale.gen")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("sv_SE.UTF-8 UTF-8"))
	})
})

var _ = Describe("Tab entries", func() {
	It("renders fstab lines with defaults where options are empty", func() {
		e := FstabEntry{Source: "UUID=abc", Target: "/", FSType: "ext4", Pass: 1}
		Expect(e.String()).To(Equal("UUID=abc\t/\text4\tdefaults\t0 1"))

		e = FstabEntry{Source: "UUID=def", Target: "/boot", FSType: "vfat", Options: "rw,relatime", Pass: 2}
		Expect(e.String()).To(Equal("UUID=def\t/boot\tvfat\trw,relatime\t0 2"))
	})

	It("renders crypttab lines with none for a missing keyfile", func() {
		e := CrypttabEntry{Name: "cryptlvm", Device: "UUID=abc", Options: "luks,discard"}
		Expect(e.String()).To(Equal("cryptlvm\tUUID=abc\tnone\tluks,discard"))
	})
})

var _ = Describe("FstabEntries", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner
	var table *types.PartitionTable

	BeforeEach(func() {
		runner = mocks.NewFakeRunner()
		runner.SideEffect = func(command string, args ...string) ([]byte, error) {
			if command != "blkid" {
				return nil, nil
			}
			switch args[len(args)-1] {
			case "/dev/vda1":
				return []byte("ESP-UUID\n"), nil
			case "/dev/vg0/root":
				return []byte("ROOT-UUID\n"), nil
			case "/dev/vg0/home":
				return []byte("HOME-UUID\n"), nil
			}
			return nil, nil
		}

		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
		)
		cfg.Plan = &types.InstallPlan{Device: "/dev/vda"}
		Expect(cfg.Plan.Sanitize()).To(Succeed())

		table = &types.PartitionTable{
			Device: "/dev/vda",
			Entries: []types.TableEntry{
				{Index: 1, Role: types.RoleESP, Path: "/dev/vda1"},
				{Index: 2, Role: types.RoleLVM, Path: "/dev/vda2"},
			},
		}
	})

	It("derives UUID-addressed entries, root first", func() {
		entries, err := FstabEntries(cfg, table)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(3))

		Expect(entries[0].Source).To(Equal("UUID=ROOT-UUID"))
		Expect(entries[0].Target).To(Equal("/"))
		Expect(entries[0].Pass).To(Equal(1))
		Expect(entries[1].Source).To(Equal("UUID=ESP-UUID"))
		Expect(entries[1].Target).To(Equal("/boot"))
		Expect(entries[2].Source).To(Equal("UUID=HOME-UUID"))
		Expect(entries[2].Target).To(Equal("/home"))
	})

	It("fails when a target has no filesystem UUID", func() {
		runner.SideEffect = func(command string, args ...string) ([]byte, error) {
			return []byte("\n"), nil
		}

		_, err := FstabEntries(cfg, table)
		Expect(err).To(MatchError(ContainSubstring("no UUID")))
	})
})

var _ = Describe("Writing the tabs", func() {
	var cfg *config.Config
	var cleanup func()

	BeforeEach(func() {
		fs, c, err := vfst.NewTestFS(map[string]interface{}{
			"/mnt/etc": &vfst.Dir{Perm: 0o755},
		})
		Expect(err).ToNot(HaveOccurred())
		cleanup = c
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithFs(fs),
		)
	})

	AfterEach(func() {
		cleanup()
	})

	It("writes the fstab with its header", func() {
		entries := []FstabEntry{
			{Source: "UUID=ROOT-UUID", Target: "/", FSType: "ext4", Options: "rw,relatime", Pass: 1},
		}
		Expect(WriteFstab(cfg, "/mnt", entries)).To(Succeed())

		data, err := cfg.Fs.ReadFile("/mnt/etc/fstab")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(HavePrefix("# <device> <dir> <type> <options> <dump> <fsck>\n"))
		Expect(string(data)).To(ContainSubstring("UUID=ROOT-UUID\t/\text4\trw,relatime\t0 1\n"))
	})

	It("writes the crypttab addressed by container UUID", func() {
		volume := &types.EncryptedVolume{
			Device: "/dev/vda2", MapperName: "cryptlvm", UUID: "LUKS-UUID",
		}
		Expect(WriteCrypttab(cfg, "/mnt", volume)).To(Succeed())

		data, err := cfg.Fs.ReadFile("/mnt/etc/crypttab")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("cryptlvm\tUUID=LUKS-UUID\tnone\tluks,discard\n"))
	})
})

var _ = Describe("LoaderEntry", func() {
	It("renders the four entry lines in order", func() {
		entry := LoaderEntry{
			Title:  "Arch Linux",
			Linux:  "/vmlinuz-linux",
			Initrd: "/initramfs-linux.img",
			Options: []string{
				"cryptdevice=UUID=LUKS-UUID:cryptlvm",
				"root=/dev/vg0/root",
				"rw",
			},
		}
		Expect(entry.String()).To(Equal(
			"title Arch Linux\n" +
				"linux /vmlinuz-linux\n" +
				"initrd /initramfs-linux.img\n" +
				"options cryptdevice=UUID=LUKS-UUID:cryptlvm root=/dev/vg0/root rw\n"))
	})
})
