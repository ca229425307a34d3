package filesystem_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/filesystem"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/types/mocks"
	mountUtils "k8s.io/mount-utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFilesystem(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Filesystem test suite")
}

// failingMounter fails mounting one specific source, everything else is
// handed to the fake underneath.
type failingMounter struct {
	*mountUtils.FakeMounter
	failSource string
}

func (f *failingMounter) Mount(source, target, fstype string, options []string) error {
	if source == f.failSource {
		return fmt.Errorf("injected mount failure for %s", source)
	}
	return f.FakeMounter.Mount(source, target, fstype, options)
}

var _ = Describe("Provisioner", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner
	var mounter *mountUtils.FakeMounter
	var root string
	var table *types.PartitionTable
	var plan types.MountPlan

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "install-root")
		Expect(err).ToNot(HaveOccurred())

		runner = mocks.NewFakeRunner()
		mounter = mountUtils.NewFakeMounter(nil)
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
			config.WithMounter(mounter),
		)
		cfg.Plan = &types.InstallPlan{Device: "/dev/vda", InstallRoot: root}
		Expect(cfg.Plan.Sanitize()).To(Succeed())

		table = &types.PartitionTable{
			Device: "/dev/vda",
			Entries: []types.TableEntry{
				{Index: 1, Role: types.RoleESP, Path: "/dev/vda1"},
				{Index: 2, Role: types.RoleLVM, Path: "/dev/vda2"},
			},
		}
		plan = types.NewMountPlan(cfg.Plan, table)
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	It("formats all three targets and mounts parents first", func() {
		p := filesystem.NewProvisioner(cfg)
		Expect(p.Provision(table, plan)).To(Succeed())

		Expect(runner.CmdsMatch([][]string{
			{"mkfs.vfat", "-F", "32", "-n", "ESP", "/dev/vda1"},
			{"mkfs.ext4", "-F", "-L", "root", "/dev/vg0/root"},
			{"mkfs.ext4", "-F", "-L", "home", "/dev/vg0/home"},
		})).To(Succeed())

		log := mounter.GetLog()
		Expect(log).To(HaveLen(3))
		Expect(log[0].Target).To(Equal(root))
		Expect(log[1].Target).To(Equal(filepath.Join(root, "boot")))
		Expect(log[2].Target).To(Equal(filepath.Join(root, "home")))
	})

	It("formats home as xfs when the plan says so", func() {
		cfg.Plan.Filesystems.Home = "xfs"
		plan = types.NewMountPlan(cfg.Plan, table)

		p := filesystem.NewProvisioner(cfg)
		Expect(p.Provision(table, plan)).To(Succeed())
		Expect(runner.IncludesCmds([][]string{
			{"mkfs.xfs", "-f", "-L", "home", "/dev/vg0/home"},
		})).To(Succeed())
	})

	It("refuses to format the same target twice", func() {
		p := filesystem.NewProvisioner(cfg)
		Expect(p.Format("/dev/vda1", "vfat", "ESP")).To(Succeed())

		err := p.Format("/dev/vda1", "vfat", "ESP")
		var fErr *types.FormatError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(fErr))
		Expect(runner.GetCmds()).To(HaveLen(1))
	})

	It("rejects filesystems it cannot create", func() {
		p := filesystem.NewProvisioner(cfg)
		err := p.Format("/dev/vg0/root", "btrfs", "root")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported filesystem"))
		Expect(runner.GetCmds()).To(BeEmpty())
	})

	It("unwinds earlier mounts when a later one fails", func() {
		failing := &failingMounter{FakeMounter: mounter, failSource: "/dev/vg0/home"}
		cfg.Mounter = failing

		p := filesystem.NewProvisioner(cfg)
		err := p.Provision(table, plan)
		var mErr *types.MountError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(mErr))

		// Root and boot were mounted, then released children first.
		log := mounter.GetLog()
		Expect(log).To(HaveLen(4))
		Expect(log[0].Action).To(Equal(mountUtils.FakeActionMount))
		Expect(log[1].Action).To(Equal(mountUtils.FakeActionMount))
		Expect(log[2].Action).To(Equal(mountUtils.FakeActionUnmount))
		Expect(log[2].Target).To(Equal(filepath.Join(root, "boot")))
		Expect(log[3].Action).To(Equal(mountUtils.FakeActionUnmount))
		Expect(log[3].Target).To(Equal(root))

		Expect(p.Mounted()).To(BeEmpty())
	})

	It("releases mounts children first", func() {
		p := filesystem.NewProvisioner(cfg)
		Expect(p.Provision(table, plan)).To(Succeed())
		Expect(p.UnmountAll()).To(Succeed())

		log := mounter.GetLog()
		Expect(log).To(HaveLen(6))
		Expect(log[3].Target).To(Equal(filepath.Join(root, "home")))
		Expect(log[4].Target).To(Equal(filepath.Join(root, "boot")))
		Expect(log[5].Target).To(Equal(root))
	})
})
