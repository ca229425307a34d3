package partitioner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/block"
	blockmocks "github.com/Screamnox/sarchura/block/mocks"
	"github.com/Screamnox/sarchura/partitioner"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/types/mocks"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPartitioner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Partitioner test suite")
}

var _ = Describe("Validate", func() {
	var blockMock blockmocks.BlockMock
	var cfg *config.Config

	BeforeEach(func() {
		blockMock = blockmocks.BlockMock{}
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(mocks.NewFakeRunner()),
		)
		cfg.Plan = &types.InstallPlan{Device: "/dev/vda", ConfirmErase: "/dev/vda"}
		Expect(cfg.Plan.Sanitize()).To(Succeed())
	})

	AfterEach(func() {
		blockMock.Clean()
	})

	It("rejects a device the host does not have", func() {
		blockMock.CreateDevices()
		err := partitioner.Validate(cfg)
		var target *types.DeviceNotFoundError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(target))
	})

	It("rejects a device with active mounts", func() {
		blockMock.AddDisk(types.Disk{
			Name: "vda", SizeBytes: 83886080,
			Partitions: types.PartitionList{
				{Name: "vda1", FS: "ext4", MountPoint: "/data"},
			},
		})
		blockMock.CreateDevices()

		err := partitioner.Validate(cfg)
		var mounted *types.AlreadyMountedError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(mounted))
	})

	It("rejects a plan without the erase confirmation", func() {
		blockMock.AddDisk(types.Disk{Name: "vda", SizeBytes: 83886080})
		blockMock.CreateDevices()
		cfg.Plan.ConfirmErase = ""

		err := partitioner.Validate(cfg)
		var confirmed *types.NotConfirmedError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(confirmed))
	})

	It("accepts an unmounted, confirmed device", func() {
		blockMock.AddDisk(types.Disk{Name: "vda", SizeBytes: 83886080})
		blockMock.CreateDevices()
		Expect(partitioner.Validate(cfg)).To(Succeed())
	})
})

var _ = Describe("Partition", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner
	var dir, device string

	writeValidGPT := func() {
		Expect(blockmocks.WriteGPTImage(device, []blockmocks.GPTEntry{
			{TypeGUID: block.ESPTypeGUID, UUID: "11111111-2222-3333-4455-66778899AABB",
				Name: "ESP", FirstLBA: 2048, LastLBA: 2099199},
			{TypeGUID: block.LVMTypeGUID, UUID: "AAAAAAAA-BBBB-CCCC-DDEE-FF0011223344",
				Name: "cryptlvm", FirstLBA: 2099200, LastLBA: 83886046},
		})).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "partitioner")
		Expect(err).ToNot(HaveOccurred())
		device = filepath.Join(dir, "disk")

		runner = mocks.NewFakeRunner()
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
		)
		cfg.Plan = &types.InstallPlan{Device: device, ConfirmErase: device}
		Expect(cfg.Plan.Sanitize()).To(Succeed())

		// The partition nodes the re-enumeration wait polls for.
		Expect(os.WriteFile(block.PartitionPath(device, 1), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(block.PartitionPath(device, 2), nil, 0644)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("runs the full parted sequence and verifies the result", func() {
		writeValidGPT()

		table, err := partitioner.Partition(context.Background(), cfg)
		Expect(err).ToNot(HaveOccurred())

		Expect(runner.CmdsMatch([][]string{
			{"wipefs", "--all", "--force", device},
			{"parted", "--script", device, "mklabel", "gpt"},
			{"parted", "--script", device, "mkpart", "ESP", "fat32", "1MiB", "1025MiB"},
			{"parted", "--script", device, "set", "1", "esp", "on"},
			{"parted", "--script", device, "mkpart", "cryptlvm", "1025MiB", "100%"},
			{"parted", "--script", device, "set", "2", "lvm", "on"},
			{"partprobe", device},
			{"udevadm", "settle"},
		})).To(Succeed())

		Expect(table.Entries).To(HaveLen(2))
		Expect(table.Entries[0].Role).To(Equal(types.RoleESP))
		Expect(table.Entries[0].Path).To(Equal(block.PartitionPath(device, 1)))
		Expect(table.Entries[1].Role).To(Equal(types.RoleLVM))
		Expect(table.Validate()).To(Succeed())
	})

	It("honors a custom ESP size", func() {
		writeValidGPT()
		cfg.Plan.ESPSizeMiB = 512

		_, err := partitioner.Partition(context.Background(), cfg)
		Expect(err).ToNot(HaveOccurred())
		Expect(runner.IncludesCmds([][]string{
			{"parted", "--script", device, "mkpart", "ESP", "fat32", "1MiB", "513MiB"},
			{"parted", "--script", device, "mkpart", "cryptlvm", "513MiB", "100%"},
		})).To(Succeed())
	})

	It("wraps a failing step with the operation that failed", func() {
		runner.SideEffect = func(command string, args ...string) ([]byte, error) {
			if command == "wipefs" {
				return []byte("busy"), os.ErrPermission
			}
			return nil, nil
		}

		_, err := partitioner.Partition(context.Background(), cfg)
		var pErr *types.PartitioningError
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(pErr))
		Expect(err.Error()).To(ContainSubstring("wipe signatures"))
		// Nothing after the failed step ran.
		Expect(runner.GetCmds()).To(HaveLen(1))
	})

	It("rejects a table that reads back without a GPT signature", func() {
		Expect(os.WriteFile(device, make([]byte, 4096), 0644)).To(Succeed())

		_, err := partitioner.Partition(context.Background(), cfg)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("verify table"))
	})

	It("rejects a table with unexpected partition types", func() {
		Expect(blockmocks.WriteGPTImage(device, []blockmocks.GPTEntry{
			{TypeGUID: "0FC63DAF-8483-4772-8E79-3D69D8477DE4",
				UUID: "11111111-2222-3333-4455-66778899AABB", FirstLBA: 2048, LastLBA: 4096},
			{TypeGUID: block.LVMTypeGUID,
				UUID: "AAAAAAAA-BBBB-CCCC-DDEE-FF0011223344", FirstLBA: 4097, LastLBA: 8192},
		})).To(Succeed())

		_, err := partitioner.Partition(context.Background(), cfg)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unexpected type"))
	})
})
