package block_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/block"
	"github.com/Screamnox/sarchura/block/mocks"
	"github.com/Screamnox/sarchura/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBlock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Block test suite")
}

var _ = Describe("GPT reading", func() {
	var dir string
	var device string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "gpt")
		Expect(err).ToNot(HaveOccurred())
		device = filepath.Join(dir, "disk")
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("reads the in-use entries with their roles and offsets", func() {
		err := mocks.WriteGPTImage(device, []mocks.GPTEntry{
			{TypeGUID: block.ESPTypeGUID, UUID: "11111111-2222-3333-4455-66778899AABB",
				Name: "ESP", FirstLBA: 2048, LastLBA: 2099199},
			{TypeGUID: block.LVMTypeGUID, UUID: "AAAAAAAA-BBBB-CCCC-DDEE-FF0011223344",
				Name: "cryptlvm", FirstLBA: 2099200, LastLBA: 83886046},
		})
		Expect(err).ToNot(HaveOccurred())

		parts, err := block.GetGPTPartitions(device)
		Expect(err).ToNot(HaveOccurred())
		Expect(parts).To(HaveLen(2))

		Expect(parts[0].Number).To(Equal(1))
		Expect(parts[0].Name).To(Equal("ESP"))
		Expect(parts[0].TypeGUID).To(Equal(block.ESPTypeGUID))
		Expect(parts[0].UUID).To(Equal("11111111-2222-3333-4455-66778899AABB"))
		Expect(parts[0].StartByte()).To(Equal(uint64(2048 * 512)))
		Expect(parts[0].EndByte()).To(Equal(uint64(2099200 * 512)))

		Expect(parts[1].Number).To(Equal(2))
		Expect(parts[1].TypeGUID).To(Equal(block.LVMTypeGUID))
		Expect(parts[1].NumSectors).To(Equal(uint64(83886046 - 2099200 + 1)))
	})

	It("skips empty entries", func() {
		err := mocks.WriteGPTImage(device, []mocks.GPTEntry{
			{TypeGUID: block.ESPTypeGUID, UUID: "11111111-2222-3333-4455-66778899AABB",
				Name: "ESP", FirstLBA: 2048, LastLBA: 4096},
		})
		Expect(err).ToNot(HaveOccurred())

		parts, err := block.GetGPTPartitions(device)
		Expect(err).ToNot(HaveOccurred())
		Expect(parts).To(HaveLen(1))
	})

	It("rejects a device without a GPT signature", func() {
		Expect(os.WriteFile(device, make([]byte, 4096), 0644)).To(Succeed())
		_, err := block.GetGPTPartitions(device)
		Expect(err).To(MatchError(ContainSubstring("no GPT signature")))
	})

	It("fails on a missing device", func() {
		_, err := block.GetGPTPartitions(filepath.Join(dir, "nope"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Block scanning", func() {
	var blockMock mocks.BlockMock

	AfterEach(func() {
		blockMock.Clean()
	})

	Describe("with a disk carrying a mounted partition", func() {
		BeforeEach(func() {
			blockMock = mocks.BlockMock{}
			blockMock.AddDisk(types.Disk{
				Name:      "vda",
				UUID:      "555",
				SizeBytes: 1024,
				Partitions: types.PartitionList{
					{
						Name:            "vda1",
						FilesystemLabel: "ESP",
						FS:              "vfat",
						MountPoint:      "/boot",
						UUID:            "666",
					},
				},
			})
			blockMock.CreateDevices()
		})

		It("finds the disk and its partition", func() {
			disks := block.GetDisks(block.NewPaths(blockMock.Chroot), nil)
			Expect(disks).To(HaveLen(1))
			Expect(disks[0].Name).To(Equal("vda"))
			Expect(disks[0].SizeBytes).To(Equal(uint64(1024 * 512)))
			Expect(disks[0].Partitions).To(HaveLen(1))
			Expect(disks[0].Partitions[0].FS).To(Equal("vfat"))
			Expect(disks[0].Partitions[0].MountPoint).To(Equal("/boot"))
		})

		It("resolves the disk by device path", func() {
			paths := block.NewPaths(blockMock.Chroot)
			Expect(block.GetDiskByDevice(paths, "/dev/vda", nil)).ToNot(BeNil())
			Expect(block.GetDiskByDevice(paths, "vda", nil)).ToNot(BeNil())
			Expect(block.GetDiskByDevice(paths, "/dev/vdb", nil)).To(BeNil())
		})

		It("reports the active mounts of the device", func() {
			paths := block.NewPaths(blockMock.Chroot)
			Expect(block.MountedPoints(paths, "/dev/vda", nil)).To(Equal([]string{"/boot"}))
		})
	})

	Describe("with no disks", func() {
		It("finds nothing", func() {
			blockMock = mocks.BlockMock{}
			blockMock.CreateDevices()
			Expect(block.GetDisks(block.NewPaths(blockMock.Chroot), nil)).To(BeEmpty())
		})
	})
})

var _ = Describe("PartitionPath", func() {
	It("appends a p separator only after a trailing digit", func() {
		Expect(block.PartitionPath("/dev/sda", 1)).To(Equal("/dev/sda1"))
		Expect(block.PartitionPath("/dev/nvme0n1", 2)).To(Equal("/dev/nvme0n1p2"))
		Expect(block.PartitionPath("/dev/loop0", 1)).To(Equal("/dev/loop0p1"))
	})
})
