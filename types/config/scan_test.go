package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/collector"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config test suite")
}

var _ = Describe("PlanFromValues", func() {
	It("decodes the install section into a typed plan", func() {
		values := collector.ConfigValues{
			"install": map[string]interface{}{
				"device":        "/dev/vda",
				"confirm_erase": "/dev/vda",
				"esp_size":      512,
				"volume_group":  "tank",
				"filesystems": map[string]interface{}{
					"home": "xfs",
				},
			},
			"unrelated": "ignored",
		}

		plan, err := config.PlanFromValues(values)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Device).To(Equal("/dev/vda"))
		Expect(plan.ConfirmErase).To(Equal("/dev/vda"))
		Expect(plan.ESPSizeMiB).To(Equal(uint(512)))
		Expect(plan.VolumeGroup).To(Equal("tank"))
		Expect(plan.Filesystems.Home).To(Equal("xfs"))
	})

	It("yields an empty plan when there is no install section", func() {
		plan, err := config.PlanFromValues(collector.ConfigValues{"other": true})
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Device).To(BeEmpty())
		// Sanitize is the one to complain, not the decoding.
		Expect(plan.Sanitize()).ToNot(Succeed())
	})

	It("rejects an install section that is not a mapping", func() {
		_, err := config.PlanFromValues(collector.ConfigValues{"install": "yes please"})
		Expect(err).To(MatchError(ContainSubstring("decoding install plan")))
	})
})

var _ = Describe("Scan", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "scan")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("builds a config carrying the collected plan", func() {
		doc := constants.ConfigHeader + "\n" +
			"install:\n" +
			"  device: /dev/vda\n" +
			"  confirm_erase: /dev/vda\n"
		Expect(os.WriteFile(filepath.Join(dir, "plan.yaml"), []byte(doc), 0644)).To(Succeed())

		cfg, err := config.Scan(
			[]config.Option{config.WithLogger(types.NewNullLogger())},
			collector.Directories(dir), collector.NoLogs,
		)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Plan.Device).To(Equal("/dev/vda"))
		Expect(cfg.Plan.Confirmed()).To(BeTrue())
		// Collaborators get real defaults.
		Expect(cfg.Runner).ToNot(BeNil())
		Expect(cfg.Fs).ToNot(BeNil())
	})

	It("skips files without the config header", func() {
		Expect(os.WriteFile(filepath.Join(dir, "plan.yaml"),
			[]byte("install:\n  device: /dev/vda\n"), 0644)).To(Succeed())

		cfg, err := config.Scan(
			[]config.Option{config.WithLogger(types.NewNullLogger())},
			collector.Directories(dir), collector.NoLogs,
		)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Plan.Device).To(BeEmpty())
	})
})
