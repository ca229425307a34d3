package bootstrap_test

import (
	"context"
	"testing"

	"github.com/Screamnox/sarchura/bootstrap"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/types/mocks"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBootstrap(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bootstrap test suite")
}

var _ = Describe("Run", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner

	BeforeEach(func() {
		runner = mocks.NewFakeRunner()
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
		)
		cfg.Plan = &types.InstallPlan{Device: "/dev/vda"}
		Expect(cfg.Plan.Sanitize()).To(Succeed())
	})

	It("leaves the target alone when nothing is configured", func() {
		Expect(bootstrap.Run(context.Background(), cfg, "/mnt")).To(Succeed())
		Expect(runner.GetCmds()).To(BeEmpty())
	})

	It("pacstraps the default package set without a source", func() {
		cfg.Plan.Bootstrap = &types.BootstrapSpec{}

		Expect(bootstrap.Run(context.Background(), cfg, "/mnt")).To(Succeed())
		Expect(runner.CmdsMatch([][]string{
			{"pacstrap", "-K", "/mnt", "base", "linux", "linux-firmware", "lvm2", "mkinitcpio"},
		})).To(Succeed())
	})

	It("pacstraps the configured package list verbatim", func() {
		cfg.Plan.Bootstrap = &types.BootstrapSpec{
			Packages: []string{"base", "linux-lts", "vim"},
		}

		Expect(bootstrap.Run(context.Background(), cfg, "/mnt")).To(Succeed())
		Expect(runner.CmdsMatch([][]string{
			{"pacstrap", "-K", "/mnt", "base", "linux-lts", "vim"},
		})).To(Succeed())
	})

	It("syncs a directory source with attributes intact", func() {
		cfg.Plan.Bootstrap = &types.BootstrapSpec{Source: "dir:/srv/rootfs"}

		Expect(bootstrap.Run(context.Background(), cfg, "/mnt")).To(Succeed())
		Expect(runner.CmdsMatch([][]string{
			{"rsync", "-aqAX", "/srv/rootfs/", "/mnt/"},
		})).To(Succeed())
	})

	It("rejects a source it cannot parse", func() {
		cfg.Plan.Bootstrap = &types.BootstrapSpec{Source: "oci:NOT_A_REFERENCE"}

		err := bootstrap.Run(context.Background(), cfg, "/mnt")
		Expect(err).To(MatchError(ContainSubstring("parsing bootstrap source")))
		Expect(runner.GetCmds()).To(BeEmpty())
	})
})
