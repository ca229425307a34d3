package installer

import (
	"errors"
	"testing"

	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestInstaller(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Installer test suite")
}

var _ = Describe("Stages", func() {
	It("runs the pipeline in provisioning order", func() {
		i := New(config.NewConfig(config.WithLogger(types.NewNullLogger())))

		var names []string
		for _, stage := range i.Stages() {
			names = append(names, stage.Name)
		}
		Expect(names).To(Equal([]string{
			"validate", "partition", "encrypt", "volumes",
			"filesystems", "bootstrap", "sysconfig",
		}))
	})

	It("registers reverts only for the stages that change reversible state", func() {
		i := New(config.NewConfig(config.WithLogger(types.NewNullLogger())))

		withRevert := map[string]bool{}
		for _, stage := range i.Stages() {
			withRevert[stage.Name] = stage.Revert != nil
		}
		Expect(withRevert["validate"]).To(BeFalse())
		Expect(withRevert["encrypt"]).To(BeTrue())
		Expect(withRevert["volumes"]).To(BeTrue())
		Expect(withRevert["filesystems"]).To(BeTrue())
		Expect(withRevert["sysconfig"]).To(BeFalse())
	})
})

var _ = Describe("cleanup", func() {
	var i *Installer
	var order []string

	revert := func(name string, err error) Stage {
		return Stage{
			Name: name,
			Revert: func(*config.Config, *State) error {
				order = append(order, name)
				return err
			},
		}
	}

	BeforeEach(func() {
		order = nil
		i = New(config.NewConfig(config.WithLogger(types.NewNullLogger())))
	})

	It("pops the revert stack newest first", func() {
		i.reverts = []Stage{revert("encrypt", nil), revert("volumes", nil), revert("filesystems", nil)}

		Expect(i.cleanup()).To(Succeed())
		Expect(order).To(Equal([]string{"filesystems", "volumes", "encrypt"}))
		Expect(i.reverts).To(BeEmpty())
	})

	It("keeps reverting after a failure and reports every error", func() {
		i.reverts = []Stage{
			revert("encrypt", errors.New("mapping busy")),
			revert("volumes", nil),
			revert("filesystems", errors.New("target busy")),
		}

		err := i.cleanup()
		Expect(err).To(HaveOccurred())
		Expect(order).To(Equal([]string{"filesystems", "volumes", "encrypt"}))
		Expect(err.Error()).To(ContainSubstring("reverting filesystems"))
		Expect(err.Error()).To(ContainSubstring("reverting encrypt"))
	})
})

var _ = Describe("planJSON", func() {
	It("never carries secrets into event payloads", func() {
		cfg := config.NewConfig(config.WithLogger(types.NewNullLogger()))
		cfg.Plan = &types.InstallPlan{
			Device:     "/dev/vda",
			Passphrase: types.PassphraseRef{Source: types.PassphraseLiteral, Value: "hunter2"},
			System: &types.SystemConfig{
				Users: []types.User{{Name: "arch", PasswordHash: "$6$salt$hash"}},
			},
		}
		Expect(cfg.Plan.Sanitize()).To(Succeed())

		i := New(cfg)
		rendered := i.planJSON()
		Expect(rendered).To(ContainSubstring(`"device":"/dev/vda"`))
		Expect(rendered).To(ContainSubstring(`"source":"literal"`))
		Expect(rendered).ToNot(ContainSubstring("hunter2"))
		Expect(rendered).ToNot(ContainSubstring("$6$salt$hash"))
	})
})
