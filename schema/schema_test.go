package schema_test

import (
	"testing"

	"github.com/Screamnox/sarchura/schema"
	"github.com/Screamnox/sarchura/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSchema(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Schema test suite")
}

var _ = Describe("GenerateSchema", func() {
	It("reflects the plan fields into schema properties", func() {
		generated, err := schema.GenerateSchema()
		Expect(err).ToNot(HaveOccurred())

		Expect(generated).To(ContainSubstring(`"device"`))
		Expect(generated).To(ContainSubstring(`"confirm_erase"`))
		Expect(generated).To(ContainSubstring(`"volume_group"`))
		Expect(generated).To(ContainSubstring(`"passphrase"`))
		Expect(generated).To(ContainSubstring(`"root_size"`))
	})

	It("never exposes secret values", func() {
		generated, err := schema.GenerateSchema()
		Expect(err).ToNot(HaveOccurred())
		Expect(generated).ToNot(ContainSubstring(`"passwd_hash"`))
	})
})

var _ = Describe("Validate", func() {
	It("accepts a well-formed plan document", func() {
		doc := []byte(`
device: /dev/vda
confirm_erase: /dev/vda
esp_size: 512
root_size: 10240
volume_group: vg0
passphrase:
  source: env
  value: INSTALL_PASSPHRASE
filesystems:
  root: ext4
  home: xfs
`)
		Expect(schema.Validate(doc)).To(Succeed())
	})

	It("rejects values of the wrong type", func() {
		doc := []byte(`
device: /dev/vda
esp_size: "one gigabyte"
`)
		err := schema.Validate(doc)
		Expect(err).To(MatchError(ContainSubstring("does not match the schema")))
	})

	It("rejects a document that is not YAML at all", func() {
		err := schema.Validate([]byte("\tdevice: {{"))
		Expect(err).To(MatchError(ContainSubstring("parsing plan document")))
	})
})

var _ = Describe("ValidatePlan", func() {
	It("round-trips a sanitized plan", func() {
		plan := &types.InstallPlan{Device: "/dev/vda", ConfirmErase: "/dev/vda"}
		Expect(plan.Sanitize()).To(Succeed())
		Expect(schema.ValidatePlan(plan)).To(Succeed())
	})
})
