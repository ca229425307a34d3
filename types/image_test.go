package types_test

import (
	"github.com/Screamnox/sarchura/types"
	"gopkg.in/yaml.v3"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ImageSource", func() {
	It("parses the source schemes", func() {
		src, err := types.NewSrcFromURI("dir:/srv/rootfs")
		Expect(err).ToNot(HaveOccurred())
		Expect(src.IsDir()).To(BeTrue())
		Expect(src.Value()).To(Equal("/srv/rootfs"))

		src, err = types.NewSrcFromURI("file:/tmp/rootfs.tar.zst")
		Expect(err).ToNot(HaveOccurred())
		Expect(src.IsFile()).To(BeTrue())

		src, err = types.NewSrcFromURI("iso:/tmp/archlinux.iso")
		Expect(err).ToNot(HaveOccurred())
		Expect(src.IsISO()).To(BeTrue())
	})

	It("treats bare references as container images with a default tag", func() {
		src, err := types.NewSrcFromURI("archlinux/archlinux")
		Expect(err).ToNot(HaveOccurred())
		Expect(src.IsOCI()).To(BeTrue())
		Expect(src.Value()).To(Equal("archlinux/archlinux:latest"))
	})

	It("keeps an explicit tag", func() {
		src, err := types.NewSrcFromURI("oci:ghcr.io/foo/rootfs:v1.2")
		Expect(err).ToNot(HaveOccurred())
		Expect(src.IsOCI()).To(BeTrue())
		Expect(src.Value()).To(Equal("ghcr.io/foo/rootfs:v1.2"))
	})

	It("rejects references that are not valid image names", func() {
		_, err := types.NewSrcFromURI("oci:NOT_A_REFERENCE")
		Expect(err).To(MatchError(ContainSubstring("invalid image reference")))
	})

	It("round-trips through YAML", func() {
		src := types.NewDirSrc("/srv/rootfs")
		data, err := yaml.Marshal(src)
		Expect(err).ToNot(HaveOccurred())

		var decoded types.ImageSource
		Expect(yaml.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.IsDir()).To(BeTrue())
		Expect(decoded.Value()).To(Equal("/srv/rootfs"))
	})
})
