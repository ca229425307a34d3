package types

import (
	"github.com/mudler/yip/pkg/schema"
)

// CloudInitRunner executes first-boot configuration stages against a rootfs.
// The modifier lets callers rewrite stages before they run.
type CloudInitRunner interface {
	Run(stage string, dirs ...string) error
	Analyze(stage string, dirs ...string)
	SetModifier(schema.Modifier)
}
