package config

import (
	"github.com/Screamnox/sarchura/collector"
	"github.com/Screamnox/sarchura/types"
	vfs "github.com/twpayne/go-vfs/v4"
	mountUtils "k8s.io/mount-utils"
)

// You would probably be thinking, why is the Config struct in here? Well, the types
// package is already imported everywhere, so putting it here avoids cyclic imports
// and makes it easier to use across the codebase.

// Config bundles the collaborators every stage works through plus the plan
// they execute. Stages never reach for the host directly, everything goes
// through these.
type Config struct {
	Plan      *types.InstallPlan     `yaml:"plan,omitempty"`
	Collector collector.Config       `yaml:"-"`
	ConfigURL string                 `yaml:"config_url,omitempty"`
	Debug     bool                   `yaml:"debug,omitempty"`
	Strict    bool                   `yaml:"strict,omitempty"`
	Logger    types.SarchuraLogger   `yaml:"-"`
	Fs        types.SarchuraFS       `yaml:"-"`
	Mounter   mountUtils.Interface   `yaml:"-"`
	Runner    types.Runner           `yaml:"-"`
	Syscall   types.SyscallInterface `yaml:"-"`
	Client    types.HTTPClient       `yaml:"-"`
	Secrets   types.PassphraseSource `yaml:"-"`
	CloudInit types.CloudInitRunner  `yaml:"-"`
	Platform  *types.Platform        `yaml:"-"`
}

type Option func(c *Config)

func WithLogger(logger types.SarchuraLogger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithFs(fs types.SarchuraFS) Option {
	return func(c *Config) { c.Fs = fs }
}

func WithMounter(mounter mountUtils.Interface) Option {
	return func(c *Config) { c.Mounter = mounter }
}

func WithRunner(runner types.Runner) Option {
	return func(c *Config) { c.Runner = runner }
}

func WithSyscall(sys types.SyscallInterface) Option {
	return func(c *Config) { c.Syscall = sys }
}

func WithClient(client types.HTTPClient) Option {
	return func(c *Config) { c.Client = client }
}

func WithSecrets(source types.PassphraseSource) Option {
	return func(c *Config) { c.Secrets = source }
}

func WithCloudInitRunner(runner types.CloudInitRunner) Option {
	return func(c *Config) { c.CloudInit = runner }
}

func WithPlatform(platform *types.Platform) Option {
	return func(c *Config) { c.Platform = platform }
}

// NewConfig returns a Config with real collaborators for anything the
// options did not override.
func NewConfig(opts ...Option) *Config {
	c := &Config{}
	for _, o := range opts {
		o(c)
	}

	if c.Fs == nil {
		c.Fs = vfs.OSFS
	}
	if c.Mounter == nil {
		c.Mounter = mountUtils.New("")
	}
	if c.Runner == nil {
		c.Runner = &types.RealRunner{Logger: c.Logger}
	}
	if c.Syscall == nil {
		c.Syscall = &types.RealSyscall{}
	}
	if c.Client == nil {
		c.Client = types.NewHTTPClient()
	}
	if c.Platform == nil {
		c.Platform = types.HostPlatform()
	}

	return c
}
