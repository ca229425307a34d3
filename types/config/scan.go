package config

import (
	"fmt"

	"github.com/Screamnox/sarchura/collector"
	"github.com/Screamnox/sarchura/types"
	"gopkg.in/yaml.v3"
)

// InstallKey is the top level configuration key the plan lives under.
const InstallKey = "install"

// DefaultScanDirs are searched for configuration files, later directories
// win on conflicting keys.
var DefaultScanDirs = []string{"/etc/sarchura", "/run/sarchura", "/oem"}

// Scan collects configuration from the scan directories, the kernel cmdline
// and any explicit overrides, and builds the Config carrying the resulting
// install plan. The plan is decoded but not sanitized, callers decide when
// defaults get filled in.
func Scan(opts []Option, collectorOpts ...collector.Option) (*Config, error) {
	o := &collector.Options{}
	if err := o.Apply(collectorOpts...); err != nil {
		return nil, err
	}
	if len(o.ScanDir) == 0 {
		o.ScanDir = DefaultScanDirs
	}

	collected, err := collector.Scan(o, func(d []byte) ([]byte, error) { return d, nil })
	if err != nil {
		return nil, fmt.Errorf("collecting configuration: %w", err)
	}

	cfg := NewConfig(opts...)
	cfg.Collector = *collected
	cfg.ConfigURL = collected.ConfigURL()

	plan, err := PlanFromValues(collected.Values)
	if err != nil {
		return nil, err
	}
	cfg.Plan = plan

	return cfg, nil
}

// PlanFromValues decodes the install section of merged configuration values
// into a typed plan. A missing section yields an empty plan, Sanitize will
// reject it later for the missing device.
func PlanFromValues(values collector.ConfigValues) (*types.InstallPlan, error) {
	plan := &types.InstallPlan{}

	section, found := values[InstallKey]
	if !found {
		return plan, nil
	}

	data, err := yaml.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("re-encoding install section: %w", err)
	}
	if err := yaml.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("decoding install plan: %w", err)
	}
	return plan, nil
}
