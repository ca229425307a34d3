package crypt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Screamnox/sarchura/bus"
	"github.com/Screamnox/sarchura/types"
	"github.com/jaypipes/ghw"
	ghwblock "github.com/jaypipes/ghw/pkg/block"
	"github.com/mudler/go-pluggable"
)

// NewPassphraseSource builds the secrets collaborator the plan asks for.
// The encryption stages only ever see the PassphraseSource interface, where
// the value came from stays here.
func NewPassphraseSource(plan *types.InstallPlan, logger types.SarchuraLogger) (types.PassphraseSource, error) {
	ref := plan.Passphrase
	switch ref.Source {
	case types.PassphraseLiteral:
		if ref.Value == "" {
			return nil, fmt.Errorf("literal passphrase source with empty value")
		}
		return staticSource{name: "literal", value: ref.Value}, nil
	case types.PassphraseEnv:
		if ref.Value == "" {
			return nil, fmt.Errorf("env passphrase source needs a variable name")
		}
		return envSource{variable: ref.Value}, nil
	case types.PassphraseFile:
		if ref.Value == "" {
			return nil, fmt.Errorf("file passphrase source needs a path")
		}
		return fileSource{path: ref.Value}, nil
	case types.PassphrasePlugin:
		return &pluginSource{device: plan.Device, logger: logger}, nil
	case types.PassphraseTPM:
		return tpmSource{}, nil
	default:
		return nil, fmt.Errorf("unknown passphrase source %q", ref.Source)
	}
}

type staticSource struct {
	name  string
	value string
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Passphrase(int) (string, error) { return s.value, nil }

type envSource struct {
	variable string
}

func (s envSource) Name() string { return "env" }

func (s envSource) Passphrase(int) (string, error) {
	v := os.Getenv(s.variable)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is empty", s.variable)
	}
	return v, nil
}

type fileSource struct {
	path string
}

func (s fileSource) Name() string { return "file" }

func (s fileSource) Passphrase(int) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("reading passphrase file: %w", err)
	}
	v := strings.TrimRight(string(data), "\n")
	if v == "" {
		return "", fmt.Errorf("passphrase file %s is empty", s.path)
	}
	return v, nil
}

// pluginSource asks the discovery plugins on the bus. Every attempt is a
// fresh publish carrying the attempt counter, so a plugin that prompts can
// ask its user again instead of replaying the rejected value.
type pluginSource struct {
	device string
	logger types.SarchuraLogger
}

func (s *pluginSource) Name() string { return "plugin" }

func (s *pluginSource) Passphrase(attempt int) (string, error) {
	b := bus.NewBus(bus.EventDiscoveryPassphrase)
	b.Initialize(bus.WithLogger(s.logger))

	var passphrase string
	var respErr error
	b.Response(bus.EventDiscoveryPassphrase, func(_ *pluggable.Plugin, r *pluggable.EventResponse) {
		passphrase = r.Data
		if r.Errored() {
			respErr = fmt.Errorf("discovery failed: %s", r.Error)
		}
	})

	payload := bus.DiscoveryPassphrasePayload{Partition: findGhwPartition(s.device), Attempt: attempt}
	if _, err := b.Publish(bus.EventDiscoveryPassphrase, payload); err != nil {
		return "", err
	}
	if respErr != nil {
		return "", respErr
	}
	if passphrase == "" {
		return "", fmt.Errorf("no discovery plugin provided a passphrase")
	}
	return passphrase, nil
}

// findGhwPartition looks the device up in the host block inventory so the
// plugin gets labels and UUIDs to work with. A bare name is sent when the
// scan cannot resolve it.
func findGhwPartition(device string) *ghwblock.Partition {
	name := filepath.Base(device)
	if info, err := ghw.Block(); err == nil {
		for _, disk := range info.Disks {
			for _, p := range disk.Partitions {
				if p.Name == name {
					return p
				}
			}
		}
	}
	return &ghwblock.Partition{Name: name}
}

type tpmSource struct{}

func (s tpmSource) Name() string { return "tpm" }

func (s tpmSource) Passphrase(int) (string, error) {
	return GetOrCreateTPMPassphrase("", "", "")
}
