// Package installer drives the provisioning pipeline: validation,
// partitioning, encryption, volume management, filesystems, and the
// supporting bootstrap and system configuration on top. Stages run strictly
// in order, the first failure aborts the run and unwinds whatever reversible
// effects earlier stages left behind.
package installer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Screamnox/sarchura/bootstrap"
	"github.com/Screamnox/sarchura/bus"
	"github.com/Screamnox/sarchura/crypt"
	"github.com/Screamnox/sarchura/filesystem"
	"github.com/Screamnox/sarchura/lvm"
	"github.com/Screamnox/sarchura/partitioner"
	"github.com/Screamnox/sarchura/sysconfig"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/hashicorp/go-multierror"
	"github.com/mudler/go-pluggable"
)

// State is what the stages hand each other. Every field is owned by the
// stage that sets it, later stages only read.
type State struct {
	Table  *types.PartitionTable
	Volume *types.EncryptedVolume
	Group  *types.VolumeGroup
	FS     *filesystem.Provisioner
}

// Stage is one pipeline step. Revert undoes the stage's reversible effects
// and is only registered after a successful Run; reverts execute in reverse
// order, both on failure and when releasing the target at the end.
type Stage struct {
	Name   string
	Run    func(ctx context.Context, c *config.Config, s *State) error
	Revert func(c *config.Config, s *State) error
}

// Installer runs the pipeline against the plan carried by its config.
type Installer struct {
	cfg     *config.Config
	bus     *bus.Bus
	state   State
	reverts []Stage
}

func New(cfg *config.Config) *Installer {
	return &Installer{cfg: cfg}
}

// Stages returns the pipeline in execution order.
func (i *Installer) Stages() []Stage {
	return []Stage{
		{
			Name: "validate",
			Run: func(_ context.Context, c *config.Config, _ *State) error {
				return partitioner.Validate(c)
			},
		},
		{
			Name: "partition",
			Run: func(ctx context.Context, c *config.Config, s *State) error {
				table, err := partitioner.Partition(ctx, c)
				if err != nil {
					return err
				}
				s.Table = table
				return nil
			},
		},
		{
			Name: "encrypt",
			Run: func(_ context.Context, c *config.Config, s *State) error {
				volume, err := crypt.Format(c, s.Table.LVM().Path)
				if err != nil {
					return err
				}
				if err := crypt.Open(c, volume); err != nil {
					return err
				}
				s.Volume = volume
				return nil
			},
			Revert: func(c *config.Config, s *State) error {
				return crypt.Close(c, s.Volume)
			},
		},
		{
			Name: "volumes",
			Run: func(_ context.Context, c *config.Config, s *State) error {
				group, err := lvm.Setup(c, s.Volume)
				if err != nil {
					return err
				}
				s.Group = group
				return nil
			},
			Revert: func(c *config.Config, s *State) error {
				return lvm.Deactivate(c, s.Group.Name)
			},
		},
		{
			Name: "filesystems",
			Run: func(_ context.Context, c *config.Config, s *State) error {
				s.FS = filesystem.NewProvisioner(c)
				return s.FS.Provision(s.Table, types.NewMountPlan(c.Plan, s.Table))
			},
			Revert: func(_ *config.Config, s *State) error {
				return s.FS.UnmountAll()
			},
		},
		{
			Name: "bootstrap",
			Run: func(ctx context.Context, c *config.Config, _ *State) error {
				return bootstrap.Run(ctx, c, c.Plan.InstallRoot)
			},
		},
		{
			Name: "sysconfig",
			Run: func(_ context.Context, c *config.Config, s *State) error {
				return sysconfig.Apply(c, s.Table, s.Volume)
			},
		},
	}
}

// Run executes the full pipeline. On success the target is released again,
// unmounted, deactivated and closed, ready for its first boot.
func (i *Installer) Run(ctx context.Context) error {
	plan := i.cfg.Plan
	if plan == nil {
		return fmt.Errorf("no install plan")
	}
	if err := plan.Sanitize(); err != nil {
		return err
	}

	if i.cfg.Secrets == nil {
		source, err := crypt.NewPassphraseSource(plan, i.cfg.Logger)
		if err != nil {
			return err
		}
		i.cfg.Secrets = source
	}

	i.bus = bus.NewBus()
	i.bus.Initialize(bus.WithLogger(i.cfg.Logger))
	i.publish(bus.EventInstallStart, bus.InstallPayload{Device: plan.Device, Config: i.planJSON()})

	for _, stage := range i.Stages() {
		i.cfg.Logger.Logger.Info().Str("stage", stage.Name).Str("device", plan.Device).Msg("Running stage")
		i.publish(bus.EventInstallStage, bus.StagePayload{Stage: stage.Name, Device: plan.Device})

		if err := stage.Run(ctx, i.cfg, &i.state); err != nil {
			i.cfg.Logger.Logger.Error().Str("stage", stage.Name).Err(err).Msg("Stage failed, unwinding")
			cleanupErr := i.cleanup()
			i.publish(bus.EventInstallError, bus.ErrorPayload{Stage: stage.Name, Error: err.Error()})
			if cleanupErr != nil {
				return multierror.Append(fmt.Errorf("stage %s: %w", stage.Name, err), cleanupErr)
			}
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		if stage.Revert != nil {
			i.reverts = append(i.reverts, stage)
		}
	}

	if err := i.cleanup(); err != nil {
		return fmt.Errorf("releasing target: %w", err)
	}

	i.publish(bus.EventInstallSuccess, bus.InstallPayload{Device: plan.Device, Config: i.planJSON()})
	i.cfg.Logger.Logger.Info().Str("device", plan.Device).Msg("Provisioning finished")
	return nil
}

// cleanup pops the revert stack, newest first. Every revert runs even when
// an earlier one fails, the errors are collected.
func (i *Installer) cleanup() error {
	var result *multierror.Error
	for n := len(i.reverts) - 1; n >= 0; n-- {
		stage := i.reverts[n]
		i.cfg.Logger.Logger.Info().Str("stage", stage.Name).Msg("Reverting stage")
		if err := stage.Revert(i.cfg, &i.state); err != nil {
			i.cfg.Logger.Logger.Error().Str("stage", stage.Name).Err(err).Msg("Revert failed")
			result = multierror.Append(result, fmt.Errorf("reverting %s: %w", stage.Name, err))
		}
	}
	i.reverts = nil
	return result.ErrorOrNil()
}

func (i *Installer) publish(event pluggable.EventType, payload interface{}) {
	if _, err := i.bus.Publish(event, payload); err != nil {
		i.cfg.Logger.Logger.Warn().Err(err).Str("event", string(event)).Msg("Publishing event failed")
	}
}

// planJSON renders the plan for event payloads. JSON, because the secret
// bearing fields are excluded from it.
func (i *Installer) planJSON() string {
	data, err := json.Marshal(i.cfg.Plan)
	if err != nil {
		return ""
	}
	return string(data)
}
