// Package partitioner writes the GPT layout the rest of the pipeline builds
// on: one EFI system partition, one container partition for the encrypted
// volume group. Everything goes through parted, then the result is verified
// by reading the table back from the device.
package partitioner

import (
	"context"
	"fmt"
	"time"

	"github.com/Screamnox/sarchura/block"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	retry "github.com/avast/retry-go"
)

// Partition wipes the target and writes the two-partition layout from the
// plan. It only returns once the kernel sees both partition nodes and the
// on-disk table matches what we asked for. The caller must have run
// Validate first, everything below this line destroys data.
func Partition(ctx context.Context, c *config.Config) (*types.PartitionTable, error) {
	plan := c.Plan
	device := plan.Device
	log := c.Logger.Logger.With().Str("device", device).Logger()

	espStart := constants.PartitionAlignmentMiB
	espEnd := espStart + plan.ESPSizeMiB

	steps := []struct {
		op   string
		args []string
	}{
		{"wipe signatures", []string{"wipefs", "--all", "--force", device}},
		{"create label", []string{"parted", "--script", device, "mklabel", constants.GPT}},
		{"create ESP", []string{"parted", "--script", device, "mkpart", constants.ESPLabel, "fat32",
			fmt.Sprintf("%dMiB", espStart), fmt.Sprintf("%dMiB", espEnd)}},
		{"flag ESP", []string{"parted", "--script", device, "set", "1", constants.ESPFlag, "on"}},
		{"create container", []string{"parted", "--script", device, "mkpart", "cryptlvm",
			fmt.Sprintf("%dMiB", espEnd), "100%"}},
		{"flag container", []string{"parted", "--script", device, "set", "2", constants.LVMFlag, "on"}},
		{"reread table", []string{"partprobe", device}},
		{"settle udev", []string{"udevadm", "settle"}},
	}

	for _, step := range steps {
		log.Debug().Str("op", step.op).Strs("cmd", step.args).Msg("Partitioning step")
		if out, err := c.Runner.RunContext(ctx, step.args[0], step.args[1:]...); err != nil {
			return nil, &types.PartitioningError{Device: device, Op: step.op,
				Err: fmt.Errorf("%w: %s", err, string(out))}
		}
	}

	if err := waitForPartitions(ctx, c, device); err != nil {
		return nil, &types.PartitioningError{Device: device, Op: "wait for re-enumeration", Err: err}
	}

	table, err := readTable(device)
	if err != nil {
		return nil, &types.PartitioningError{Device: device, Op: "verify table", Err: err}
	}
	if err := table.Validate(); err != nil {
		return nil, &types.PartitioningError{Device: device, Op: "verify table", Err: err}
	}

	log.Info().Uint64("esp_end", table.Entries[0].EndByte).Uint64("container_end", table.Entries[1].EndByte).
		Msg("Partition table written and verified")
	return table, nil
}

// waitForPartitions polls for both partition nodes with growing backoff
// instead of a fixed sleep, slow devices re-enumerate at their own pace.
func waitForPartitions(ctx context.Context, c *config.Config, device string) error {
	nodes := []string{block.PartitionPath(device, 1), block.PartitionPath(device, 2)}
	return retry.Do(
		func() error {
			for _, node := range nodes {
				if _, err := c.Fs.Stat(node); err != nil {
					return fmt.Errorf("partition %s not visible yet", node)
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(constants.PartitionVisibilityAttempts),
		retry.Delay(constants.PartitionVisibilityDelay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.Logger.Logger.Debug().Uint("attempt", n).Err(err).Msg("Waiting for partition nodes")
		}),
	)
}

// readTable reads the GPT back from the device and lifts it into the typed
// table, mapping the type GUIDs onto our roles.
func readTable(device string) (*types.PartitionTable, error) {
	parts, err := block.GetGPTPartitions(device)
	if err != nil {
		return nil, err
	}

	table := &types.PartitionTable{Device: device, Label: constants.GPT}
	for _, p := range parts {
		entry := types.TableEntry{
			Index:     p.Number,
			StartByte: p.StartByte(),
			EndByte:   p.EndByte(),
			Path:      block.PartitionPath(device, p.Number),
			UUID:      p.UUID,
		}
		switch p.TypeGUID {
		case block.ESPTypeGUID:
			entry.Role = types.RoleESP
			entry.Flags = []string{constants.BootFlag, constants.ESPFlag}
		case block.LVMTypeGUID:
			entry.Role = types.RoleLVM
			entry.Flags = []string{constants.LVMFlag}
		default:
			return nil, fmt.Errorf("partition %d carries unexpected type %s", p.Number, p.TypeGUID)
		}
		table.Entries = append(table.Entries, entry)
	}
	return table, nil
}
