package crypt

import (
	"fmt"
	"path/filepath"

	"github.com/Screamnox/sarchura/bus"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/utils"
	"github.com/jaypipes/ghw"
	ghwblock "github.com/jaypipes/ghw/pkg/block"
	"github.com/mudler/go-pluggable"
)

// UnlockAll opens every LUKS container found on the system that is not
// already mapped, asking the discovery plugins for each passphrase. Used by
// the recovery path when a provisioned disk has to be reopened.
func UnlockAll(log types.SarchuraLogger) error {
	blk, err := ghw.Block()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("Could not read partitions")
		return nil
	}

	for _, disk := range blk.Disks {
		for _, p := range disk.Partitions {
			if p.Type != "crypto_LUKS" {
				continue
			}
			// We map under /dev/mapper/NAME, so presence there means open
			if utils.Exists(filepath.Join("/dev", "mapper", p.Name)) {
				log.Logger.Info().Str("device", p.Name).Msg("Already unlocked, skipping")
				continue
			}
			log.Logger.Info().Str("device", p.Name).Msg("Locked LUKS container found")
			if err := unlockPartition(p, log); err != nil {
				log.Logger.Warn().Err(err).Str("device", p.Name).Msg("Unlocking failed")
				continue
			}
			log.Logger.Info().Str("device", p.Name).Msg("Unlocking succeeded")
		}
	}
	return nil
}

func unlockPartition(p *ghwblock.Partition, log types.SarchuraLogger) error {
	passphrase, err := discoverPassphrase(p, log)
	if err != nil {
		return fmt.Errorf("error retrieving passphrase: %w", err)
	}
	return luksUnlock(filepath.Join("/dev", p.Name), p.Name, passphrase)
}

func discoverPassphrase(p *ghwblock.Partition, log types.SarchuraLogger) (string, error) {
	b := bus.NewBus(bus.EventDiscoveryPassphrase)
	b.Initialize(bus.WithLogger(log))

	var passphrase string
	var respErr error
	b.Response(bus.EventDiscoveryPassphrase, func(_ *pluggable.Plugin, r *pluggable.EventResponse) {
		passphrase = r.Data
		if r.Errored() {
			respErr = fmt.Errorf("discovery failed: %s", r.Error)
		}
	})
	if _, err := b.Publish(bus.EventDiscoveryPassphrase, bus.DiscoveryPassphrasePayload{Partition: p, Attempt: 1}); err != nil {
		return "", err
	}
	if respErr != nil {
		return "", respErr
	}
	if passphrase == "" {
		return "", fmt.Errorf("received empty passphrase")
	}
	return passphrase, nil
}
