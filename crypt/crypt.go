// Package crypt sets up the LUKS container on the LVM partition and manages
// its mapping. Formatting and closing shell out to cryptsetup, opening uses
// the native LUKS implementation so authentication failures can be told
// apart from tool failures.
package crypt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/utils"
	"github.com/anatol/luks.go"
	"github.com/gofrs/uuid"
	"golang.org/x/mod/semver"
)

// MinCryptsetupVersion is the oldest cryptsetup we accept, older ones
// mishandle the luks2 flags we pass.
const MinCryptsetupVersion = "v2.4.0"

// luksUnlock is swappable so tests can run without a real LUKS container.
var luksUnlock = func(device, mapper, passphrase string) error {
	dev, err := luks.Open(device)
	if err != nil {
		return err
	}
	defer dev.Close()
	return dev.Unlock(0, []byte(passphrase), mapper)
}

// Format initializes the container partition as a LUKS volume using the
// first passphrase from the secrets collaborator. The passphrase travels on
// stdin and never reaches a log line.
func Format(c *config.Config, device string) (*types.EncryptedVolume, error) {
	if err := checkCryptsetupVersion(c); err != nil {
		return nil, &types.EncryptionSetupError{Device: device, Op: "version check", Err: err}
	}

	mapperName := c.Plan.MapperName
	if mapperName == "" {
		mapperName = uuid.NewV5(uuid.NamespaceURL, device).String()
	}

	passphrase, err := c.Secrets.Passphrase(1)
	if err != nil {
		return nil, &types.EncryptionSetupError{Device: device, Op: "passphrase", Err: err}
	}

	volUUID := uuid.NewV5(uuid.NamespaceURL, device).String()
	args := []string{"luksFormat", "--type", constants.LuksVersion,
		"--iter-time", constants.LuksIterTime, "-q", "--uuid", volUUID, device}

	c.Logger.Logger.Info().Str("device", device).Msg("Creating LUKS container")
	if out, err := c.Runner.RunWithInput(passphrase, "cryptsetup", args...); err != nil {
		return nil, &types.EncryptionSetupError{Device: device, Op: "format",
			Err: fmt.Errorf("%w: %s", err, string(out))}
	}

	return &types.EncryptedVolume{Device: device, MapperName: mapperName, UUID: volUUID}, nil
}

// Open unlocks the container under its mapper name. A rejected passphrase is
// retried only with a fresh value from the source; handing back the same one
// twice aborts, a repeat can never succeed where the original failed. Any
// partial mapping is closed before an error surfaces.
func Open(c *config.Config, volume *types.EncryptedVolume) error {
	device := volume.Device
	var previous string

	for attempt := 1; attempt <= constants.MaxPassphraseAttempts; attempt++ {
		passphrase, err := c.Secrets.Passphrase(attempt)
		if err != nil {
			return &types.EncryptionSetupError{Device: device, Op: "passphrase", Err: err}
		}
		if attempt > 1 && passphrase == previous {
			c.Logger.Logger.Debug().Str("device", device).Msg("Source repeated the rejected passphrase, giving up")
			return &types.WrongPassphraseError{Device: device}
		}
		previous = passphrase

		err = luksUnlock(device, volume.MapperName, passphrase)
		if err == nil {
			if err := waitDevice(c, volume.MappedPath()); err != nil {
				closeQuietly(c, volume)
				return &types.EncryptionSetupError{Device: device, Op: "wait mapping", Err: err}
			}
			c.Logger.Logger.Info().Str("device", device).Str("mapper", volume.MapperName).Msg("LUKS container opened")
			return nil
		}

		if errors.Is(err, luks.ErrPassphraseDoesNotMatch) {
			closeQuietly(c, volume)
			c.Logger.Logger.Warn().Str("device", device).Int("attempt", attempt).Msg("Passphrase rejected")
			continue
		}

		closeQuietly(c, volume)
		return &types.EncryptionSetupError{Device: device, Op: "open", Err: err}
	}

	return &types.WrongPassphraseError{Device: device}
}

// Close releases the mapping. Safe to call when it is already gone.
func Close(c *config.Config, volume *types.EncryptedVolume) error {
	if !utils.Exists(volume.MappedPath()) {
		return nil
	}
	if out, err := c.Runner.Run("cryptsetup", "close", volume.MapperName); err != nil {
		return fmt.Errorf("closing %s: %w: %s", volume.MapperName, err, string(out))
	}
	c.Logger.Logger.Info().Str("mapper", volume.MapperName).Msg("LUKS container closed")
	return nil
}

func closeQuietly(c *config.Config, volume *types.EncryptedVolume) {
	if err := Close(c, volume); err != nil {
		c.Logger.Logger.Warn().Err(err).Str("mapper", volume.MapperName).Msg("Could not close mapping")
	}
}

// waitDevice polls until the mapper node shows up, settling udev between
// tries so the node has a chance to be created at all.
func waitDevice(c *config.Config, device string) error {
	for tries := 0; tries < constants.PartitionVisibilityAttempts; tries++ {
		if _, err := c.Runner.Run("udevadm", "settle"); err != nil {
			return err
		}
		c.Syscall.Sync()
		if _, err := c.Fs.Lstat(device); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no device found %s", device)
}

func checkCryptsetupVersion(c *config.Config) error {
	out, err := c.Runner.Run("cryptsetup", "--version")
	if err != nil {
		return fmt.Errorf("cryptsetup not usable: %w", err)
	}
	// Output looks like "cryptsetup 2.7.2 flags: UDEV BLKID ..."
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return fmt.Errorf("cannot parse cryptsetup version from %q", string(out))
	}
	version := "v" + strings.TrimPrefix(fields[1], "v")
	if !semver.IsValid(version) {
		return fmt.Errorf("cannot parse cryptsetup version %q", fields[1])
	}
	if semver.Compare(version, MinCryptsetupVersion) < 0 {
		return fmt.Errorf("cryptsetup %s is older than required %s", version, MinCryptsetupVersion)
	}
	return nil
}
