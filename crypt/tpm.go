package crypt

import (
	"github.com/Screamnox/sarchura/utils"
	tpm "github.com/kairos-io/tpm-helpers"
)

// DefaultPassphraseNVIndex is the TPM NV index the sealed passphrase blob
// lives at when the plan does not pick one.
const DefaultPassphraseNVIndex = "0x1500000"

// GetOrCreateTPMPassphrase reads the sealed passphrase from TPM NV memory,
// generating and storing a fresh one when none exists yet. The passphrase
// never leaves the machine, which makes this source suitable for unattended
// installs that should only ever unlock on this hardware.
func GetOrCreateTPMPassphrase(nvIndex, cIndex, tpmDevice string) (string, error) {
	if nvIndex == "" {
		nvIndex = DefaultPassphraseNVIndex
	}

	opts := []tpm.TPMOption{tpm.WithIndex(nvIndex)}
	if tpmDevice != "" {
		opts = append(opts, tpm.WithDevice(tpmDevice))
	}

	sealed, err := tpm.ReadBlob(opts...)
	if err != nil {
		// Nothing stored yet, this machine gets a new one.
		return generateAndStoreTPMPassphrase(nvIndex, cIndex, tpmDevice)
	}

	decryptOpts := []tpm.TPMOption{}
	if cIndex != "" {
		decryptOpts = append(decryptOpts, tpm.WithIndex(cIndex))
	}
	if tpmDevice != "" {
		decryptOpts = append(decryptOpts, tpm.WithDevice(tpmDevice))
	}

	pass, err := tpm.DecryptBlob(sealed, decryptOpts...)
	return string(pass), err
}

func generateAndStoreTPMPassphrase(nvIndex, cIndex, tpmDevice string) (string, error) {
	opts := []tpm.TPMOption{}
	if tpmDevice != "" {
		opts = append(opts, tpm.WithDevice(tpmDevice))
	}
	if cIndex != "" {
		opts = append(opts, tpm.WithIndex(cIndex))
	}

	pass := utils.RandomString(32)

	blob, err := tpm.EncryptBlob([]byte(pass))
	if err != nil {
		return "", err
	}

	if nvIndex == "" {
		nvIndex = DefaultPassphraseNVIndex
	}
	opts = append(opts, tpm.WithIndex(nvIndex))

	return pass, tpm.StoreBlob(blob, opts...)
}
