package types

// PassphraseSource is the secrets collaborator handing out the encryption
// passphrase. Attempts are counted from 1; a source that can only ever
// produce one value simply returns it again and lets the caller detect the
// repeat. Passphrases never reach a logger.
type PassphraseSource interface {
	Name() string
	Passphrase(attempt int) (string, error)
}
