package cryptoprovider

import "fmt"

func errInvalidKeySize(what string, want, got int) error {
	return fmt.Errorf("cryptoprovider: %s must be %d bytes, got %d", what, want, got)
}

// ErrInvalidSeedSize reports a mnemonic seed of the wrong length.
// Exported so callers outside the package (identity construction) can
// raise the same error shape without duplicating the message format.
func ErrInvalidSeedSize(want, got int) error {
	return errInvalidKeySize("mnemonic seed", want, got)
}

func errConversion(msg string) error {
	return fmt.Errorf("cryptoprovider: %s", msg)
}
