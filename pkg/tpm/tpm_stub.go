//go:build !windows

package tpm

func Query() (Status, error) {
	return Status{}, ErrNotSupported
}

func Provision() error {
	return ErrNotSupported
}
