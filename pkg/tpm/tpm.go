// Package tpm checks and provisions the trusted platform module through the
// Win32_Tpm WMI class.
package tpm

import "errors"

// ErrNotSupported is returned on platforms without a TPM management surface.
var ErrNotSupported = errors.New("tpm operations are only supported on Windows")

// ErrNoTPM is returned when the machine exposes no TPM device at all.
var ErrNoTPM = errors.New("no TPM device present")

// Status is a point-in-time view of the module's usability for key
// protection.
type Status struct {
	Present bool
	Ready   bool
}
