// Package rmm publishes values to the RMM agent's custom inventory fields.
// The agent reads these registry values on its next audit cycle, which makes
// the write purely local: recording the recovery password does not depend on
// network availability.
package rmm

import "errors"

// ErrNotSupported is returned on platforms without the RMM agent registry
// surface.
var ErrNotSupported = errors.New("rmm field store is only supported on Windows")

// agentKeyPath is the RMM agent's key, relative to HKEY_LOCAL_MACHINE.
const agentKeyPath = `SOFTWARE\CentraStage`

// FieldStore writes one named inventory field.
type FieldStore interface {
	SetField(name, value string) error
}
