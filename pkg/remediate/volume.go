// Package remediate drives a volume to encryption compliance: protection on
// and a recovery password protector present. It owns the decision table for
// what is safe to do given the volume's current lifecycle state, and it never
// mutates a volume whose encryption subsystem is mid-operation or paused.
package remediate

// LifecycleState is the encryption subsystem's own state for a volume. The
// controller only ever observes it; the subsystem owns transitions.
type LifecycleState int

const (
	LifecycleUnknown LifecycleState = iota
	FullyDecrypted
	FullyEncrypted
	EncryptionInProgress
	DecryptionInProgress
	EncryptionPaused
	DecryptionPaused
)

func (s LifecycleState) String() string {
	switch s {
	case FullyDecrypted:
		return "fully decrypted"
	case FullyEncrypted:
		return "fully encrypted"
	case EncryptionInProgress:
		return "encryption in progress"
	case DecryptionInProgress:
		return "decryption in progress"
	case EncryptionPaused:
		return "encryption paused"
	case DecryptionPaused:
		return "decryption paused"
	default:
		return "unknown"
	}
}

// ProtectionStatus reports whether the configured key protectors are actively
// enforced. Independent of LifecycleState: a fully encrypted volume can sit
// with protection off, which is the broken state this package exists to fix.
type ProtectionStatus int

const (
	ProtectionOff ProtectionStatus = iota
	ProtectionOn
	ProtectionUnknown
)

func (p ProtectionStatus) String() string {
	switch p {
	case ProtectionOff:
		return "off"
	case ProtectionOn:
		return "on"
	default:
		return "unknown"
	}
}

// ProtectorKind collapses the subsystem's protector taxonomy to the kinds the
// controller cares about.
type ProtectorKind int

const (
	ProtectorOther ProtectorKind = iota
	ProtectorTPM
	ProtectorRecoveryPassword
)

func (k ProtectorKind) String() string {
	switch k {
	case ProtectorTPM:
		return "tpm"
	case ProtectorRecoveryPassword:
		return "recovery password"
	default:
		return "other"
	}
}

// KeyProtector is one configured protector. RecoveryPassword is populated
// only for recovery password protectors, and only when the subsystem
// released the secret.
type KeyProtector struct {
	Kind             ProtectorKind
	ID               string
	RecoveryPassword string
}

// Volume is a point-in-time snapshot of the unit under management. It is
// read fresh from the platform before and after every mutating step and
// never cached across one: the state is externally mutable.
type Volume struct {
	MountPoint     string
	Lifecycle      LifecycleState
	Protection     ProtectionStatus
	EncryptPercent float64
	Protectors     []KeyProtector
}

// HasProtector reports whether any protector of the given kind is configured.
func (v *Volume) HasProtector(kind ProtectorKind) bool {
	_, ok := v.Protector(kind)
	return ok
}

// Protector returns the first configured protector of the given kind.
func (v *Volume) Protector(kind ProtectorKind) (KeyProtector, bool) {
	for _, p := range v.Protectors {
		if p.Kind == kind {
			return p, true
		}
	}
	return KeyProtector{}, false
}

// Compliant reports whether the volume satisfies the end state the
// controller exists to establish: protection enforced and a recovery
// password protector configured.
func (v *Volume) Compliant() bool {
	return v.Protection == ProtectionOn && v.HasProtector(ProtectorRecoveryPassword)
}
