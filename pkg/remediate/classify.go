package remediate

// Action is the single remediation path chosen for an inspected volume.
type Action int

const (
	// ActionSafeExit performs no mutation and reports success: remediation
	// is either unnecessary or unsafe to attempt right now.
	ActionSafeExit Action = iota
	// ActionVerifyAndBackup re-replicates the recovery password of an
	// already-compliant volume.
	ActionVerifyAndBackup
	// ActionConfigurePreEncrypted fixes a volume that is encrypted but has
	// protection off or protectors missing.
	ActionConfigurePreEncrypted
	// ActionMonitorThenReclassify waits for an in-flight decryption to
	// finish and then classifies the volume again.
	ActionMonitorThenReclassify
	// ActionEnableFresh enables encryption on a fully decrypted volume.
	ActionEnableFresh
)

func (a Action) String() string {
	switch a {
	case ActionVerifyAndBackup:
		return "verify and backup"
	case ActionConfigurePreEncrypted:
		return "configure pre-encrypted"
	case ActionMonitorThenReclassify:
		return "monitor then reclassify"
	case ActionEnableFresh:
		return "enable fresh"
	default:
		return "safe exit"
	}
}

// Classify maps an inspected volume to exactly one remediation action, with
// a human-readable reason for the run log.
//
// The invariant this table enforces: no action that mutates the volume is
// ever returned while the lifecycle state indicates an in-flight or paused
// conversion. Extensions to the table must preserve that.
func Classify(v *Volume) (Action, string) {
	switch v.Lifecycle {
	case FullyEncrypted:
		switch {
		case v.Protection == ProtectionOn && v.HasProtector(ProtectorRecoveryPassword):
			return ActionVerifyAndBackup, "volume already compliant"
		case v.Protection == ProtectionOn && v.HasProtector(ProtectorTPM):
			return ActionSafeExit, "protection on with hardware protector only; acceptable alternate configuration"
		default:
			return ActionConfigurePreEncrypted, "volume encrypted but protection off or protectors missing"
		}
	case EncryptionInProgress:
		return ActionSafeExit, "encryption already in progress; leaving the volume alone"
	case EncryptionPaused:
		return ActionSafeExit, "encryption paused; resuming is an explicit operator action"
	case DecryptionPaused:
		return ActionSafeExit, "decryption paused; resuming is an explicit operator action"
	case DecryptionInProgress:
		return ActionMonitorThenReclassify, "decryption in progress; waiting for it to finish"
	case FullyDecrypted:
		return ActionEnableFresh, "volume fully decrypted; enabling encryption"
	default:
		return ActionSafeExit, "unrecognized lifecycle state; not safe to act"
	}
}
