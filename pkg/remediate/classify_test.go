package remediate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	tpmProtector      = KeyProtector{Kind: ProtectorTPM, ID: "tpm-1"}
	recoveryProtector = KeyProtector{Kind: ProtectorRecoveryPassword, ID: "rp-1", RecoveryPassword: "111111-222222"}
)

// one case per row of the transition table
func TestClassify(t *testing.T) {
	cases := []struct {
		desc       string
		lifecycle  LifecycleState
		protection ProtectionStatus
		protectors []KeyProtector
		want       Action
	}{
		{"encrypted, protected, recovery password", FullyEncrypted, ProtectionOn, []KeyProtector{tpmProtector, recoveryProtector}, ActionVerifyAndBackup},
		{"encrypted, protected, hardware only", FullyEncrypted, ProtectionOn, []KeyProtector{tpmProtector}, ActionSafeExit},
		{"encrypted, protected, no protectors", FullyEncrypted, ProtectionOn, nil, ActionConfigurePreEncrypted},
		{"encrypted, unprotected", FullyEncrypted, ProtectionOff, []KeyProtector{tpmProtector, recoveryProtector}, ActionConfigurePreEncrypted},
		{"encrypted, unprotected, no protectors", FullyEncrypted, ProtectionOff, nil, ActionConfigurePreEncrypted},
		{"encryption in progress", EncryptionInProgress, ProtectionOff, nil, ActionSafeExit},
		{"encryption in progress, protected", EncryptionInProgress, ProtectionOn, []KeyProtector{recoveryProtector}, ActionSafeExit},
		{"encryption paused", EncryptionPaused, ProtectionOff, nil, ActionSafeExit},
		{"decryption paused", DecryptionPaused, ProtectionOff, []KeyProtector{recoveryProtector}, ActionSafeExit},
		{"decryption in progress", DecryptionInProgress, ProtectionOff, nil, ActionMonitorThenReclassify},
		{"fully decrypted", FullyDecrypted, ProtectionOff, nil, ActionEnableFresh},
		{"unrecognized state", LifecycleUnknown, ProtectionOff, nil, ActionSafeExit},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			v := &Volume{
				MountPoint: "C:",
				Lifecycle:  c.lifecycle,
				Protection: c.protection,
				Protectors: c.protectors,
			}
			got, reason := Classify(v)
			require.Equal(t, c.want, got)
			require.NotEmpty(t, reason)
		})
	}
}

// the core safety guarantee: in-flight or paused conversions never classify
// to a mutating action, whatever the rest of the volume looks like
func TestClassifyNeverMutatesInFlight(t *testing.T) {
	inFlight := []LifecycleState{EncryptionInProgress, EncryptionPaused, DecryptionPaused}
	protections := []ProtectionStatus{ProtectionOff, ProtectionOn, ProtectionUnknown}
	protectorSets := [][]KeyProtector{nil, {tpmProtector}, {recoveryProtector}, {tpmProtector, recoveryProtector}}

	for _, lifecycle := range inFlight {
		for _, protection := range protections {
			for _, protectors := range protectorSets {
				v := &Volume{Lifecycle: lifecycle, Protection: protection, Protectors: protectors}
				got, _ := Classify(v)
				require.Equal(t, ActionSafeExit, got,
					"lifecycle=%s protection=%s protectors=%d", lifecycle, protection, len(protectors))
			}
		}
	}
}

func TestVolumeCompliant(t *testing.T) {
	require.True(t, (&Volume{Protection: ProtectionOn, Protectors: []KeyProtector{recoveryProtector}}).Compliant())
	require.False(t, (&Volume{Protection: ProtectionOff, Protectors: []KeyProtector{recoveryProtector}}).Compliant())
	require.False(t, (&Volume{Protection: ProtectionOn, Protectors: []KeyProtector{tpmProtector}}).Compliant())
	require.False(t, (&Volume{Protection: ProtectionOn}).Compliant())
}
