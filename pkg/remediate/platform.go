package remediate

import (
	"fmt"

	"github.com/diskguard/diskguard/pkg/bitlocker"
)

// Platform is the operation set of the volume encryption subsystem. All
// calls are synchronous; any of them can fail with a platform error. The
// production implementation is BitLockerPlatform; tests substitute a fake.
type Platform interface {
	// QueryVolume returns a fresh snapshot of the volume. It has no side
	// effects and is called dozens of times during a monitoring run.
	QueryVolume(mountPoint string) (*Volume, error)
	// PrepareVolume readies a fully decrypted volume for encryption.
	PrepareVolume(mountPoint string) error
	// AddTPMProtector adds the hardware-backed protector.
	AddTPMProtector(mountPoint string) error
	// AddRecoveryPasswordProtector adds a protector whose password is
	// generated by the subsystem, returning the protector and its password.
	AddRecoveryPasswordProtector(mountPoint string) (KeyProtector, error)
	// Encrypt starts background conversion using the configured protectors.
	Encrypt(mountPoint string) error
	// ResumeProtection re-enables configured protectors on an encrypted
	// volume. The correct method for a volume encrypted with protection off.
	ResumeProtection(mountPoint string) error
	// EnableProtection turns protection on skipping the hardware test;
	// fallback when ResumeProtection fails.
	EnableProtection(mountPoint string) error
	// BackupProtectorToAD escrows recovery information in the on-prem
	// directory service.
	BackupProtectorToAD(mountPoint, protectorID string) error
	// BackupProtectorToAAD escrows recovery information in the cloud
	// directory service.
	BackupProtectorToAAD(mountPoint, protectorID string) error
}

// BitLockerPlatform implements Platform on top of the bitlocker package.
type BitLockerPlatform struct{}

var _ Platform = BitLockerPlatform{}

func lifecycleFromConversionStatus(status int32) LifecycleState {
	switch status {
	case bitlocker.ConversionStatusFullyDecrypted:
		return FullyDecrypted
	case bitlocker.ConversionStatusFullyEncrypted:
		return FullyEncrypted
	case bitlocker.ConversionStatusEncryptionInProgress:
		return EncryptionInProgress
	case bitlocker.ConversionStatusDecryptionInProgress:
		return DecryptionInProgress
	case bitlocker.ConversionStatusEncryptionPaused:
		return EncryptionPaused
	case bitlocker.ConversionStatusDecryptionPaused:
		return DecryptionPaused
	default:
		return LifecycleUnknown
	}
}

func protectionFromStatus(status int32) ProtectionStatus {
	switch status {
	case bitlocker.ProtectionStatusUnprotected:
		return ProtectionOff
	case bitlocker.ProtectionStatusProtected:
		return ProtectionOn
	default:
		return ProtectionUnknown
	}
}

func protectorKindFromType(protectorType int32) ProtectorKind {
	switch protectorType {
	case bitlocker.ProtectorTypeTPM,
		bitlocker.ProtectorTypeTPMAndPIN,
		bitlocker.ProtectorTypeTPMAndStartupKey,
		bitlocker.ProtectorTypeTPMAndPINAndKey:
		return ProtectorTPM
	case bitlocker.ProtectorTypeNumericalPassword:
		return ProtectorRecoveryPassword
	default:
		return ProtectorOther
	}
}

func (BitLockerPlatform) QueryVolume(mountPoint string) (*Volume, error) {
	info, err := bitlocker.QueryVolume(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("querying volume %s: %w", mountPoint, err)
	}

	v := &Volume{
		MountPoint:     mountPoint,
		Lifecycle:      lifecycleFromConversionStatus(info.ConversionStatus),
		Protection:     protectionFromStatus(info.ProtectionStatus),
		EncryptPercent: info.EncryptPercent,
	}
	for _, p := range info.Protectors {
		v.Protectors = append(v.Protectors, KeyProtector{
			Kind:             protectorKindFromType(p.Type),
			ID:               p.ID,
			RecoveryPassword: p.RecoveryPassword,
		})
	}

	return v, nil
}

func (BitLockerPlatform) PrepareVolume(mountPoint string) error {
	return bitlocker.PrepareVolume(mountPoint)
}

func (BitLockerPlatform) AddTPMProtector(mountPoint string) error {
	return bitlocker.AddTPMProtector(mountPoint)
}

func (BitLockerPlatform) AddRecoveryPasswordProtector(mountPoint string) (KeyProtector, error) {
	id, password, err := bitlocker.AddRecoveryPasswordProtector(mountPoint)
	if err != nil {
		return KeyProtector{}, err
	}
	return KeyProtector{Kind: ProtectorRecoveryPassword, ID: id, RecoveryPassword: password}, nil
}

func (BitLockerPlatform) Encrypt(mountPoint string) error {
	return bitlocker.Encrypt(mountPoint)
}

func (BitLockerPlatform) ResumeProtection(mountPoint string) error {
	return bitlocker.ResumeProtection(mountPoint)
}

func (BitLockerPlatform) EnableProtection(mountPoint string) error {
	return bitlocker.EnableProtectionSkipHardwareTest(mountPoint)
}

func (BitLockerPlatform) BackupProtectorToAD(mountPoint, protectorID string) error {
	return bitlocker.BackupProtectorToAD(mountPoint, protectorID)
}

func (BitLockerPlatform) BackupProtectorToAAD(mountPoint, protectorID string) error {
	return bitlocker.BackupProtectorToAAD(mountPoint, protectorID)
}
