// Package bitlocker talks to the Windows volume encryption subsystem
// (Win32_EncryptableVolume and friends) over WMI. It is the only package in
// the module that mutates device encryption state; everything above it works
// on the value objects returned by QueryVolume.
package bitlocker

import "errors"

// ErrNotSupported is returned by every operation on platforms without a
// BitLocker subsystem.
var ErrNotSupported = errors.New("bitlocker operations are only supported on Windows")

// Volume conversion status.
//
// Values and their meanings were taken from:
// https://learn.microsoft.com/en-us/windows/win32/secprov/getconversionstatus-win32-encryptablevolume
const (
	ConversionStatusFullyDecrypted       int32 = 0
	ConversionStatusFullyEncrypted       int32 = 1
	ConversionStatusEncryptionInProgress int32 = 2
	ConversionStatusDecryptionInProgress int32 = 3
	ConversionStatusEncryptionPaused     int32 = 4
	ConversionStatusDecryptionPaused     int32 = 5
)

// Specifies whether the volume and the encryption key (if any) are secured.
//
// Values and their meanings were taken from:
// https://learn.microsoft.com/en-us/windows/win32/secprov/getprotectionstatus-win32-encryptablevolume
const (
	ProtectionStatusUnprotected int32 = 0
	ProtectionStatusProtected   int32 = 1
	ProtectionStatusUnknown     int32 = 2
)

// Key protector types as returned by GetKeyProtectorType.
//
// https://learn.microsoft.com/en-us/windows/win32/secprov/getkeyprotectortype-win32-encryptablevolume
const (
	ProtectorTypeUnknown           int32 = 0
	ProtectorTypeTPM               int32 = 1
	ProtectorTypeExternalKey       int32 = 2
	ProtectorTypeNumericalPassword int32 = 3
	ProtectorTypeTPMAndPIN         int32 = 4
	ProtectorTypeTPMAndStartupKey  int32 = 5
	ProtectorTypeTPMAndPINAndKey   int32 = 6
	ProtectorTypePublicKey         int32 = 7
	ProtectorTypePassphrase        int32 = 8
)

const (
	// Error Codes
	ErrorCodeIODevice                   int32 = -2147023779
	ErrorCodeDriveIncompatibleVolume    int32 = -2144272206
	ErrorCodeNoTPMWithPassphrase        int32 = -2144272212
	ErrorCodePassphraseTooLong          int32 = -2144272214
	ErrorCodePolicyPassphraseNotAllowed int32 = -2144272278
	ErrorCodeNotDecrypted               int32 = -2144272327
	ErrorCodeInvalidPasswordFormat      int32 = -2144272331
	ErrorCodeBootableCDOrDVD            int32 = -2144272336
	ErrorCodeProtectorExists            int32 = -2144272335
	ErrorCodeTPMNotEnabled              int32 = -2144272378
	ErrorCodeNotActivated               int32 = -2144272384
)

// EncryptionError represents an error returned by the volume encryption
// subsystem.
type EncryptionError struct {
	msg  string // msg is the error message describing what went wrong.
	code int32  // code is the BitLocker-specific error code.
}

func NewEncryptionError(msg string, code int32) *EncryptionError {
	return &EncryptionError{
		msg:  msg,
		code: code,
	}
}

// Error returns the error message of the EncryptionError.
func (e *EncryptionError) Error() string {
	return e.msg
}

// Code returns the BitLocker-specific error code. These codes are defined by
// Microsoft and identify specific classes of encryption failures.
func (e *EncryptionError) Code() int32 {
	return e.code
}

// KeyProtector is one configured protector on a volume. RecoveryPassword is
// populated only for numerical password protectors, and only when the
// subsystem will release it (it never does for TPM protectors).
type KeyProtector struct {
	ID               string
	Type             int32
	RecoveryPassword string
}

// VolumeInfo is a point-in-time snapshot of a volume's encryption state. It
// is never updated in place; callers re-query instead.
type VolumeInfo struct {
	DriveLetter      string
	ConversionStatus int32
	ProtectionStatus int32
	EncryptPercent   float64
	Protectors       []KeyProtector
}
