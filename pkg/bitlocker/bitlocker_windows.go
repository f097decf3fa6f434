//go:build windows

package bitlocker

import (
	"fmt"
	"syscall"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/scjalliance/comshim"
)

// Encryption Methods
// https://docs.microsoft.com/en-us/windows/win32/secprov/getencryptionmethod-win32-encryptablevolume
type EncryptionMethod int32

const (
	None EncryptionMethod = iota
	AES128WithDiffuser
	AES256WithDiffuser
	AES128
	AES256
	HardwareEncryption
	XtsAES128
	XtsAES256
)

// Encryption Flags
// https://docs.microsoft.com/en-us/windows/win32/secprov/encrypt-win32-encryptablevolume
type EncryptionFlag int32

const (
	EncryptDataOnly    EncryptionFlag = 0x00000001
	EncryptDemandWipe  EncryptionFlag = 0x00000002
	EncryptSynchronous EncryptionFlag = 0x00010000
)

// DiscoveryVolumeType specifies the type of discovery volume to be used by Prepare.
// https://docs.microsoft.com/en-us/windows/win32/secprov/preparevolume-win32-encryptablevolume
type DiscoveryVolumeType string

const (
	VolumeTypeNone    DiscoveryVolumeType = "<none>"
	VolumeTypeDefault DiscoveryVolumeType = "<default>"
	VolumeTypeFAT32   DiscoveryVolumeType = "FAT32"
)

// ForceEncryptionType specifies the encryption type to be used when calling Prepare on the volume.
// https://docs.microsoft.com/en-us/windows/win32/secprov/preparevolume-win32-encryptablevolume
type ForceEncryptionType int32

const (
	EncryptionTypeUnspecified ForceEncryptionType = 0
	EncryptionTypeSoftware    ForceEncryptionType = 1
	EncryptionTypeHardware    ForceEncryptionType = 2
)

func encryptErrHandler(val int32) error {
	var msg string

	switch val {
	case ErrorCodeIODevice:
		msg = "an I/O error has occurred during encryption; the device may need to be reset"
	case ErrorCodeDriveIncompatibleVolume:
		msg = "the drive specified does not support hardware-based encryption"
	case ErrorCodeNoTPMWithPassphrase:
		msg = "a TPM key protector cannot be added because a password protector exists on the drive"
	case ErrorCodePassphraseTooLong:
		msg = "the passphrase cannot exceed 256 characters"
	case ErrorCodePolicyPassphraseNotAllowed:
		msg = "group Policy settings do not permit the creation of a password"
	case ErrorCodeNotDecrypted:
		msg = "the drive must be fully decrypted to complete this operation"
	case ErrorCodeInvalidPasswordFormat:
		msg = "the format of the recovery password provided is invalid"
	case ErrorCodeBootableCDOrDVD:
		msg = "BitLocker Drive Encryption detected bootable media (CD or DVD) in the computer"
	case ErrorCodeProtectorExists:
		msg = "key protector cannot be added; only one key protector of this type is allowed for this drive"
	case ErrorCodeTPMNotEnabled:
		msg = "the TPM is disabled or deactivated and cannot secure the encryption key"
	case ErrorCodeNotActivated:
		msg = "BitLocker is not activated on this drive"
	default:
		msg = fmt.Sprintf("error code returned during encryption: %d", val)
	}

	return &EncryptionError{msg, val}
}

// volume wraps the WMI handles for one Win32_EncryptableVolume instance.
type volume struct {
	letter  string
	handle  *ole.IDispatch
	wmiIntf *ole.IDispatch
	wmiSvc  *ole.IDispatch
}

// close frees all resources associated with a volume.
func (v *volume) close() {
	if v.handle != nil {
		v.handle.Release()
	}

	if v.wmiIntf != nil {
		v.wmiIntf.Release()
	}

	if v.wmiSvc != nil {
		v.wmiSvc.Release()
	}

	comshim.Done()
}

// connect binds to the Win32_EncryptableVolume instance for a drive letter.
func connect(driveLetter string) (volume, error) {
	comshim.Add(1)
	v := volume{letter: driveLetter}

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		comshim.Done()
		return v, fmt.Errorf("createObject: %w", err)
	}
	defer unknown.Release()

	v.wmiIntf, err = unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		comshim.Done()
		return v, fmt.Errorf("queryInterface: %w", err)
	}
	serviceRaw, err := oleutil.CallMethod(v.wmiIntf, "ConnectServer", nil, `\\.\ROOT\CIMV2\Security\MicrosoftVolumeEncryption`)
	if err != nil {
		v.close()
		return v, fmt.Errorf("connectServer: %w", err)
	}
	v.wmiSvc = serviceRaw.ToIDispatch()

	raw, err := oleutil.CallMethod(v.wmiSvc, "ExecQuery", "SELECT * FROM Win32_EncryptableVolume WHERE DriveLetter = '"+driveLetter+"'")
	if err != nil {
		v.close()
		return v, fmt.Errorf("execQuery: %w", err)
	}
	result := raw.ToIDispatch()
	defer result.Release()

	itemRaw, err := oleutil.CallMethod(result, "ItemIndex", 0)
	if err != nil {
		v.close()
		return v, fmt.Errorf("fetching encryptable volume instance for %s: %w", driveLetter, err)
	}
	v.handle = itemRaw.ToIDispatch()

	return v, nil
}

// conversionStatus returns the conversion status, protection status and
// encryption percentage of the volume.
// https://learn.microsoft.com/en-us/windows/win32/secprov/getconversionstatus-win32-encryptablevolume
func (v *volume) conversionStatus() (conversion, protection int32, percent float64, err error) {
	var (
		conversionStatus     int32
		encryptionPercentage int32
		encryptionFlags      int32
		wipingStatus         int32
		wipingPercentage     int32
		precisionFactor      int32 = 4
		protectionStatus     int32
	)

	resultRaw, err := oleutil.CallMethod(v.handle, "GetConversionStatus", &conversionStatus, &encryptionPercentage, &encryptionFlags, &wipingStatus, &wipingPercentage, precisionFactor)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("GetConversionStatus(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return 0, 0, 0, fmt.Errorf("GetConversionStatus(%s): %w", v.letter, encryptErrHandler(val))
	}

	resultRaw, err = oleutil.CallMethod(v.handle, "GetProtectionStatus", &protectionStatus)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("GetProtectionStatus(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return 0, 0, 0, fmt.Errorf("GetProtectionStatus(%s): %w", v.letter, encryptErrHandler(val))
	}

	// the subsystem reports percentages scaled by the precision factor
	return conversionStatus, protectionStatus, float64(encryptionPercentage) / 10000.0, nil
}

// keyProtectors enumerates all protectors on the volume along with their
// types and, for numerical password protectors, the recovery password.
// https://learn.microsoft.com/en-us/windows/win32/secprov/getkeyprotectors-win32-encryptablevolume
func (v *volume) keyProtectors() ([]KeyProtector, error) {
	var keyProtectorResults ole.VARIANT
	ole.VariantInit(&keyProtectorResults)

	// protector type 0 enumerates every protector on the volume
	keyIDResultRaw, err := oleutil.CallMethod(v.handle, "GetKeyProtectors", 0, &keyProtectorResults)
	if err != nil {
		return nil, fmt.Errorf("GetKeyProtectors(%s): %w", v.letter, err)
	} else if val, ok := keyIDResultRaw.Value().(int32); val != 0 || !ok {
		return nil, fmt.Errorf("GetKeyProtectors(%s): %w", v.letter, encryptErrHandler(val))
	}

	var protectors []KeyProtector
	for _, keyIDItemRaw := range keyProtectorResults.ToArray().ToValueArray() {
		keyID, ok := keyIDItemRaw.(string)
		if !ok {
			return nil, fmt.Errorf("GetKeyProtectors(%s): protector ID is not a string", v.letter)
		}

		p := KeyProtector{ID: keyID}

		var protectorType int32
		typeResultRaw, err := oleutil.CallMethod(v.handle, "GetKeyProtectorType", keyID, &protectorType)
		if err != nil {
			return nil, fmt.Errorf("GetKeyProtectorType(%s, %s): %w", v.letter, keyID, err)
		} else if val, ok := typeResultRaw.Value().(int32); val != 0 || !ok {
			return nil, fmt.Errorf("GetKeyProtectorType(%s, %s): %w", v.letter, keyID, encryptErrHandler(val))
		}
		p.Type = protectorType

		if protectorType == ProtectorTypeNumericalPassword {
			var recoveryKey ole.VARIANT
			ole.VariantInit(&recoveryKey)
			pwResultRaw, err := oleutil.CallMethod(v.handle, "GetKeyProtectorNumericalPassword", keyID, &recoveryKey)
			if err == nil {
				if val, ok := pwResultRaw.Value().(int32); val == 0 && ok {
					p.RecoveryPassword = recoveryKey.ToString()
				}
			}
			// a protector whose password the subsystem won't release is
			// still reported, just without the secret
		}

		protectors = append(protectors, p)
	}

	return protectors, nil
}

// prepare readies the volume for encryption. Must be called before any key
// protectors are added on a fully decrypted volume.
// https://docs.microsoft.com/en-us/windows/win32/secprov/preparevolume-win32-encryptablevolume
func (v *volume) prepare(volType DiscoveryVolumeType, encType ForceEncryptionType) error {
	resultRaw, err := oleutil.CallMethod(v.handle, "PrepareVolume", string(volType), int32(encType))
	if err != nil {
		return fmt.Errorf("PrepareVolume(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("PrepareVolume(%s): %w", v.letter, encryptErrHandler(val))
	}
	return nil
}

// encrypt starts conversion on the volume.
// https://docs.microsoft.com/en-us/windows/win32/secprov/encrypt-win32-encryptablevolume
func (v *volume) encrypt(method EncryptionMethod, flags EncryptionFlag) error {
	resultRaw, err := oleutil.CallMethod(v.handle, "Encrypt", int32(method), int32(flags))
	if err != nil {
		return fmt.Errorf("Encrypt(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("Encrypt(%s): %w", v.letter, encryptErrHandler(val))
	}

	return nil
}

// protectWithNumericalPassword adds a numerical password key protector with a
// password generated by the subsystem, and reads the generated password back.
// https://docs.microsoft.com/en-us/windows/win32/secprov/protectkeywithnumericalpassword-win32-encryptablevolume
func (v *volume) protectWithNumericalPassword() (id, password string, err error) {
	var volumeKeyProtectorID ole.VARIANT
	ole.VariantInit(&volumeKeyProtectorID)

	resultRaw, err := oleutil.CallMethod(v.handle, "ProtectKeyWithNumericalPassword", nil, nil, &volumeKeyProtectorID)
	if err != nil {
		return "", "", fmt.Errorf("ProtectKeyWithNumericalPassword(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return "", "", fmt.Errorf("ProtectKeyWithNumericalPassword(%s): %w", v.letter, encryptErrHandler(val))
	}

	protectorID := volumeKeyProtectorID.ToString()

	var recoveryKey ole.VARIANT
	ole.VariantInit(&recoveryKey)
	resultRaw, err = oleutil.CallMethod(v.handle, "GetKeyProtectorNumericalPassword", protectorID, &recoveryKey)
	if err != nil {
		return "", "", fmt.Errorf("GetKeyProtectorNumericalPassword(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return "", "", fmt.Errorf("GetKeyProtectorNumericalPassword(%s): %w", v.letter, encryptErrHandler(val))
	}

	return protectorID, recoveryKey.ToString(), nil
}

// protectWithTPM adds the TPM key protector.
// https://docs.microsoft.com/en-us/windows/win32/secprov/protectkeywithtpm-win32-encryptablevolume
func (v *volume) protectWithTPM(platformValidationProfile *[]uint8) error {
	var volumeKeyProtectorID ole.VARIANT
	ole.VariantInit(&volumeKeyProtectorID)
	var resultRaw *ole.VARIANT
	var err error

	if platformValidationProfile == nil {
		resultRaw, err = oleutil.CallMethod(v.handle, "ProtectKeyWithTPM", nil, nil, &volumeKeyProtectorID)
	} else {
		resultRaw, err = oleutil.CallMethod(v.handle, "ProtectKeyWithTPM", nil, *platformValidationProfile, &volumeKeyProtectorID)
	}
	if err != nil {
		return fmt.Errorf("ProtectKeyWithTPM(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("ProtectKeyWithTPM(%s): %w", v.letter, encryptErrHandler(val))
	}

	return nil
}

// enableKeyProtectors resumes protection on a volume whose protectors are
// configured but disabled. This is the WMI equivalent of Resume-BitLocker.
// https://learn.microsoft.com/en-us/windows/win32/secprov/enablekeyprotectors-win32-encryptablevolume
func (v *volume) enableKeyProtectors() error {
	resultRaw, err := oleutil.CallMethod(v.handle, "EnableKeyProtectors")
	if err != nil {
		return fmt.Errorf("EnableKeyProtectors(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("EnableKeyProtectors(%s): %w", v.letter, encryptErrHandler(val))
	}

	return nil
}

// backupToActiveDirectory escrows a protector's recovery information in the
// on-prem directory. Fails on machines that are not domain joined.
// https://learn.microsoft.com/en-us/windows/win32/secprov/backuprecoveryinformationtoactivedirectory-win32-encryptablevolume
func (v *volume) backupToActiveDirectory(protectorID string) error {
	resultRaw, err := oleutil.CallMethod(v.handle, "BackupRecoveryInformationToActiveDirectory", protectorID)
	if err != nil {
		return fmt.Errorf("BackupRecoveryInformationToActiveDirectory(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("BackupRecoveryInformationToActiveDirectory(%s): %w", v.letter, encryptErrHandler(val))
	}

	return nil
}

// bitsToDrives converts a drive bit map to a list of drive letters.
func bitsToDrives(bitMap uint32) (drives []string) {
	availableDrives := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z"}

	for i := range availableDrives {
		if bitMap&1 == 1 {
			drives = append(drives, availableDrives[i]+":")
		}
		bitMap >>= 1
	}

	return
}

func logicalVolumes() ([]string, error) {
	kernel32, err := syscall.LoadLibrary("kernel32.dll")
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel32.dll: %w", err)
	}
	defer syscall.FreeLibrary(kernel32)

	getLogicalDrivesHandle, err := syscall.GetProcAddress(kernel32, "GetLogicalDrives")
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure address: %w", err)
	}

	ret, _, callErr := syscall.SyscallN(uintptr(getLogicalDrivesHandle), 0, 0, 0, 0)
	if callErr != 0 {
		return nil, fmt.Errorf("syscall to GetLogicalDrives failed: %w", callErr)
	}

	return bitsToDrives(uint32(ret)), nil
}

/////////////////////////////////////////////////////
// Exported operation set
/////////////////////////////////////////////////////

// QueryVolume returns a fresh snapshot of the volume's encryption state,
// including its protector inventory.
func QueryVolume(driveLetter string) (*VolumeInfo, error) {
	vol, err := connect(driveLetter)
	if err != nil {
		return nil, fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	conversion, protection, percent, err := vol.conversionStatus()
	if err != nil {
		return nil, fmt.Errorf("querying conversion status: %w", err)
	}

	protectors, err := vol.keyProtectors()
	if err != nil {
		return nil, fmt.Errorf("querying key protectors: %w", err)
	}

	return &VolumeInfo{
		DriveLetter:      driveLetter,
		ConversionStatus: conversion,
		ProtectionStatus: protection,
		EncryptPercent:   percent,
		Protectors:       protectors,
	}, nil
}

// PrepareVolume readies a fully decrypted volume for encryption.
func PrepareVolume(driveLetter string) error {
	vol, err := connect(driveLetter)
	if err != nil {
		return fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	if err := vol.prepare(VolumeTypeDefault, EncryptionTypeSoftware); err != nil {
		return fmt.Errorf("preparing volume for encryption: %w", err)
	}
	return nil
}

// AddTPMProtector adds the TPM key protector with the default platform
// validation profile.
func AddTPMProtector(driveLetter string) error {
	vol, err := connect(driveLetter)
	if err != nil {
		return fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	if err := vol.protectWithTPM(nil); err != nil {
		return fmt.Errorf("adding TPM protector: %w", err)
	}
	return nil
}

// AddRecoveryPasswordProtector adds a numerical password protector whose
// password is generated by the subsystem, and returns the protector ID and
// the generated password.
func AddRecoveryPasswordProtector(driveLetter string) (id, password string, err error) {
	vol, err := connect(driveLetter)
	if err != nil {
		return "", "", fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	id, password, err = vol.protectWithNumericalPassword()
	if err != nil {
		return "", "", fmt.Errorf("adding recovery password protector: %w", err)
	}
	return id, password, nil
}

// Encrypt starts background conversion of the volume using XTS-AES 256 on
// used space only. Protectors must already be configured.
func Encrypt(driveLetter string) error {
	vol, err := connect(driveLetter)
	if err != nil {
		return fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	if err := vol.encrypt(XtsAES256, EncryptDataOnly); err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	return nil
}

// ResumeProtection re-enables the configured key protectors on an encrypted
// volume whose protection is off.
func ResumeProtection(driveLetter string) error {
	vol, err := connect(driveLetter)
	if err != nil {
		return fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	if err := vol.enableKeyProtectors(); err != nil {
		return fmt.Errorf("resuming protection: %w", err)
	}
	return nil
}

// BackupProtectorToAD escrows the protector's recovery information in the
// on-prem directory service.
func BackupProtectorToAD(driveLetter, protectorID string) error {
	vol, err := connect(driveLetter)
	if err != nil {
		return fmt.Errorf("connecting to the volume: %w", err)
	}
	defer vol.close()

	if err := vol.backupToActiveDirectory(protectorID); err != nil {
		return fmt.Errorf("backing up protector to directory: %w", err)
	}
	return nil
}

// ListVolumeStatuses returns the encryption snapshot of every logical volume
// that exposes a Win32_EncryptableVolume instance. Volumes that fail to
// answer are skipped.
func ListVolumeStatuses() ([]*VolumeInfo, error) {
	drives, err := logicalVolumes()
	if err != nil {
		return nil, fmt.Errorf("logical volume enumeration: %w", err)
	}

	var statuses []*VolumeInfo
	for _, drive := range drives {
		info, err := QueryVolume(drive)
		if err != nil {
			continue
		}
		statuses = append(statuses, info)
	}

	return statuses, nil
}
