//go:build !windows

package bitlocker

func QueryVolume(driveLetter string) (*VolumeInfo, error) {
	return nil, ErrNotSupported
}

func PrepareVolume(driveLetter string) error {
	return ErrNotSupported
}

func AddTPMProtector(driveLetter string) error {
	return ErrNotSupported
}

func AddRecoveryPasswordProtector(driveLetter string) (id, password string, err error) {
	return "", "", ErrNotSupported
}

func Encrypt(driveLetter string) error {
	return ErrNotSupported
}

func ResumeProtection(driveLetter string) error {
	return ErrNotSupported
}

func EnableProtectionSkipHardwareTest(driveLetter string) error {
	return ErrNotSupported
}

func ProvisionSystemPartition() error {
	return ErrNotSupported
}

func BackupProtectorToAD(driveLetter, protectorID string) error {
	return ErrNotSupported
}

func BackupProtectorToAAD(driveLetter, protectorID string) error {
	return ErrNotSupported
}

func ListVolumeStatuses() ([]*VolumeInfo, error) {
	return nil, ErrNotSupported
}
