// Package policy writes the machine policy values the encryption subsystem
// consults: mandatory directory escrow of recovery information and the pinned
// encryption method. The writer only ever establishes these settings; it
// never reverts or weakens one that is already in place.
package policy

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrNotSet is returned by Store.GetDWord when the value does not exist yet.
var ErrNotSet = errors.New("policy value not set")

// ErrNotSupported is returned by NewSystemStore on platforms without a
// machine policy registry.
var ErrNotSupported = errors.New("policy store is only supported on Windows")

// fveKeyPath is the machine policy key for the volume encryption subsystem,
// relative to HKEY_LOCAL_MACHINE.
const fveKeyPath = `SOFTWARE\Policies\Microsoft\FVE`

// encryptionMethodXtsAES256 pins the conversion method for the operating
// system drive to XTS-AES 256.
// https://learn.microsoft.com/en-us/windows/security/operating-system-security/data-protection/bitlocker/configure
const encryptionMethodXtsAES256 = 7

// Store reads and writes DWORD policy values. The production implementation
// is registry backed; tests use an in-memory map.
type Store interface {
	GetDWord(path, name string) (uint64, error)
	SetDWord(path, name string, value uint64) error
}

// Setting is one desired policy value.
type Setting struct {
	Path        string
	Name        string
	Value       uint64
	Description string
}

// DesiredSettings returns the policy values the controller establishes before
// configuring protectors.
func DesiredSettings() []Setting {
	return []Setting{
		{fveKeyPath, "ActiveDirectoryBackup", 1, "escrow recovery information in the directory service"},
		{fveKeyPath, "RequireActiveDirectoryBackup", 1, "do not enable protection until escrow succeeds"},
		{fveKeyPath, "ActiveDirectoryInfoToStore", 1, "store recovery passwords and key packages"},
		{fveKeyPath, "EncryptionMethodWithXtsOs", encryptionMethodXtsAES256, "pin OS drive encryption method to XTS-AES 256"},
	}
}

// Writer applies desired policy settings idempotently: each value is read
// first and written only when it differs.
type Writer struct {
	store    Store
	settings []Setting
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store, settings: DesiredSettings()}
}

// Apply establishes every desired setting, logging "already set" or
// "changed" per value. The first write failure aborts; a policy half-applied
// is safe (values are independent) but the caller should know.
func (w *Writer) Apply() error {
	for _, s := range w.settings {
		current, err := w.store.GetDWord(s.Path, s.Name)
		switch {
		case err == nil && current == s.Value:
			log.Info().Str("name", s.Name).Uint64("value", s.Value).Msg("policy already set")
			continue
		case err != nil && !errors.Is(err, ErrNotSet):
			return fmt.Errorf("reading policy %s\\%s: %w", s.Path, s.Name, err)
		}

		if err := w.store.SetDWord(s.Path, s.Name, s.Value); err != nil {
			return fmt.Errorf("writing policy %s\\%s: %w", s.Path, s.Name, err)
		}
		log.Info().Str("name", s.Name).Uint64("value", s.Value).Str("purpose", s.Description).Msg("policy changed")
	}

	return nil
}
