package remediate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// fakePlatform simulates the volume encryption subsystem for tests. It keeps
// a scripted sequence of volume states: queries walk the script and stick on
// the last entry, mutating calls modify the last entry. Mutating calls and
// backup calls are recorded separately so tests can assert the safety
// invariant (no volume mutation) without caring about escrow attempts.
type fakePlatform struct {
	states  []*Volume
	queries int

	mutations []string
	backups   []string

	queryErr      error
	prepareErr    error
	addTPMErr     error
	addRecoverErr error
	encryptErr    error
	resumeErr     error
	enableErr     error
	adBackupErr   error
	aadBackupErr  error

	// report success without applying the protector, for verification tests
	addTPMNoEffect     bool
	addRecoverNoEffect bool
}

func newFakePlatform(v *Volume) *fakePlatform {
	return &fakePlatform{states: []*Volume{v}}
}

// script appends further states returned by successive queries.
func (f *fakePlatform) script(states ...*Volume) {
	f.states = append(f.states, states...)
}

func (f *fakePlatform) current() *Volume {
	return f.states[len(f.states)-1]
}

func (f *fakePlatform) QueryVolume(mountPoint string) (*Volume, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queries++
	idx := f.queries - 1
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	v := f.states[idx]

	snapshot := *v
	snapshot.MountPoint = mountPoint
	snapshot.Protectors = append([]KeyProtector(nil), v.Protectors...)
	return &snapshot, nil
}

func (f *fakePlatform) PrepareVolume(mountPoint string) error {
	f.mutations = append(f.mutations, "PrepareVolume")
	return f.prepareErr
}

func (f *fakePlatform) AddTPMProtector(mountPoint string) error {
	f.mutations = append(f.mutations, "AddTPMProtector")
	if f.addTPMErr != nil {
		return f.addTPMErr
	}
	if !f.addTPMNoEffect {
		v := f.current()
		v.Protectors = append(v.Protectors, KeyProtector{Kind: ProtectorTPM, ID: uuid.NewString()})
	}
	return nil
}

func (f *fakePlatform) AddRecoveryPasswordProtector(mountPoint string) (KeyProtector, error) {
	f.mutations = append(f.mutations, "AddRecoveryPasswordProtector")
	if f.addRecoverErr != nil {
		return KeyProtector{}, f.addRecoverErr
	}
	p := KeyProtector{
		Kind:             ProtectorRecoveryPassword,
		ID:               uuid.NewString(),
		RecoveryPassword: "111111-222222-333333-444444-555555-666666-777777-888888",
	}
	if !f.addRecoverNoEffect {
		v := f.current()
		v.Protectors = append(v.Protectors, p)
	}
	return p, nil
}

func (f *fakePlatform) Encrypt(mountPoint string) error {
	f.mutations = append(f.mutations, "Encrypt")
	if f.encryptErr != nil {
		return f.encryptErr
	}
	v := f.current()
	if len(v.Protectors) == 0 {
		return errors.New("no protectors configured")
	}
	v.Lifecycle = EncryptionInProgress
	v.Protection = ProtectionOn
	return nil
}

func (f *fakePlatform) ResumeProtection(mountPoint string) error {
	f.mutations = append(f.mutations, "ResumeProtection")
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.current().Protection = ProtectionOn
	return nil
}

func (f *fakePlatform) EnableProtection(mountPoint string) error {
	f.mutations = append(f.mutations, "EnableProtection")
	if f.enableErr != nil {
		return f.enableErr
	}
	f.current().Protection = ProtectionOn
	return nil
}

func (f *fakePlatform) BackupProtectorToAD(mountPoint, protectorID string) error {
	f.backups = append(f.backups, fmt.Sprintf("AD:%s", protectorID))
	return f.adBackupErr
}

func (f *fakePlatform) BackupProtectorToAAD(mountPoint, protectorID string) error {
	f.backups = append(f.backups, fmt.Sprintf("AAD:%s", protectorID))
	return f.aadBackupErr
}

// fakeFieldStore records inventory field writes.
type fakeFieldStore struct {
	fields map[string]string
	err    error
}

func newFakeFieldStore() *fakeFieldStore {
	return &fakeFieldStore{fields: make(map[string]string)}
}

func (s *fakeFieldStore) SetField(name, value string) error {
	if s.err != nil {
		return s.err
	}
	s.fields[name] = value
	return nil
}
