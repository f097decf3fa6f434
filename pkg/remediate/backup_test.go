package remediate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func compliantVolume() *Volume {
	return &Volume{
		MountPoint: "C:",
		Lifecycle:  FullyEncrypted,
		Protection: ProtectionOn,
		Protectors: []KeyProtector{tpmProtector, recoveryProtector},
	}
}

func TestBackupFanoutAllSucceed(t *testing.T) {
	fake := newFakePlatform(compliantVolume())
	fields := newFakeFieldStore()
	f := &BackupFanout{Platform: fake, Fields: fields, FieldName: "Custom9"}

	results := f.Run("C:", recoveryProtector)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err, string(r.Destination))
	}
	require.Equal(t, recoveryProtector.RecoveryPassword, fields.fields["Custom9"])
}

func TestBackupFanoutIsolation(t *testing.T) {
	cases := []struct {
		desc    string
		failing BackupDestination
		setup   func(f *fakePlatform, s *fakeFieldStore)
	}{
		{"on-prem directory fails", DestinationActiveDirectory, func(f *fakePlatform, s *fakeFieldStore) {
			f.adBackupErr = errors.New("not domain joined")
		}},
		{"cloud directory fails", DestinationCloudDirectory, func(f *fakePlatform, s *fakeFieldStore) {
			f.aadBackupErr = errors.New("not cloud joined")
		}},
		{"inventory field fails", DestinationInventoryField, func(f *fakePlatform, s *fakeFieldStore) {
			s.err = errors.New("agent key missing")
		}},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			fake := newFakePlatform(compliantVolume())
			fields := newFakeFieldStore()
			c.setup(fake, fields)

			f := &BackupFanout{Platform: fake, Fields: fields, FieldName: "Custom9"}
			results := f.Run("C:", recoveryProtector)
			require.Len(t, results, 3)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					require.Equal(t, c.failing, r.Destination)
				}
			}
			require.Equal(t, 1, failed)
			// both directory destinations were attempted regardless
			require.Len(t, fake.backups, 2)
		})
	}
}

func TestBackupFanoutNoFieldStore(t *testing.T) {
	fake := newFakePlatform(compliantVolume())
	f := &BackupFanout{Platform: fake, FieldName: "Custom9"}

	results := f.Run("C:", recoveryProtector)
	require.Len(t, results, 3)
	require.Error(t, results[2].Err)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
}

func TestBackupFanoutUnreleasedPassword(t *testing.T) {
	fake := newFakePlatform(compliantVolume())
	fields := newFakeFieldStore()
	f := &BackupFanout{Platform: fake, Fields: fields, FieldName: "Custom9"}

	protector := KeyProtector{Kind: ProtectorRecoveryPassword, ID: "rp-1"} // no secret released
	results := f.Run("C:", protector)
	require.Error(t, results[2].Err)
	require.Empty(t, fields.fields)
}
