package remediate

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/diskguard/diskguard/pkg/rmm"
)

// BackupDestination names one replication target for the recovery password.
type BackupDestination string

const (
	DestinationActiveDirectory BackupDestination = "on-prem directory"
	DestinationCloudDirectory  BackupDestination = "cloud directory"
	DestinationInventoryField  BackupDestination = "inventory field"
)

// BackupResult is the outcome of one destination's backup attempt.
type BackupResult struct {
	Destination BackupDestination
	Err         error
}

// BackupFanout replicates the recovery password to each destination
// independently. One destination's failure never prevents the others from
// being attempted, and no combination of failures fails the run: the
// authoritative password already lives on the volume, replication is
// defense-in-depth.
type BackupFanout struct {
	Platform Platform

	// Fields publishes the password to the RMM inventory. May be nil when
	// the field store is unavailable on this platform.
	Fields    rmm.FieldStore
	FieldName string
}

// Run attempts every destination and returns per-destination results.
func (f *BackupFanout) Run(mountPoint string, protector KeyProtector) []BackupResult {
	results := []BackupResult{
		{DestinationActiveDirectory, f.Platform.BackupProtectorToAD(mountPoint, protector.ID)},
		{DestinationCloudDirectory, f.Platform.BackupProtectorToAAD(mountPoint, protector.ID)},
		{DestinationInventoryField, f.publishField(protector)},
	}

	for _, r := range results {
		if r.Err != nil {
			// expected on many fleets: a machine without a domain join has
			// no on-prem directory to escrow to
			log.Warn().Err(r.Err).Str("destination", string(r.Destination)).Msg("recovery password backup failed")
		} else {
			log.Info().Str("destination", string(r.Destination)).Msg("recovery password backed up")
		}
	}

	return results
}

func (f *BackupFanout) publishField(protector KeyProtector) error {
	if f.Fields == nil {
		return errors.New("inventory field store unavailable")
	}
	if protector.RecoveryPassword == "" {
		return errors.New("subsystem did not release the recovery password; nothing to publish")
	}
	return f.Fields.SetField(f.FieldName, protector.RecoveryPassword)
}
