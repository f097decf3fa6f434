package remediate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/diskguard/diskguard/pkg/bitlocker"
	"github.com/diskguard/diskguard/pkg/platform"
	"github.com/diskguard/diskguard/pkg/tpm"
)

// defragService must be running for the system partition provisioning tool
// to shrink the OS volume.
const defragService = "defragsvc"

const serviceStartWait = 2 * time.Minute

// Preparer ensures the hardware security module and the reserved system
// partition the encryption subsystem requires. Both steps are idempotent
// no-ops when already satisfied.
type Preparer struct {
	// for tests, to be able to mock the TPM and partition operations. Nil
	// fields use the real platform implementations.
	queryTPMFn           func() (tpm.Status, error)
	provisionTPMFn       func() error
	provisionPartitionFn func() error
	ensureServiceFn      func(name string, maxWait time.Duration) error
}

// NewPreparer returns a preparer backed by the real platform.
func NewPreparer() *Preparer {
	return &Preparer{}
}

func (p *Preparer) queryTPM() (tpm.Status, error) {
	if p.queryTPMFn != nil {
		return p.queryTPMFn()
	}
	return tpm.Query()
}

func (p *Preparer) provisionTPM() error {
	if p.provisionTPMFn != nil {
		return p.provisionTPMFn()
	}
	return tpm.Provision()
}

func (p *Preparer) provisionPartition() error {
	if p.provisionPartitionFn != nil {
		return p.provisionPartitionFn()
	}
	return bitlocker.ProvisionSystemPartition()
}

func (p *Preparer) ensureService(name string, maxWait time.Duration) error {
	if p.ensureServiceFn != nil {
		return p.ensureServiceFn(name, maxWait)
	}
	return platform.EnsureServiceRunning(name, maxWait)
}

// EnsureTPM reports whether the hardware module can back a key protector,
// provisioning it when present but not ready. Failure here is not fatal:
// compliance is still reachable with a recovery password alone, so problems
// are logged and the TPM protector step is skipped downstream.
func (p *Preparer) EnsureTPM() bool {
	status, err := p.queryTPM()
	if err != nil {
		log.Warn().Err(err).Msg("hardware module state could not be determined; continuing with recovery password only")
		return false
	}
	if !status.Present {
		log.Info().Msg("no hardware module present; continuing with recovery password only")
		return false
	}
	if status.Ready {
		log.Debug().Msg("hardware module ready")
		return true
	}

	log.Info().Msg("hardware module present but not ready; provisioning")
	if err := p.provisionTPM(); err != nil {
		log.Warn().Err(err).Msg("hardware module provisioning failed; continuing with recovery password only")
		return false
	}

	status, err = p.queryTPM()
	if err != nil || !status.Ready {
		log.Warn().Err(err).Msg("hardware module still not ready after provisioning; continuing with recovery password only")
		return false
	}

	log.Info().Msg("hardware module provisioned")
	return true
}

// EnsurePartition provisions the reserved system partition. The provisioning
// tool is idempotent and exits cleanly when the disk is already prepared, so
// there is no separate probe. A failure here is fatal upstream: without the
// partition, encryption cannot be enabled at all.
func (p *Preparer) EnsurePartition() error {
	if err := p.ensureService(defragService, serviceStartWait); err != nil {
		// provisioning may still succeed if the service is starting on its
		// own; let the tool itself be the arbiter
		log.Warn().Err(err).Str("service", defragService).Msg("dependent service not confirmed running")
	}

	if err := p.provisionPartition(); err != nil {
		return fmt.Errorf("provisioning system partition: %w", err)
	}

	return nil
}
