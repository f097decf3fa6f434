package remediate

import (
	"fmt"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// RunStatus is the overall, non-fatal outcome of a controller run. All three
// map to process exit code 0; fatal failures are returned as errors instead.
type RunStatus int

const (
	// StatusCompliant: the volume was verified or driven to the compliant
	// end state.
	StatusCompliant RunStatus = iota
	// StatusSafeExit: remediation was unnecessary or deliberately not
	// attempted.
	StatusSafeExit
	// StatusDeferred: an in-flight decryption did not finish within the
	// wait budget; nothing was changed, a later run will pick it up.
	StatusDeferred
)

func (s RunStatus) String() string {
	switch s {
	case StatusCompliant:
		return "compliant"
	case StatusDeferred:
		return "deferred"
	default:
		return "safe exit"
	}
}

// PolicyApplier establishes the platform policy settings before protectors
// are configured. The policy package's Writer satisfies this.
type PolicyApplier interface {
	Apply() error
}

// Controller sequences inspection, classification, prerequisites, policy,
// protector orchestration and recovery password backup. It is the only
// component that knows about wall-clock budgets, and it is idempotent:
// running it against a compliant volume issues no mutating calls.
type Controller struct {
	Platform Platform
	Preparer *Preparer

	// Policy may be nil, in which case policy writing is skipped (logged).
	Policy PolicyApplier

	// Backup may be nil, in which case the fanout is skipped (logged).
	Backup *BackupFanout

	// PollInterval and MaxWait bound the decryption wait; zero values use
	// the monitor defaults.
	PollInterval time.Duration
	MaxWait      time.Duration

	// Clock can be set in tests; defaults to the wall clock.
	Clock clock.Clock
}

// Run drives the mounted volume toward compliance. A nil error means the
// returned status is authoritative; a non-nil error is a fatal failure and
// the process must exit non-zero.
func (c *Controller) Run(mountPoint string) (RunStatus, error) {
	v, err := c.Platform.QueryVolume(mountPoint)
	if err != nil {
		// an unreadable volume state means nothing can be done safely
		return 0, fmt.Errorf("querying volume state: %w", err)
	}

	action, reason := Classify(v)
	c.logClassification(v, action, reason)

	if action == ActionMonitorThenReclassify {
		monitor := &DecryptionMonitor{
			Inspect:      c.Platform.QueryVolume,
			PollInterval: c.PollInterval,
			MaxWait:      c.MaxWait,
			Clock:        c.Clock,
		}
		outcome, err := monitor.Wait(mountPoint)
		if err != nil {
			return 0, err
		}
		if outcome == WaitTimedOut {
			log.Warn().Msg("decryption still running after the wait budget; deferring without changes")
			return StatusDeferred, nil
		}

		v, err = c.Platform.QueryVolume(mountPoint)
		if err != nil {
			return 0, fmt.Errorf("querying volume state after decryption: %w", err)
		}
		action, reason = Classify(v)
		c.logClassification(v, action, reason)

		if action == ActionMonitorThenReclassify {
			// decryption restarted underneath us; do not loop on it
			log.Warn().Msg("volume is decrypting again after the wait completed; leaving it alone")
			c.logSummary(v)
			return StatusSafeExit, nil
		}
	}

	switch action {
	case ActionSafeExit:
		c.logSummary(v)
		return StatusSafeExit, nil

	case ActionVerifyAndBackup:
		c.backup(v)
		c.logSummary(v)
		return StatusCompliant, nil

	case ActionConfigurePreEncrypted, ActionEnableFresh:
		tpmUsable := false
		if c.Preparer != nil {
			tpmUsable = c.Preparer.EnsureTPM()
			if action == ActionEnableFresh {
				if err := c.Preparer.EnsurePartition(); err != nil {
					return 0, err
				}
			}
		}

		if c.Policy != nil {
			if err := c.Policy.Apply(); err != nil {
				// protector configuration does not depend on the policy
				// values being in place; surface and continue
				log.Warn().Err(err).Msg("applying encryption policy failed")
			}
		} else {
			log.Info().Msg("policy writing skipped: no policy store on this platform")
		}

		orch := &Orchestrator{Platform: c.Platform, TPMUsable: tpmUsable}
		var final *Volume
		if action == ActionEnableFresh {
			final, err = orch.EnableFresh(mountPoint)
		} else {
			final, err = orch.ConfigurePreEncrypted(mountPoint)
		}
		if err != nil {
			return 0, err
		}

		c.backup(final)
		c.logSummary(final)
		return StatusCompliant, nil
	}

	// the classifier only emits the actions handled above
	c.logSummary(v)
	return StatusSafeExit, nil
}

func (c *Controller) backup(v *Volume) {
	if c.Backup == nil {
		log.Info().Msg("recovery password backup skipped")
		return
	}

	protector, ok := v.Protector(ProtectorRecoveryPassword)
	if !ok {
		log.Warn().Msg("no recovery password protector to back up")
		return
	}

	results := c.Backup.Run(v.MountPoint, protector)

	var errs *multierror.Error
	succeeded := 0
	for _, r := range results {
		if r.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Destination, r.Err))
		} else {
			succeeded++
		}
	}

	log.Info().
		Int("succeeded", succeeded).
		Int("failed", len(results)-succeeded).
		Msg("recovery password backup fanout finished")
	if errs != nil {
		log.Warn().Err(errs.ErrorOrNil()).Msg("some backup destinations failed; the volume still holds the authoritative password")
	}
}

func (c *Controller) logClassification(v *Volume, action Action, reason string) {
	log.Info().
		Str("volume", v.MountPoint).
		Stringer("lifecycle", v.Lifecycle).
		Stringer("protection", v.Protection).
		Int("protectors", len(v.Protectors)).
		Stringer("action", action).
		Str("reason", reason).
		Msg("volume classified")
}

// logSummary records the re-inspected end state so an operator can audit the
// run without separately querying the device.
func (c *Controller) logSummary(v *Volume) {
	tpmCount, recoveryCount := 0, 0
	for _, p := range v.Protectors {
		switch p.Kind {
		case ProtectorTPM:
			tpmCount++
		case ProtectorRecoveryPassword:
			recoveryCount++
		}
	}

	log.Info().
		Str("volume", v.MountPoint).
		Stringer("lifecycle", v.Lifecycle).
		Stringer("protection", v.Protection).
		Int("tpm_protectors", tpmCount).
		Int("recovery_password_protectors", recoveryCount).
		Bool("compliant", v.Compliant()).
		Msg("final volume state")
}
