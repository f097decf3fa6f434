package remediate

import (
	"fmt"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/rs/zerolog/log"
)

// Defaults for the decryption wait loop. Decrypting a multi-terabyte volume
// legitimately takes hours; a short fixed timeout would wrongly fail
// slow-but-healthy conversions, while no timeout would hang automation
// pipelines with enforced run limits.
const (
	DefaultPollInterval = time.Minute
	DefaultMaxWait      = 4 * time.Hour
)

// WaitOutcome is the result of a decryption wait. Both outcomes are
// expected; a timeout is recoverable, not a fault.
type WaitOutcome int

const (
	WaitCompleted WaitOutcome = iota
	WaitTimedOut
)

func (o WaitOutcome) String() string {
	if o == WaitTimedOut {
		return "timed out"
	}
	return "completed"
}

// DecryptionMonitor polls a volume until an in-progress decryption reaches
// full decryption or the wall-clock budget is spent.
type DecryptionMonitor struct {
	// Inspect reads a fresh volume snapshot. Set to the platform's
	// QueryVolume in production; tests substitute a fake.
	Inspect func(mountPoint string) (*Volume, error)

	// PollInterval and MaxWait default to DefaultPollInterval and
	// DefaultMaxWait when zero.
	PollInterval time.Duration
	MaxWait      time.Duration

	// Clock can be set in tests; defaults to the wall clock.
	Clock clock.Clock
}

// Wait blocks until the volume reports fully decrypted or MaxWait elapses.
// The budget is checked at the top of each iteration, so the wait overshoots
// by at most one poll interval. An Inspect failure aborts the wait with an
// error rather than spinning on a volume that cannot be observed.
func (m *DecryptionMonitor) Wait(mountPoint string) (WaitOutcome, error) {
	pollInterval := m.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	maxWait := m.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	clk := m.Clock
	if clk == nil {
		clk = clock.C
	}

	start := clk.Now()
	for iteration := 1; ; iteration++ {
		elapsed := clk.Now().Sub(start)
		if elapsed >= maxWait {
			log.Warn().
				Dur("elapsed", elapsed).
				Dur("max_wait", maxWait).
				Msg("decryption did not finish within the wait budget")
			return WaitTimedOut, nil
		}

		v, err := m.Inspect(mountPoint)
		if err != nil {
			return 0, fmt.Errorf("inspecting volume while waiting for decryption: %w", err)
		}

		log.Info().
			Int("iteration", iteration).
			Stringer("lifecycle", v.Lifecycle).
			Float64("percent_encrypted", v.EncryptPercent).
			Dur("elapsed", elapsed).
			Msg("waiting for decryption to finish")

		if v.Lifecycle == FullyDecrypted {
			return WaitCompleted, nil
		}

		<-clk.After(pollInterval)
	}
}
