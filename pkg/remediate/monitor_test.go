package remediate

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorCompletes(t *testing.T) {
	// reports decryption in progress twice, then fully decrypted
	var inspections int
	inspect := func(mountPoint string) (*Volume, error) {
		inspections++
		if inspections <= 2 {
			return &Volume{MountPoint: mountPoint, Lifecycle: DecryptionInProgress, EncryptPercent: 50 - float64(inspections)*10}, nil
		}
		return &Volume{MountPoint: mountPoint, Lifecycle: FullyDecrypted}, nil
	}

	m := &DecryptionMonitor{
		Inspect:      inspect,
		PollInterval: time.Millisecond,
		MaxWait:      time.Minute,
	}

	outcome, err := m.Wait("C:")
	require.NoError(t, err)
	require.Equal(t, WaitCompleted, outcome)
	require.Equal(t, 3, inspections)
}

func TestMonitorTimesOut(t *testing.T) {
	var inspections int
	inspect := func(mountPoint string) (*Volume, error) {
		inspections++
		return &Volume{MountPoint: mountPoint, Lifecycle: DecryptionInProgress, EncryptPercent: 99}, nil
	}

	pollInterval := time.Millisecond
	maxWait := 20 * time.Millisecond
	m := &DecryptionMonitor{
		Inspect:      inspect,
		PollInterval: pollInterval,
		MaxWait:      maxWait,
	}

	start := time.Now()
	outcome, err := m.Wait("C:")
	elapsed := time.Since(start)

	require.NoError(t, err) // a timeout is an expected outcome, not a fault
	require.Equal(t, WaitTimedOut, outcome)
	require.GreaterOrEqual(t, inspections, 1)
	require.GreaterOrEqual(t, elapsed, maxWait)
	// the budget is checked at the top of each iteration, so the overshoot
	// is bounded by one poll plus inspection time; generous slack for CI
	require.Less(t, elapsed, maxWait+100*pollInterval)
}

func TestMonitorAbortsOnInspectorFailure(t *testing.T) {
	var inspections int
	inspect := func(mountPoint string) (*Volume, error) {
		inspections++
		if inspections == 2 {
			return nil, io.ErrUnexpectedEOF
		}
		return &Volume{MountPoint: mountPoint, Lifecycle: DecryptionInProgress}, nil
	}

	m := &DecryptionMonitor{
		Inspect:      inspect,
		PollInterval: time.Millisecond,
		MaxWait:      time.Minute,
	}

	_, err := m.Wait("C:")
	require.Error(t, err)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, 2, inspections) // no spinning after the inspector fails
}
