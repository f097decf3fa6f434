package remediate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diskguard/diskguard/pkg/tpm"
)

func TestEnsureTPMReady(t *testing.T) {
	var provisioned bool
	p := &Preparer{
		queryTPMFn:     func() (tpm.Status, error) { return tpm.Status{Present: true, Ready: true}, nil },
		provisionTPMFn: func() error { provisioned = true; return nil },
	}

	require.True(t, p.EnsureTPM())
	require.False(t, provisioned) // already satisfied, step skips itself
}

func TestEnsureTPMAbsent(t *testing.T) {
	p := &Preparer{
		queryTPMFn: func() (tpm.Status, error) { return tpm.Status{}, nil },
	}
	require.False(t, p.EnsureTPM())
}

func TestEnsureTPMQueryFailure(t *testing.T) {
	p := &Preparer{
		queryTPMFn: func() (tpm.Status, error) { return tpm.Status{}, errors.New("wmi unavailable") },
	}
	require.False(t, p.EnsureTPM()) // soft failure, recovery-password-only path remains
}

func TestEnsureTPMProvisions(t *testing.T) {
	var queries int
	p := &Preparer{
		queryTPMFn: func() (tpm.Status, error) {
			queries++
			// not ready until provisioned
			return tpm.Status{Present: true, Ready: queries > 1}, nil
		},
		provisionTPMFn: func() error { return nil },
	}

	require.True(t, p.EnsureTPM())
	require.Equal(t, 2, queries)
}

func TestEnsureTPMProvisionFailure(t *testing.T) {
	p := &Preparer{
		queryTPMFn:     func() (tpm.Status, error) { return tpm.Status{Present: true}, nil },
		provisionTPMFn: func() error { return errors.New("physical presence required") },
	}
	require.False(t, p.EnsureTPM())
}

func TestEnsureTPMStillNotReadyAfterProvision(t *testing.T) {
	p := &Preparer{
		queryTPMFn:     func() (tpm.Status, error) { return tpm.Status{Present: true}, nil },
		provisionTPMFn: func() error { return nil },
	}
	require.False(t, p.EnsureTPM())
}

func TestEnsurePartition(t *testing.T) {
	var serviceStarted, provisioned bool
	p := &Preparer{
		ensureServiceFn:      func(name string, maxWait time.Duration) error { serviceStarted = true; return nil },
		provisionPartitionFn: func() error { provisioned = true; return nil },
	}

	require.NoError(t, p.EnsurePartition())
	require.True(t, serviceStarted)
	require.True(t, provisioned)
}

func TestEnsurePartitionProvisionFailureIsFatal(t *testing.T) {
	p := &Preparer{
		ensureServiceFn:      func(name string, maxWait time.Duration) error { return nil },
		provisionPartitionFn: func() error { return errors.New("shrink failed") },
	}
	require.Error(t, p.EnsurePartition())
}

func TestEnsurePartitionServiceFailureIsSoft(t *testing.T) {
	// the provisioning tool is the arbiter: a service start failure alone
	// does not abort
	p := &Preparer{
		ensureServiceFn:      func(name string, maxWait time.Duration) error { return errors.New("timed out") },
		provisionPartitionFn: func() error { return nil },
	}
	require.NoError(t, p.EnsurePartition())
}
