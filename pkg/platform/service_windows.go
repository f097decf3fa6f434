//go:build windows

package platform

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// EnsureServiceRunning starts the named service if it is not already running
// and waits until it reports the running state, up to maxWait.
func EnsureServiceRunning(name string, maxWait time.Duration) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service control manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("opening service %q: %w", name, err)
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return fmt.Errorf("querying service %q: %w", name, err)
	}
	if status.State == svc.Running {
		log.Debug().Str("service", name).Msg("service already running")
		return nil
	}

	if status.State == svc.Stopped {
		log.Info().Str("service", name).Msg("starting service")
		if err := s.Start(); err != nil {
			return fmt.Errorf("starting service %q: %w", name, err)
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxElapsedTime = maxWait

	err = backoff.Retry(func() error {
		status, err := s.Query()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("querying service %q: %w", name, err))
		}
		if status.State != svc.Running {
			return fmt.Errorf("service %q in state %d", name, status.State)
		}
		return nil
	}, expo)
	if err != nil {
		return fmt.Errorf("waiting for service %q to run: %w", name, err)
	}

	return nil
}
