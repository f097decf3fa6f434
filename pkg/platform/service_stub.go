//go:build !windows

package platform

import "time"

func EnsureServiceRunning(name string, maxWait time.Duration) error {
	return ErrNotSupported
}
