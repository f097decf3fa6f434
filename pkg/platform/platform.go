// Package platform holds OS service helpers shared by the controller's
// prerequisite steps.
package platform

import "errors"

// ErrNotSupported is returned on platforms without a service control manager.
var ErrNotSupported = errors.New("service control is only supported on Windows")
