//go:build !windows

package policy

// NewSystemStore returns the registry-backed policy store; only available on
// Windows.
func NewSystemStore() (Store, error) {
	return nil, ErrNotSupported
}
