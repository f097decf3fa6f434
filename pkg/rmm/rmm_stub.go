//go:build !windows

package rmm

// NewFieldStore returns the registry-backed inventory field store; only
// available on Windows.
func NewFieldStore() (FieldStore, error) {
	return nil, ErrNotSupported
}
