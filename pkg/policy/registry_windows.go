//go:build windows

package policy

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// registryStore reads and writes machine policy values under
// HKEY_LOCAL_MACHINE.
type registryStore struct{}

// NewSystemStore returns the registry-backed policy store.
func NewSystemStore() (Store, error) {
	return registryStore{}, nil
}

func (registryStore) GetDWord(path, name string) (uint64, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, ErrNotSet
		}
		return 0, fmt.Errorf("opening registry key '%v': %w", path, err)
	}
	defer key.Close()

	value, _, err := key.GetIntegerValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, ErrNotSet
		}
		return 0, fmt.Errorf("reading registry value '%v\\%v': %w", path, name, err)
	}

	return value, nil
}

func (registryStore) SetDWord(path, name string, value uint64) error {
	key, _, err := registry.CreateKey(registry.LOCAL_MACHINE, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("creating registry key '%v': %w", path, err)
	}
	defer key.Close()

	if err := key.SetDWordValue(name, uint32(value)); err != nil {
		return fmt.Errorf("setting registry value '%v\\%v': %w", path, name, err)
	}

	return nil
}
