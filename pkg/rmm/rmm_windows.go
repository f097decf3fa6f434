//go:build windows

package rmm

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

type registryFieldStore struct{}

// NewFieldStore returns the registry-backed inventory field store.
func NewFieldStore() (FieldStore, error) {
	return registryFieldStore{}, nil
}

func (registryFieldStore) SetField(name, value string) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, agentKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("opening RMM agent registry key '%v' (is the agent installed?): %w", agentKeyPath, err)
	}
	defer key.Close()

	if err := key.SetStringValue(name, value); err != nil {
		return fmt.Errorf("setting inventory field '%v': %w", name, err)
	}

	return nil
}
