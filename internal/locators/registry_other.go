//go:build !windows

package locators

import (
	"context"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// RegistryLocator is a no-op off Windows; the registry is the only
// platform-specific discovery source.
type RegistryLocator struct{}

// NewRegistryLocator creates the locator.
func NewRegistryLocator(fsys platform.Filesystem) *RegistryLocator {
	return &RegistryLocator{}
}

// Name implements Locator.
func (l *RegistryLocator) Name() string { return "windows-registry" }

// Source implements Locator.
func (l *RegistryLocator) Source() python.Source { return python.SourceWindowsRegistry }

// Environments implements Locator.
func (l *RegistryLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	return nil, nil
}
