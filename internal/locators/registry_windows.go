//go:build windows

package locators

import (
	"context"
	"path/filepath"

	"golang.org/x/sys/windows/registry"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// RegistryLocator enumerates CPython installs registered under
// Software\Python\PythonCore (PEP 514) in both the user and machine
// hives. It is the most authoritative source on Windows.
type RegistryLocator struct {
	fsys platform.Filesystem
}

// NewRegistryLocator creates the locator.
func NewRegistryLocator(fsys platform.Filesystem) *RegistryLocator {
	return &RegistryLocator{fsys: fsys}
}

// Name implements Locator.
func (l *RegistryLocator) Name() string { return "windows-registry" }

// Source implements Locator.
func (l *RegistryLocator) Source() python.Source { return python.SourceWindowsRegistry }

// Environments implements Locator.
func (l *RegistryLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	var records []python.Record
	seen := make(map[string]bool)

	for _, hive := range []registry.Key{registry.CURRENT_USER, registry.LOCAL_MACHINE} {
		for _, rec := range l.scanHive(hive) {
			if !seen[rec.Path] {
				seen[rec.Path] = true
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

func (l *RegistryLocator) scanHive(hive registry.Key) []python.Record {
	core, err := registry.OpenKey(hive, `Software\Python\PythonCore`, registry.READ)
	if err != nil {
		return nil
	}
	defer core.Close()

	versions, err := core.ReadSubKeyNames(-1)
	if err != nil {
		return nil
	}

	var records []python.Record
	for _, ver := range versions {
		install, err := registry.OpenKey(core, ver+`\InstallPath`, registry.READ)
		if err != nil {
			continue
		}
		dir, _, err := install.GetStringValue("")
		install.Close()
		if err != nil || dir == "" {
			continue
		}

		interp := filepath.Join(dir, "python.exe")
		if !l.fsys.Exists(interp) {
			continue
		}

		rec := python.Record{
			Path:           python.NormalizePath(interp),
			Kind:           python.KindGlobal,
			SearchLocation: dir,
			Source:         l.Source(),
			Tier:           python.TierPartial,
		}
		if v, err := python.ParseVersion(ver); err == nil {
			rec.Version = v
		}
		records = append(records, rec)
	}
	return records
}
