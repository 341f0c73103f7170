package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/karrtikr/pyscout/internal/envinfo"
	"github.com/karrtikr/pyscout/internal/environments"
	"github.com/karrtikr/pyscout/internal/jupyter"
	"github.com/karrtikr/pyscout/internal/locators"
	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/store"
)

// app holds the discovery stack for one command invocation.
type app struct {
	store   store.Store
	info    *envinfo.Service
	coll    *environments.Collection
	jupyter *jupyter.Service
}

// newApp wires locators, the enrichment service, the persistent
// collection and the notebook facade from the loaded settings.
func newApp() (*app, error) {
	fsys := platform.NewOSFilesystem()
	exec := platform.NewSystemExecutor()

	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}

	st := openStore()

	info, err := envinfo.New(&envinfo.Config{
		Workers:      settings.InfoWorkers,
		ProbeTimeout: settings.ShellTimeout,
		Executor:     exec,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Debug("no home directory, home-relative locators disabled", "err", err)
	}
	conda := locators.NewCondaLocator(fsys, home, settings.CondaPath)
	locs := []locators.Locator{
		locators.NewRegistryLocator(fsys),
		conda,
		locators.NewCondaEnvFileLocator(fsys, conda),
		locators.NewPipenvLocator(fsys, exec, logger, settings.PipenvPath, settings.ShellTimeout),
		locators.NewPoetryLocator(fsys, exec, logger, settings.PoetryPath, settings.ShellTimeout),
		locators.NewGlobalVenvLocator(fsys, home, settings.VenvPath),
		locators.NewWorkspaceVenvLocator(fsys, settings.VenvFolders),
		locators.NewKnownPathLocator(fsys, nil),
		locators.NewCurrentPathLocator(exec),
	}

	coll := environments.New(&environments.Config{
		Locators: locs,
		Info:     info,
		Store:    st,
		Fs:       fsys,
		Logger:   logger,
		Scope:    locators.Scope{WorkspaceRoot: root},
	})

	jup, err := jupyter.NewService(&jupyter.Config{
		Collection:   coll,
		Info:         info,
		Exec:         exec,
		Fs:           fsys,
		Logger:       logger,
		SearchPaths:  settings.SearchPaths,
		ProbeTimeout: settings.ShellTimeout,
	})
	if err != nil {
		coll.Close()
		info.Close()
		st.Close()
		return nil, err
	}

	return &app{store: st, info: info, coll: coll, jupyter: jup}, nil
}

// openStore opens the on-disk cache, falling back to an in-memory
// store when the database cannot be opened. Discovery still works
// without persistence, it is just slower on the next run.
func openStore() store.Store {
	if err := os.MkdirAll(filepath.Dir(settings.DatabasePath), 0755); err != nil {
		logger.Warn("cache directory unavailable, running without persistence", "err", err)
		return store.NewMemoryStore()
	}
	st, err := store.NewSQLiteStore(settings.DatabasePath)
	if err != nil {
		logger.Warn("cache database unavailable, running without persistence",
			"path", settings.DatabasePath, "err", err)
		return store.NewMemoryStore()
	}
	return st
}

// Close tears down the stack. jupyter.Service.Close is deliberately
// not called: it deletes kernel specs generated during the session,
// and the CLI wants `kernels match` output to stay installed.
func (a *app) Close() {
	a.coll.Close()
	a.info.Close()
	if err := a.store.Close(); err != nil {
		logger.Debug("closing cache store", "err", err)
	}
}

// fail prints an error the way every command reports fatal problems.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
