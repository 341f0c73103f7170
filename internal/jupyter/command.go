// Package jupyter resolves logical notebook commands (notebook,
// nbconvert, kernelspec, ipykernel) against discovered interpreters
// and manages kernel specs for them.
package jupyter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/karrtikr/pyscout/internal/environments"
	"github.com/karrtikr/pyscout/internal/envinfo"
	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// CommandName is a logical notebook tool.
type CommandName string

const (
	CommandNotebook   CommandName = "notebook"
	CommandNbconvert  CommandName = "nbconvert"
	CommandKernelspec CommandName = "kernelspec"
	CommandIPyKernel  CommandName = "ipykernel"
)

// moduleArgs maps each logical command to its `-m` invocation.
var moduleArgs = map[CommandName][]string{
	CommandNotebook:   {"-m", "jupyter", "notebook"},
	CommandNbconvert:  {"-m", "jupyter", "nbconvert"},
	CommandKernelspec: {"-m", "jupyter", "kernelspec"},
	CommandIPyKernel:  {"-m", "ipykernel"},
}

// UnsupportedCommandError is the one failure surfaced to users: no
// interpreter or PATH executable can run the requested command.
type UnsupportedCommandError struct {
	Command CommandName
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("jupyter %s is not supported: install jupyter into the selected Python environment", e.Command)
}

// Command is a verified-runnable invocation for a logical command.
type Command struct {
	// ExecutablePath is the interpreter or bare executable to spawn.
	ExecutablePath string
	// RequiredArgs precede any caller arguments.
	RequiredArgs []string
	// Interpreter is the Python behind the command, "" for bare
	// executables found on a search path.
	Interpreter string
}

// Argv returns the full invocation with extra appended.
func (c *Command) Argv(extra ...string) (string, []string) {
	args := make([]string, 0, len(c.RequiredArgs)+len(extra))
	args = append(args, c.RequiredArgs...)
	args = append(args, extra...)
	return c.ExecutablePath, args
}

// Config wires a Service.
type Config struct {
	Collection *environments.Collection
	Info       *envinfo.Service
	Exec       platform.Executor
	Fs         platform.Filesystem
	Logger     *log.Logger
	// SearchPaths are extra directories checked for bare executables.
	SearchPaths []string
	// ProbeTimeout bounds each verification run. Default: 30s.
	ProbeTimeout time.Duration
}

// Service is the notebook-facing facade: command resolution, kernel
// spec matching and generation, and best-interpreter selection.
type Service struct {
	coll    *environments.Collection
	info    *envinfo.Service
	exec    platform.Executor
	fsys    platform.Filesystem
	logger  *log.Logger
	search  []string
	timeout time.Duration

	mu     sync.Mutex
	active string
	cache  map[CommandName]*Command

	genMu     sync.Mutex
	generated []string
}

// NewService creates the service.
func NewService(cfg *Config) (*Service, error) {
	if cfg.Collection == nil || cfg.Info == nil || cfg.Exec == nil || cfg.Fs == nil {
		return nil, fmt.Errorf("collection, info service, executor and filesystem are required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		coll:    cfg.Collection,
		info:    cfg.Info,
		exec:    cfg.Exec,
		fsys:    cfg.Fs,
		logger:  cfg.Logger,
		search:  cfg.SearchPaths,
		timeout: timeout,
		cache:   make(map[CommandName]*Command),
	}, nil
}

// SetActiveInterpreter records the user's interpreter selection and
// invalidates every cached command. Coarse wholesale invalidation is
// deliberate: simpler and safer than per-command diffing.
func (s *Service) SetActiveInterpreter(path string) {
	if path != "" {
		path = python.NormalizePath(path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == path {
		return
	}
	s.active = path
	s.cache = make(map[CommandName]*Command)
}

// ActiveInterpreter returns the currently selected interpreter path.
func (s *Service) ActiveInterpreter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsSupported reports whether the logical command can be resolved.
func (s *Service) IsSupported(ctx context.Context, name CommandName) bool {
	_, err := s.Resolve(ctx, name)
	return err == nil
}

// Resolve finds a runnable invocation for name. Successes are cached
// for the process lifetime (until the active interpreter changes); the
// only error returned is *UnsupportedCommandError.
func (s *Service) Resolve(ctx context.Context, name CommandName) (*Command, error) {
	s.mu.Lock()
	if cmd, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return cmd, nil
	}
	active := s.active
	s.mu.Unlock()

	args, known := moduleArgs[name]
	if !known {
		return nil, &UnsupportedCommandError{Command: name}
	}

	// (a) The active interpreter gets first shot.
	if active != "" {
		if cmd := s.probeInterpreter(ctx, active, args); cmd != nil {
			return s.remember(name, cmd), nil
		}
	}

	// (b) Any other known interpreter.
	for _, rec := range s.coll.Environments(ctx) {
		if rec.Path == active {
			continue
		}
		if cmd := s.probeInterpreter(ctx, rec.Path, args); cmd != nil {
			return s.remember(name, cmd), nil
		}
	}

	// (c) A bare jupyter executable on the search paths.
	if cmd := s.probeBareExecutable(ctx, name); cmd != nil {
		return s.remember(name, cmd), nil
	}

	return nil, &UnsupportedCommandError{Command: name}
}

func (s *Service) remember(name CommandName, cmd *Command) *Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[name] = cmd
	return cmd
}

// probeInterpreter verifies `interp -m <tool> --version` runs clean.
func (s *Service) probeInterpreter(ctx context.Context, interp string, args []string) *Command {
	probe := append(append([]string{}, args...), "--version")
	result, err := s.exec.Run(ctx, interp, probe, platform.RunOptions{
		Timeout: s.timeout,
		Env:     s.environmentFor(interp),
	})
	if err != nil || result.ExitCode != 0 {
		return nil
	}
	return &Command{ExecutablePath: interp, RequiredArgs: args, Interpreter: interp}
}

// probeBareExecutable looks for a standalone jupyter binary in the
// configured search paths, then on PATH.
func (s *Service) probeBareExecutable(ctx context.Context, name CommandName) *Command {
	sub, ok := bareSubcommand(name)
	if !ok {
		return nil
	}

	var candidates []string
	for _, dir := range s.search {
		for _, exe := range []string{"jupyter", "jupyter.exe"} {
			p := filepath.Join(dir, exe)
			if s.fsys.Exists(p) {
				candidates = append(candidates, p)
			}
		}
	}
	if p := s.exec.LookPath("jupyter"); p != "" {
		candidates = append(candidates, p)
	}

	for _, exe := range candidates {
		result, err := s.exec.Run(ctx, exe, []string{sub, "--version"}, platform.RunOptions{Timeout: s.timeout})
		if err != nil || result.ExitCode != 0 {
			continue
		}
		return &Command{ExecutablePath: exe, RequiredArgs: []string{sub}}
	}
	return nil
}

// bareSubcommand maps a logical command onto the jupyter launcher's
// subcommand. ipykernel has no bare form.
func bareSubcommand(name CommandName) (string, bool) {
	switch name {
	case CommandNotebook:
		return "notebook", true
	case CommandNbconvert:
		return "nbconvert", true
	case CommandKernelspec:
		return "kernelspec", true
	default:
		return "", false
	}
}

// environmentFor builds the spawn environment for an interpreter.
// Conda interpreters need their prefix activated; the fix-up is
// recomputed for every execution because env vars may change.
func (s *Service) environmentFor(interp string) []string {
	if interp == "" {
		return nil
	}
	rec, ok := s.coll.Lookup(interp)
	if !ok || rec.Kind != python.KindConda {
		return nil
	}

	// bin/python -> prefix, python.exe -> prefix
	prefix := filepath.Dir(interp)
	if filepath.Base(prefix) == "bin" || filepath.Base(prefix) == "Scripts" {
		prefix = filepath.Dir(prefix)
	}

	env := os.Environ()
	env = append(env, "CONDA_PREFIX="+prefix)
	if rec.EnvName != "" {
		env = append(env, "CONDA_DEFAULT_ENV="+rec.EnvName)
	}
	env = append(env, "PATH="+filepath.Dir(interp)+string(os.PathListSeparator)+os.Getenv("PATH"))
	return env
}
