package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karrtikr/pyscout/internal/environments"
	"github.com/karrtikr/pyscout/internal/envinfo"
	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/store"
)

// cmdExecutor dispatches every Run to a handler and records the calls
// with the environment each was spawned with.
type cmdExecutor struct {
	mu       sync.Mutex
	calls    []string
	envs     [][]string
	handler  func(path string, args []string) (*platform.ExecResult, error)
	lookPath string
}

func (e *cmdExecutor) Run(ctx context.Context, path string, args []string, opts platform.RunOptions) (*platform.ExecResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, path+" "+strings.Join(args, " "))
	e.envs = append(e.envs, opts.Env)
	e.mu.Unlock()
	return e.handler(path, args)
}

func (e *cmdExecutor) lastEnv() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.envs) == 0 {
		return nil
	}
	return e.envs[len(e.envs)-1]
}

func (e *cmdExecutor) LookPath(name string) string { return e.lookPath }

func (e *cmdExecutor) countCalls(substr string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// versionExecutor answers interpreter introspection probes from a
// path-to-version map.
type versionExecutor struct {
	versions map[string][3]int
}

func (e versionExecutor) Run(ctx context.Context, path string, args []string, opts platform.RunOptions) (*platform.ExecResult, error) {
	v, ok := e.versions[path]
	if !ok {
		v = [3]int{3, 8, 3}
	}
	return &platform.ExecResult{
		Stdout: fmt.Sprintf(`{"versionInfo": [%d, %d, %d, "final", 0], "sysPrefix": "/usr", "sysVersion": "", "is64Bit": true}`, v[0], v[1], v[2]),
	}, nil
}

func (e versionExecutor) LookPath(name string) string { return "" }

func makeInterpreter(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name, "bin", "python")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(""), 0755))
	return python.NormalizePath(p)
}

func newTestService(t *testing.T, exec *cmdExecutor, versions map[string][3]int) (*Service, *environments.Collection) {
	t.Helper()
	logger := log.New(io.Discard)
	info, err := envinfo.New(&envinfo.Config{Workers: 2, Executor: versionExecutor{versions: versions}, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(info.Close)

	coll := environments.New(&environments.Config{
		Info:   info,
		Store:  store.NewMemoryStore(),
		Fs:     platform.NewOSFilesystem(),
		Logger: logger,
	})
	t.Cleanup(coll.Close)

	svc, err := NewService(&Config{
		Collection: coll,
		Info:       info,
		Exec:       exec,
		Fs:         platform.NewOSFilesystem(),
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, coll
}

func succeed() (*platform.ExecResult, error) { return &platform.ExecResult{}, nil }

func fail() (*platform.ExecResult, error) { return &platform.ExecResult{ExitCode: 1}, nil }

func TestResolvePrefersActiveInterpreter(t *testing.T) {
	interp := makeInterpreter(t, "active")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		if path == interp {
			return succeed()
		}
		return fail()
	}}
	svc, _ := newTestService(t, exec, nil)
	svc.SetActiveInterpreter(interp)

	cmd, err := svc.Resolve(context.Background(), CommandNotebook)
	require.NoError(t, err)
	assert.Equal(t, interp, cmd.ExecutablePath)
	assert.Equal(t, []string{"-m", "jupyter", "notebook"}, cmd.RequiredArgs)
	assert.Equal(t, interp, cmd.Interpreter)
}

func TestResolveFallsBackToOtherInterpreters(t *testing.T) {
	active := makeInterpreter(t, "active")
	other := makeInterpreter(t, "other")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		if path == other {
			return succeed()
		}
		return fail()
	}}
	svc, coll := newTestService(t, exec, nil)
	svc.SetActiveInterpreter(active)
	coll.AddPartial(context.Background(), python.Record{Path: other, Source: python.SourceKnownPath}, true)

	cmd, err := svc.Resolve(context.Background(), CommandNbconvert)
	require.NoError(t, err)
	assert.Equal(t, other, cmd.ExecutablePath)
	assert.Equal(t, other, cmd.Interpreter)
}

func TestResolveBareExecutable(t *testing.T) {
	binDir := t.TempDir()
	bare := filepath.Join(binDir, "jupyter")
	require.NoError(t, os.WriteFile(bare, []byte(""), 0755))

	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		if path == bare {
			return succeed()
		}
		return fail()
	}}

	logger := log.New(io.Discard)
	info, err := envinfo.New(&envinfo.Config{Executor: versionExecutor{}, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(info.Close)
	coll := environments.New(&environments.Config{
		Info: info, Store: store.NewMemoryStore(), Fs: platform.NewOSFilesystem(), Logger: logger,
	})
	t.Cleanup(coll.Close)
	svc, err := NewService(&Config{
		Collection: coll, Info: info, Exec: exec, Fs: platform.NewOSFilesystem(),
		Logger: logger, SearchPaths: []string{binDir},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	cmd, err := svc.Resolve(context.Background(), CommandNotebook)
	require.NoError(t, err)
	assert.Equal(t, bare, cmd.ExecutablePath)
	assert.Equal(t, []string{"notebook"}, cmd.RequiredArgs)
	assert.Empty(t, cmd.Interpreter)
}

func TestResolveUnsupported(t *testing.T) {
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		return fail()
	}}
	svc, _ := newTestService(t, exec, nil)

	_, err := svc.Resolve(context.Background(), CommandIPyKernel)
	var unsupported *UnsupportedCommandError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, CommandIPyKernel, unsupported.Command)
	assert.False(t, svc.IsSupported(context.Background(), CommandIPyKernel))
}

func TestSetActiveInterpreterInvalidatesCache(t *testing.T) {
	first := makeInterpreter(t, "first")
	second := makeInterpreter(t, "second")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		return succeed()
	}}
	svc, _ := newTestService(t, exec, nil)
	svc.SetActiveInterpreter(first)

	ctx := context.Background()
	_, err := svc.Resolve(ctx, CommandNotebook)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, CommandNotebook)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.countCalls("notebook --version"), "second resolve must hit the cache")

	// A new selection throws the whole cache away.
	svc.SetActiveInterpreter(second)
	cmd, err := svc.Resolve(ctx, CommandNotebook)
	require.NoError(t, err)
	assert.Equal(t, second, cmd.ExecutablePath)
	assert.Equal(t, 2, exec.countCalls("notebook --version"))
}

// Commands resolved against a conda interpreter must run with the
// activation environment, and that environment must be rebuilt for
// every execution rather than frozen at resolution time.
func TestCondaCommandsGetActivationEnvironment(t *testing.T) {
	interp := makeInterpreter(t, "conda-env")
	envDir := filepath.Dir(filepath.Dir(interp))
	binDir := filepath.Dir(interp)
	sep := string(os.PathListSeparator)

	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		joined := strings.Join(args, " ")
		if strings.HasSuffix(joined, "--version") {
			return succeed()
		}
		if strings.Contains(joined, "kernelspec list --json") {
			return &platform.ExecResult{Stdout: `{"kernelspecs": {}}`}, nil
		}
		return fail()
	}}
	svc, coll := newTestService(t, exec, nil)
	coll.AddPartial(context.Background(), python.Record{
		Path:    interp,
		Source:  python.SourceConda,
		Kind:    python.KindConda,
		EnvName: "science",
	}, true)
	svc.SetActiveInterpreter(interp)

	ctx := context.Background()
	_, err := svc.Resolve(ctx, CommandKernelspec)
	require.NoError(t, err)

	env := exec.lastEnv()
	assert.Contains(t, env, "CONDA_PREFIX="+envDir)
	assert.Contains(t, env, "CONDA_DEFAULT_ENV=science")
	assert.Contains(t, env, "PATH="+binDir+sep+os.Getenv("PATH"))

	// PATH changes between executions of the now-cached command; the
	// injected environment must follow it.
	t.Setenv("PATH", envDir)
	svc.ListKernelSpecs(ctx)
	assert.Contains(t, exec.lastEnv(), "PATH="+binDir+sep+envDir)
}

func TestScoreSpecExactMatch(t *testing.T) {
	target := makeInterpreter(t, "target")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		return succeed()
	}}
	svc, _ := newTestService(t, exec, map[string][3]int{target: {3, 8, 3}})

	ctx := context.Background()
	version := &python.Version{Major: 3, Minor: 8, Patch: 3}

	exact := KernelSpec{Name: "python3", Language: "python", ExecutablePath: target}
	assert.Equal(t, 18, svc.ScoreSpec(ctx, exact, target, version),
		"path match + language + full version match")

	// No on-disk interpreter behind the spec: the declared name's
	// trailing digit is the only version evidence.
	stale := KernelSpec{Name: "py2", Language: "python", ExecutablePath: filepath.Join(t.TempDir(), "missing", "python")}
	assert.Equal(t, 1, svc.ScoreSpec(ctx, stale, target, version))

	named := KernelSpec{Name: "python3", Language: "python", ExecutablePath: filepath.Join(t.TempDir(), "missing", "python")}
	assert.Equal(t, 5, svc.ScoreSpec(ctx, named, target, version))
}

func kernelspecListJSON(specs map[string]map[string]any) string {
	out := map[string]any{"kernelspecs": specs}
	data, _ := json.Marshal(out)
	return string(data)
}

func TestBestMatchingSpecFallsBackToFirstEnumerated(t *testing.T) {
	interp := makeInterpreter(t, "active")
	listing := kernelspecListJSON(map[string]map[string]any{
		"zeta": {"resource_dir": "/specs/zeta", "spec": map[string]any{
			"argv": []string{"/nowhere/ir"}, "language": "r", "display_name": "R (zeta)",
		}},
		"alpha": {"resource_dir": "/specs/alpha", "spec": map[string]any{
			"argv": []string{"/nowhere/julia"}, "language": "julia", "display_name": "Julia",
		}},
	})
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		joined := strings.Join(args, " ")
		if strings.HasSuffix(joined, "--version") {
			return succeed()
		}
		if strings.Contains(joined, "kernelspec list --json") {
			return &platform.ExecResult{Stdout: listing}, nil
		}
		return fail()
	}}
	svc, _ := newTestService(t, exec, nil)
	svc.SetActiveInterpreter(interp)

	// Nothing scores: the first enumerated spec comes back anyway, and
	// the flag tells the caller it is arbitrary.
	spec, scored := svc.BestMatchingSpec(context.Background(), "/somewhere/else/python", nil)
	require.NotNil(t, spec)
	assert.False(t, scored)
	assert.Equal(t, "alpha", spec.Name)
}

func TestBestNotebookInterpreterPrefersActiveWithKernelModule(t *testing.T) {
	active := makeInterpreter(t, "active")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		if len(args) == 2 && args[1] == "import ipykernel" && path == active {
			return succeed()
		}
		return fail()
	}}
	svc, coll := newTestService(t, exec, nil)
	coll.AddPartial(context.Background(), python.Record{Path: active, Source: python.SourceWorkspaceVenv, Kind: python.KindVenv}, true)
	svc.SetActiveInterpreter(active)

	best := svc.BestNotebookInterpreter(context.Background())
	require.NotNil(t, best)
	assert.Equal(t, active, best.Path)
}

func TestBestNotebookInterpreterScoresByVersionCloseness(t *testing.T) {
	active := makeInterpreter(t, "active")
	near := makeInterpreter(t, "near")
	far := makeInterpreter(t, "far")
	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		if len(args) == 2 && args[1] == "import ipykernel" && path != active {
			return succeed()
		}
		return fail()
	}}
	svc, coll := newTestService(t, exec, map[string][3]int{
		active: {3, 9, 1},
		near:   {3, 9, 1},
		far:    {3, 8, 0},
	})

	ctx := context.Background()
	coll.AddPartial(ctx, python.Record{Path: active, Source: python.SourceWorkspaceVenv, Kind: python.KindVenv}, true)
	coll.AddPartial(ctx, python.Record{Path: near, Source: python.SourceGlobalVenv, Kind: python.KindVenv}, true)
	coll.AddPartial(ctx, python.Record{Path: far, Source: python.SourceGlobalVenv, Kind: python.KindVenv}, true)
	svc.SetActiveInterpreter(active)

	best := svc.BestNotebookInterpreter(ctx)
	require.NotNil(t, best)
	assert.Equal(t, near, best.Path, "version-identical interpreter must beat an older one")
}

func TestMatchingKernelSpecGeneratesAndCleansUp(t *testing.T) {
	interp := makeInterpreter(t, "active")
	kernelsDir := t.TempDir()

	// A pre-existing spec the cleanup must not touch.
	foreign := filepath.Join(kernelsDir, "python3")
	require.NoError(t, os.MkdirAll(foreign, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(foreign, "kernel.json"), []byte(`{"argv":["python"]}`), 0644))

	exec := &cmdExecutor{handler: func(path string, args []string) (*platform.ExecResult, error) {
		joined := strings.Join(args, " ")
		switch {
		case strings.HasSuffix(joined, "--version"):
			return succeed()
		case strings.Contains(joined, "kernelspec list --json"):
			return &platform.ExecResult{Stdout: `{"kernelspecs": {}}`}, nil
		case len(args) == 2 && args[1] == "import ipykernel":
			return succeed()
		case strings.Contains(joined, "ipykernel install"):
			var name string
			for i, a := range args {
				if a == "--name" && i+1 < len(args) {
					name = args[i+1]
				}
			}
			dir := filepath.Join(kernelsDir, name)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
			spec := `{"argv": ["python", "-m", "ipykernel_launcher", "-f", "{connection_file}"], "display_name": "Python 3", "language": "python"}`
			if err := os.WriteFile(filepath.Join(dir, "kernel.json"), []byte(spec), 0644); err != nil {
				return nil, err
			}
			return &platform.ExecResult{
				Stdout: fmt.Sprintf("Installed kernelspec %s in %s\n", name, dir),
			}, nil
		}
		return fail()
	}}
	svc, _ := newTestService(t, exec, nil)
	svc.SetActiveInterpreter(interp)

	spec := svc.MatchingKernelSpec(context.Background())
	require.NotNil(t, spec)
	assert.True(t, strings.HasPrefix(spec.Name, "pyscout-"))
	assert.Equal(t, interp, spec.ExecutablePath, "argv must be rewritten to the chosen interpreter")

	// The on-disk spec carries the rewrite too.
	data, err := os.ReadFile(spec.SpecFile)
	require.NoError(t, err)
	var kj kernelJSON
	require.NoError(t, json.Unmarshal(data, &kj))
	require.NotEmpty(t, kj.Argv)
	assert.Equal(t, interp, kj.Argv[0])

	svc.Close()
	_, statErr := os.Stat(filepath.Dir(spec.SpecFile))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "generated spec must be deleted")
	_, statErr = os.Stat(filepath.Join(foreign, "kernel.json"))
	assert.NoError(t, statErr, "pre-existing specs must survive cleanup")
}
