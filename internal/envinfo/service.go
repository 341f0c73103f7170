// Package envinfo enriches discovered interpreter paths by executing
// them with a fixed introspection command and parsing the output.
package envinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

// introspectScript is the single -c payload run inside every candidate
// interpreter. It must stay valid from Python 2.7 up.
const introspectScript = `import json,sys;print(json.dumps({"versionInfo":list(sys.version_info),"sysPrefix":sys.prefix,"sysVersion":sys.version,"is64Bit":sys.maxsize>2**32}))`

// Info is the enrichment payload for one interpreter path.
type Info struct {
	Path         string
	Version      *python.Version
	Architecture python.Architecture
	SysPrefix    string
}

// Config holds service configuration.
type Config struct {
	// Workers caps concurrent interpreter probe subprocesses.
	// Default: 2.
	Workers int
	// ProbeTimeout bounds a single probe. Default: 30s.
	ProbeTimeout time.Duration
	// Executor runs the probes. Required.
	Executor platform.Executor
	// Logger receives probe failures. Required.
	Logger *log.Logger
}

// DefaultConfig returns a config with sensible defaults; the Executor
// and Logger still have to be supplied.
func DefaultConfig() *Config {
	return &Config{
		Workers:      2,
		ProbeTimeout: 30 * time.Second,
	}
}

// Service returns cached or freshly probed interpreter metadata. At
// most one probe runs concurrently per path, and successful results
// are memoized for the process lifetime. Failures are never memoized
// so a later retry can succeed once the environment becomes valid.
type Service struct {
	mu    sync.RWMutex
	cache map[string]*Info

	pool    *workerpool.Pool[*Info]
	exec    platform.Executor
	timeout time.Duration
	logger  *log.Logger
}

// New creates the service and starts its probe pool.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}

	return &Service{
		cache:   make(map[string]*Info),
		pool:    workerpool.New[*Info](cfg.Workers),
		exec:    cfg.Executor,
		timeout: cfg.ProbeTimeout,
		logger:  cfg.Logger,
	}, nil
}

// GetInfo returns metadata for the interpreter at path, or nil when it
// could not be determined. Concurrent callers for one path share a
// single probe.
func (s *Service) GetInfo(ctx context.Context, path string, priority workerpool.Priority) *Info {
	key := python.NormalizePath(path)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	future := s.pool.Submit(key, priority, func(taskCtx context.Context) (*Info, error) {
		return s.probe(taskCtx, key)
	})

	info, ok := future.Wait(ctx)
	if !ok || info == nil {
		return nil
	}

	s.mu.Lock()
	s.cache[key] = info
	s.mu.Unlock()
	return info
}

// Close stops the probe pool.
func (s *Service) Close() {
	s.pool.Close()
}

// probe executes the interpreter and parses its introspection output.
func (s *Service) probe(ctx context.Context, path string) (*Info, error) {
	result, err := s.exec.Run(ctx, path, []string{"-c", introspectScript}, platform.RunOptions{
		Timeout: s.timeout,
	})
	if err != nil {
		s.logger.Debug("interpreter probe failed to spawn", "path", path, "err", err)
		return nil, err
	}
	if result.ExitCode != 0 {
		s.logger.Debug("interpreter probe exited non-zero",
			"path", path, "exitCode", result.ExitCode, "stderr", strings.TrimSpace(result.Stderr))
		return nil, fmt.Errorf("probe exited with code %d", result.ExitCode)
	}

	info, err := parseIntrospection(path, result.Stdout)
	if err != nil {
		s.logger.Debug("interpreter probe output unparsable", "path", path, "err", err)
		return nil, err
	}
	return info, nil
}

type introspection struct {
	VersionInfo []any  `json:"versionInfo"`
	SysPrefix   string `json:"sysPrefix"`
	SysVersion  string `json:"sysVersion"`
	Is64Bit     bool   `json:"is64Bit"`
}

// parseIntrospection converts the probe's JSON line into an Info.
// Interpreters with chatty site hooks may print banners first, so the
// payload is located at the first brace.
func parseIntrospection(path, stdout string) (*Info, error) {
	payload := stdout
	if idx := strings.Index(payload, "{"); idx > 0 {
		payload = payload[idx:]
	}

	var raw introspection
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &raw); err != nil {
		return nil, fmt.Errorf("decoding introspection output: %w", err)
	}
	if len(raw.VersionInfo) < 3 {
		return nil, fmt.Errorf("introspection output missing version info")
	}

	version := &python.Version{
		Major: intAt(raw.VersionInfo, 0),
		Minor: intAt(raw.VersionInfo, 1),
		Patch: intAt(raw.VersionInfo, 2),
	}
	version.Raw = fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)
	if len(raw.VersionInfo) >= 5 {
		if level, ok := raw.VersionInfo[3].(string); ok {
			version.Build = fmt.Sprintf("%s.%d", level, intAt(raw.VersionInfo, 4))
		}
	}

	arch := python.ArchX86
	if raw.Is64Bit {
		arch = python.ArchX64
	}

	return &Info{
		Path:         path,
		Version:      version,
		Architecture: arch,
		SysPrefix:    raw.SysPrefix,
	}, nil
}

// intAt reads an integer out of a decoded JSON array, tolerating the
// float64 representation encoding/json uses for numbers.
func intAt(values []any, i int) int {
	if i >= len(values) {
		return 0
	}
	switch v := values[i].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
