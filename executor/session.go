package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/snippetrun/snippetrun/builtin"
	"github.com/snippetrun/snippetrun/capture"
	"github.com/snippetrun/snippetrun/govern"
	"github.com/snippetrun/snippetrun/hostfunc"
	"github.com/snippetrun/snippetrun/interp"
	"github.com/snippetrun/snippetrun/timerqueue"
)

// ErrSessionClosed is returned by Run once a Session has been closed.
var ErrSessionClosed = errors.New("session closed")

// sessionState tracks the lifecycle spec.md's Session state machine
// names: Created (data_root reserved, interpreter not yet built),
// Initialized (interpreter instance built, builtins wired, cwd reset to
// "/"), and Destroyed (data_root removed from disk).
type sessionState int

const (
	sessionCreated sessionState = iota
	sessionInitialized
	sessionDestroyed
)

var sessionCounter atomic.Int64

// Session is the unit of continuity between run calls: one persistent
// interpreter instance, one jailed data_root, one mutable cwd, reused
// across every Run until Close.
type Session struct {
	mu    sync.Mutex
	state sessionState

	executor *Executor
	lang     Language
	cfg      sessionConfig

	dataRoot string
	vfs      *hostfunc.VFS
	streams  *capture.Streams
	timers   *timerqueue.Scheduler
	registry *hostfunc.Registry
	host     *interp.Host
}

// NewSession allocates a Created session: its data_root directory is
// created on disk immediately (subdirectories are created by the VFS on
// first write) and every capability the SessionOptions requested is wired into
// a session-private registry layered over the Executor's shared one.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := sessionCounter.Add(1)
	dataRoot := filepath.Join(os.TempDir(), "snippetrun", lang.Name(), "data", strconv.FormatInt(id, 10))
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("allocate data root: %w", err)
	}

	var vfsOpts []hostfunc.VFSOption
	if cfg.fileSizeBytes != nil {
		vfsOpts = append(vfsOpts, hostfunc.WithVFSMaxFileSize(*cfg.fileSizeBytes))
	}
	vfs, err := hostfunc.NewVFS(dataRoot, vfsOpts...)
	if err != nil {
		os.RemoveAll(dataRoot)
		return nil, fmt.Errorf("mount data root: %w", err)
	}

	s := &Session{
		state:    sessionCreated,
		executor: e,
		lang:     lang,
		cfg:      cfg,
		dataRoot: dataRoot,
		vfs:      vfs,
		streams:  capture.New(),
		timers:   timerqueue.New(64),
		registry: hostfunc.NewRegistry(),
	}

	s.wireBuiltins()

	if len(cfg.packages) > 0 {
		if err := s.installPackages(context.Background(), cfg.packages); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("preinstall packages: %w", err)
		}
	}

	return s, nil
}

// wireBuiltins registers every host function the session's builtins can
// call, falling back to the Executor's shared registry last so embedder
// functions registered there (e.g. a custom "get_value") stay reachable
// through the generic call() passthrough without shadowing a session's
// own fs/timer/kv bindings.
func (s *Session) wireBuiltins() {
	s.registry.Register("console_write", func(_ context.Context, args map[string]any) (any, error) {
		level, _ := args["level"].(string)
		line, _ := args["line"].(string)
		if level == "stdout" {
			s.streams.Println(line)
		} else {
			s.streams.Tagged(level, line)
		}
		return nil, nil
	})

	s.registry.Register("fs_read_file", func(_ context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		return s.vfs.ReadFileText(path)
	})
	s.registry.Register("fs_read_file_encoding", func(_ context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		label, _ := args["label"].(string)
		return s.vfs.ReadFileWithEncoding(path, label)
	})
	s.registry.Register("fs_write_file", func(_ context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		return nil, s.vfs.WriteFile(path, []byte(content))
	})
	s.registry.Register("fs_write_file_encoding", func(_ context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		label, _ := args["label"].(string)
		content, _ := args["content"].(string)
		return nil, s.vfs.WriteFileWithEncoding(path, label, content)
	})
	s.registry.Register("fs_list_files", func(_ context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		entries, err := s.vfs.ListFiles(path)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(entries))
		for i, e := range entries {
			out[i] = map[string]any{"name": e.Name, "size": e.Size, "is_dir": e.IsDir}
		}
		return out, nil
	})

	s.registry.Register("timer_schedule", func(_ context.Context, args map[string]any) (any, error) {
		callable, _ := args["callable"].(string)
		delayMS, _ := args["delay_ms"].(float64)
		periodic, _ := args["periodic"].(bool)
		var callArgs []any
		if a, ok := args["args"].([]any); ok {
			callArgs = a
		}
		id := s.timers.Schedule(callable, int64(delayMS), periodic, callArgs)
		return id, nil
	})
	s.registry.Register("timer_cancel", func(_ context.Context, args map[string]any) (any, error) {
		id, _ := args["id"].(float64)
		s.timers.Cancel(int64(id))
		return nil, nil
	})

	if s.cfg.kvEnabled {
		kv := hostfunc.NewKV(s.cfg.kvConfig)
		s.registry.Register("kv_get", kv.Get)
		s.registry.Register("kv_set", kv.Set)
		s.registry.Register("kv_delete", kv.Delete)
		s.registry.Register("kv_keys", kv.Keys)
	}

	if len(s.cfg.allowedHosts) > 0 {
		httpCfg := hostfunc.HTTPConfig{
			AllowedHosts: s.cfg.allowedHosts,
			MaxBodySize:  s.cfg.httpMaxBodySize,
			MaxURLLength: s.cfg.httpMaxURLLength,
		}
		h := hostfunc.NewHTTP(httpCfg)
		s.registry.Register("http_request", h.Request)
		s.registry.Register("http_get", hostfunc.NewHTTPGet(httpCfg))
	}

	if len(s.cfg.mounts) > 0 {
		fs := hostfunc.NewFS(s.cfg.mounts, s.cfg.fsOptions...)
		s.registry.Register("mount_read", fs.Read)
		s.registry.Register("mount_write", fs.Write)
		s.registry.Register("mount_list", fs.List)
		s.registry.Register("mount_exists", fs.Exists)
		s.registry.Register("mount_mkdir", fs.Mkdir)
		s.registry.Register("mount_remove", fs.Remove)
		s.registry.Register("mount_stat", fs.Stat)
	}

	pkgCfg := hostfunc.PkgConfig{
		PackageDir:      filepath.Join(s.dataRoot, ".packages"),
		AllowedPackages: s.cfg.allowedPackages,
		Enabled:         s.cfg.allowPackageInstall,
	}
	s.registry.Register("package_install", hostfunc.NewPkgInstaller(pkgCfg))

	s.registry.Register("time_now", func(_ context.Context, _ map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	if shared := s.executor.registry; shared != nil {
		for _, name := range shared.List() {
			if _, ok := s.registry.Get(name); ok {
				continue
			}
			fn, _ := shared.Get(name)
			s.registry.Register(name, fn)
		}
	}
}

func (s *Session) installPackages(ctx context.Context, pkgs []string) error {
	installer := hostfunc.NewPkgInstaller(hostfunc.PkgConfig{
		PackageDir: filepath.Join(s.dataRoot, ".packages"),
		Enabled:    true,
	})
	for _, pkg := range pkgs {
		if _, err := installer(ctx, map[string]any{"name": pkg}); err != nil {
			return fmt.Errorf("install %s: %w", pkg, err)
		}
	}
	return nil
}

// ensureInitialized builds the interpreter instance on first use,
// matching spec.md's Created→Initialized transition: builtins loaded,
// preloaded modules available, cwd reset to "/".
func (s *Session) ensureInitialized(ctx context.Context) error {
	if s.state == sessionInitialized {
		return nil
	}

	compiled, err := s.executor.getCompiled(ctx, s.lang)
	if err != nil {
		return fmt.Errorf("compile %s: %w", s.lang.Name(), err)
	}

	host := interp.New(s.executor.runtime, compiled, s.registry)

	gov := govern.New(s.cfg.memoryBytes, nil, s.cfg.fileSizeBytes)
	host.SetMemoryLimitPages(gov.MemoryPages)

	args := s.lang.Args(s.lang.SessionInit())
	mc := wazero.NewModuleConfig()
	if err := host.Start(context.Background(), args, nil, mc); err != nil {
		return fmt.Errorf("start interpreter: %w", err)
	}

	s.host = host
	s.state = sessionInitialized
	return nil
}

// Run executes snippet against the session's persistent interpreter,
// following spec.md §4.7's 11-step protocol: seed globals, apply
// governor caps, evaluate wiring+snippet as a module, drain timers,
// harvest captured output, sample memory. opts may override the
// session's default stdin/args/env/limits for this call only, matching
// spec.md §6's `session.run(snippet, args, stdin, env, limits)`.
func (s *Session) Run(ctx context.Context, snippet string, opts ...Option) ExecResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessionDestroyed {
		return ExecResult{Run: failureStage("", ErrSessionClosed.Error()), Error: newInternal("%s", ErrSessionClosed.Error())}
	}

	var call runConfig
	for _, opt := range opts {
		opt(&call)
	}

	memoryBytes := s.cfg.memoryBytes
	if call.limits.MemoryBytes != nil {
		memoryBytes = call.limits.MemoryBytes
	}
	fileSizeBytes := s.cfg.fileSizeBytes
	if call.limits.FileSizeBytes != nil {
		fileSizeBytes = call.limits.FileSizeBytes
	}
	timeoutMS := durationPtrMS(s.cfg.timeout)
	if call.limits.TimeMS != nil {
		timeoutMS = call.limits.TimeMS
	}

	gov := govern.New(memoryBytes, timeoutMS, fileSizeBytes)
	runCtx, cancel := gov.WithDeadline(ctx)
	defer cancel()

	if err := s.ensureInitialized(runCtx); err != nil {
		return ExecResult{Run: failureStage("", err.Error()), Error: newInternal("%s", err.Error())}
	}

	s.streams.Reset()

	globals := builtin.Globals{
		Stdin:         call.stdin,
		Args:          call.args,
		Env:           call.env,
		Cwd:           s.vfs.Cwd(),
		FileSizeLimit: gov.FileSizeBytes,
	}

	var wiring string
	var err error
	switch s.lang.Name() {
	case "python":
		wiring, err = builtin.WireScriptPython(globals)
	default:
		wiring, err = builtin.WireScriptJS(globals)
	}
	if err != nil {
		return ExecResult{Run: failureStage("", err.Error()), Error: newInternal("%s", err.Error())}
	}

	source := wiring + "\n" + snippet

	runStart := time.Now()
	evalErr := s.host.EvaluateModule(runCtx, "main", source)

	s.driveIdle(runCtx)

	stdout, stderr := s.streams.Harvest()
	elapsed := time.Since(runStart)
	memBytes := s.host.MemoryUsage()

	s.timers.AbortAll()
	s.driveIdle(runCtx)

	result := ExecResult{
		Run:         successStage(stdout, stderr),
		Output:      stdout + stderr,
		ElapsedMS:   elapsed.Milliseconds(),
		Duration:    elapsed,
		MemoryBytes: memBytes,
	}

	if evalErr != nil {
		if govern.IsDeadlineExceeded(runCtx.Err()) {
			result.Run = timeoutStage("", "")
			result.Output = ""
			result.Error = newTimeout()
		} else {
			diag := stderr
			if diag == "" {
				diag = evalErr.Error()
			}
			result.Run = failureStage(stdout, stderr)
			result.Error = newRuntimeFailed(diag)
		}
	}

	return result
}

// driveIdle pops any timers that fired while the snippet ran and feeds
// each one back into the guest as a fresh module evaluation, since the
// persistent interpreter's stdin loop treats every frame uniformly —
// there is no separate host-to-guest push channel.
func (s *Session) driveIdle(ctx context.Context) {
	for {
		select {
		case task := <-s.timers.Ready:
			argsJSON, err := json.Marshal(task.Args)
			if err != nil {
				continue
			}
			var fireExpr string
			switch s.lang.Name() {
			case "python":
				fireExpr = fmt.Sprintf("_fire(%d, %s)", task.ID, argsJSON)
			default:
				fireExpr = fmt.Sprintf("__timer_fire(%d, %s)", task.ID, argsJSON)
			}
			_ = s.host.EvaluateModule(ctx, "timer", fireExpr)
		default:
			return
		}
	}
}

// Upload decodes file and writes it into the session's data root,
// creating the directory on first use.
func (s *Session) Upload(file File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := file.decode()
	if err != nil {
		return newCompilationFailed("Invalid file encoding")
	}
	return s.vfs.Upload(file.Name, content)
}

// Download reads a file out of the session's data root.
func (s *Session) Download(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vfs.Download(path)
}

// ListFiles returns a one-level listing of path within the data root.
func (s *Session) ListFiles(path string) ([]hostfunc.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vfs.ListFiles(path)
}

// SetWorkingDir mutates the session's cwd. No validation that the path
// exists, matching spec.md §4.7.
func (s *Session) SetWorkingDir(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vfs.SetCwd(path)
}

// Close tears down the interpreter, cancels any outstanding timers, and
// removes the data root from disk — the Destroyed transition.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessionDestroyed {
		return nil
	}
	s.cleanup()
	return nil
}

func (s *Session) cleanup() {
	s.timers.AbortAll()
	if s.host != nil {
		_ = s.host.Close(context.Background())
	}
	os.RemoveAll(s.dataRoot)
	s.state = sessionDestroyed
}

func durationPtrMS(d time.Duration) *int64 {
	if d <= 0 {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
