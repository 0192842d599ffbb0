package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/snippetrun/snippetrun/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Executor manages WASM runtimes and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	registry *hostfunc.Registry
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor with the given host function registry.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		registry: registry,
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// Run behaves as if a fresh Session were created for lang, used once for
// code, and dropped (spec.md §6's one-shot `run`): every Option that
// configures a capability normally fixed at session creation (timeout,
// mounts, KV, allow-listed hosts, limits) is translated into the
// matching SessionOption, and the per-call stdin/args/env ride along to
// the single Session.Run call that follows.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...Option) ExecResult {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var sessOpts []SessionOption
	if cfg.timeout > 0 {
		sessOpts = append(sessOpts, WithSessionTimeout(cfg.timeout))
	}
	if cfg.kvEnabled {
		sessOpts = append(sessOpts, WithSessionKV(), WithSessionKVConfig(cfg.kvConfig))
	}
	if len(cfg.httpConfig.AllowedHosts) > 0 {
		sessOpts = append(sessOpts, WithSessionAllowedHosts(cfg.httpConfig.AllowedHosts))
		if cfg.httpConfig.MaxURLLength > 0 {
			sessOpts = append(sessOpts, WithSessionHTTPMaxURLLength(cfg.httpConfig.MaxURLLength))
		}
		if cfg.httpConfig.MaxBodySize > 0 {
			sessOpts = append(sessOpts, WithSessionHTTPMaxBodySize(cfg.httpConfig.MaxBodySize))
		}
	}
	for _, m := range cfg.mounts {
		sessOpts = append(sessOpts, WithSessionMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	if len(cfg.fsOptions) > 0 {
		sessOpts = append(sessOpts, WithSessionMountOptions(cfg.fsOptions...))
	}
	if cfg.limits.MemoryBytes != nil {
		sessOpts = append(sessOpts, WithSessionMemoryLimit(*cfg.limits.MemoryBytes))
	}
	if cfg.limits.FileSizeBytes != nil {
		sessOpts = append(sessOpts, WithSessionFSMaxFileSize(*cfg.limits.FileSizeBytes))
	}

	session, err := e.NewSession(lang, sessOpts...)
	if err != nil {
		return ExecResult{Run: failureStage("", err.Error()), Error: newInternal("create session: %s", err.Error())}
	}
	defer session.Close()

	runOpts := []Option{WithLimits(cfg.limits)}
	if cfg.stdin != "" {
		runOpts = append(runOpts, WithStdin(cfg.stdin))
	}
	if cfg.args != nil {
		runOpts = append(runOpts, WithArgs(cfg.args))
	}
	if cfg.env != nil {
		runOpts = append(runOpts, WithEnv(cfg.env))
	}

	return session.Run(ctx, code, runOpts...)
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	compiled, err := e.runtime.CompileModule(ctx, lang.Module())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "snippetrun")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "snippetrun")
	}
	return filepath.Join(os.TempDir(), "snippetrun-cache")
}
