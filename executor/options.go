package executor

import (
	"time"

	"github.com/snippetrun/snippetrun/hostfunc"
)

// Option configures execution behavior.
type Option func(*runConfig)

type runConfig struct {
	timeout   time.Duration
	kvEnabled bool
	mounts    []hostfunc.Mount
	// Security limits
	kvConfig   hostfunc.KVConfig
	httpConfig hostfunc.HTTPConfig
	fsOptions  []hostfunc.FSOption
	// Per-call globals and resource caps (spec.md §6's run(...) parameters).
	stdin  string
	args   []string
	env    map[string]string
	limits Limits
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout:    30 * time.Second,
		kvConfig:   hostfunc.DefaultKVConfig(),
		httpConfig: hostfunc.HTTPConfig{},
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithAllowedHosts sets the list of hosts that HTTP requests can access.
func WithAllowedHosts(hosts []string) Option {
	return func(c *runConfig) {
		c.httpConfig.AllowedHosts = hosts
	}
}

// WithKVStore enables the in-memory key/value store builtin for a
// one-shot run call.
func WithKVStore() Option {
	return func(c *runConfig) {
		c.kvEnabled = true
	}
}

// WithStdin seeds the interpreter-visible stdin global for this run call.
func WithStdin(s string) Option {
	return func(c *runConfig) { c.stdin = s }
}

// WithArgs seeds the interpreter-visible args global for this run call.
func WithArgs(args []string) Option {
	return func(c *runConfig) { c.args = args }
}

// WithEnv seeds the interpreter-visible env global for this run call.
func WithEnv(env map[string]string) Option {
	return func(c *runConfig) { c.env = env }
}

// WithLimits overrides the wall-clock and file-size caps for this run
// call. A nil field keeps whatever the session (or the executor's own
// defaults, for the one-shot path) already has in place. MemoryBytes has
// no effect on Session.Run; the one-shot Executor.Run passes it on as
// WithSessionMemoryLimit.
func WithLimits(l Limits) Option {
	return func(c *runConfig) { c.limits = l }
}

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// WithMount adds a filesystem mount point with the specified permissions.
// The virtual path is what sandboxed code sees; host path is the actual location.
//
// Examples:
//
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
//	executor.WithMount("/output", "./results", executor.MountReadWrite)
//	executor.WithMount("/workspace", "./work", executor.MountReadWriteCreate)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) Option {
	return func(c *runConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// Security limit options

// WithKVMaxKeySize sets the maximum key size for KV store operations.
func WithKVMaxKeySize(size int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxKeySize = size
	}
}

// WithKVMaxValueSize sets the maximum value size for KV store operations.
func WithKVMaxValueSize(size int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxValueSize = size
	}
}

// WithKVMaxEntries sets the maximum number of entries in the KV store.
func WithKVMaxEntries(n int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxEntries = n
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for HTTP requests.
func WithHTTPMaxURLLength(size int) Option {
	return func(c *runConfig) {
		c.httpConfig.MaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum response body size for HTTP requests.
func WithHTTPMaxBodySize(size int64) Option {
	return func(c *runConfig) {
		c.httpConfig.MaxBodySize = size
	}
}

// WithFSMaxFileSize sets the maximum file size for read operations.
func WithFSMaxFileSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

// WithFSMaxWriteSize sets the maximum content size for write operations.
func WithFSMaxWriteSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxWriteSize(size))
	}
}

// WithFSMaxPathLength sets the maximum path length for filesystem operations.
func WithFSMaxPathLength(length int) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxPathLength(length))
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/snippetrun or XDG_CACHE_HOME/snippetrun.
//
// Examples:
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// SessionOption configures a Session at creation time.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	timeout             time.Duration
	memoryBytes         *int64
	fileSizeBytes       *int64
	mounts              []hostfunc.Mount
	allowedHosts        []string
	httpMaxURLLength    int
	httpMaxBodySize     int64
	kvEnabled           bool
	kvConfig            hostfunc.KVConfig
	fsOptions           []hostfunc.FSOption
	packages            []string
	allowPackageInstall bool
	allowedPackages     []string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:  10 * time.Second,
		kvConfig: hostfunc.DefaultKVConfig(),
	}
}

// WithSessionTimeout bounds the wall-clock time of every run call made
// against the session.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.timeout = d }
}

// WithSessionMemoryLimit records a memory cap in bytes, rounded up to
// whole WASM pages at session start. It does not bound the interpreter's
// linear memory (only the Executor-level WithMemoryLimit does); the
// recorded value is what the session reports as memory usage when the
// live module cannot be sampled.
func WithSessionMemoryLimit(bytes int64) SessionOption {
	return func(c *sessionConfig) { c.memoryBytes = &bytes }
}

// WithSessionFSMaxFileSize caps how large a single file the session's
// VirtualFilesystem will read; writes are capped separately by the VFS's
// default write-size limit.
func WithSessionFSMaxFileSize(bytes int64) SessionOption {
	return func(c *sessionConfig) { c.fileSizeBytes = &bytes }
}

// WithSessionMount grants the session's supplemental mounted filesystem
// (distinct from its jailed data root) access to a host directory.
func WithSessionMount(virtualPath, hostPath string, mode hostfunc.MountMode) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{VirtualPath: virtualPath, HostPath: hostPath, Mode: mode})
	}
}

// WithSessionAllowedHosts allow-lists hosts the session's HTTP builtin
// may reach.
func WithSessionAllowedHosts(hosts []string) SessionOption {
	return func(c *sessionConfig) { c.allowedHosts = hosts }
}

// WithSessionHTTPMaxURLLength caps URL length for the session's HTTP builtin.
func WithSessionHTTPMaxURLLength(n int) SessionOption {
	return func(c *sessionConfig) { c.httpMaxURLLength = n }
}

// WithSessionHTTPMaxBodySize caps response body size for the session's
// HTTP builtin.
func WithSessionHTTPMaxBodySize(n int64) SessionOption {
	return func(c *sessionConfig) { c.httpMaxBodySize = n }
}

// WithSessionKV enables the session-scoped key/value store builtin.
// Unlike the deleted package-global store this once rode on, each
// session gets its own isolated hostfunc.KV.
func WithSessionKV() SessionOption {
	return func(c *sessionConfig) { c.kvEnabled = true }
}

// WithSessionKVConfig overrides the size/count limits of the session's
// key/value store. Has no effect unless WithSessionKV is also given.
func WithSessionKVConfig(cfg hostfunc.KVConfig) SessionOption {
	return func(c *sessionConfig) { c.kvConfig = cfg }
}

// WithSessionMountOptions bounds the session's supplemental mounted
// filesystem (see WithSessionMount) with the same size/length limits the
// one-shot run's WithFSMaxFileSize/WithFSMaxWriteSize/WithFSMaxPathLength
// apply to hostfunc.FS.
func WithSessionMountOptions(opts ...hostfunc.FSOption) SessionOption {
	return func(c *sessionConfig) { c.fsOptions = append(c.fsOptions, opts...) }
}

// WithPackages preinstalls the named pip packages into the session's
// data root before the first run call.
func WithPackages(pkgs []string) SessionOption {
	return func(c *sessionConfig) { c.packages = pkgs }
}

// WithPackageInstall allows or forbids a running snippet from invoking
// the package installer itself mid-session.
func WithPackageInstall(allow bool) SessionOption {
	return func(c *sessionConfig) { c.allowPackageInstall = allow }
}

// WithAllowedPackages restricts package_install to a named allow-list,
// on top of the installer's own rejection of names containing shell
// metacharacters.
func WithAllowedPackages(pkgs []string) SessionOption {
	return func(c *sessionConfig) { c.allowedPackages = pkgs }
}
