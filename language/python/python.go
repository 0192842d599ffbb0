// Package python provides the Python language adapter, backed by the
// RustPython WASI build and the shared builtin module wiring.
package python

import (
	_ "embed"
	"fmt"

	"github.com/snippetrun/snippetrun/builtin"
)

//go:embed python.wasm
var wasmModule []byte

// wiringScript is computed once: the host-call bridge plus every builtin
// shim in dependency order. Per-run globals (args/env/cwd/stdin) are
// re-embedded fresh by executor.Session.Run/Executor.Run ahead of the
// snippet body rather than baked in here, since a single Python process
// may run many snippets across a session's lifetime.
var wiringScript string

func init() {
	script, err := builtin.WireScriptPython(builtin.Globals{Cwd: "/"})
	if err != nil {
		panic(fmt.Sprintf("compose python wiring script: %v", err))
	}
	wiringScript = script
}

// Python implements the executor.Language interface for Python execution.
type Python struct{}

// New returns a Python language adapter.
func New() *Python {
	return &Python{}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Module returns the RustPython WASM binary.
func (p *Python) Module() []byte {
	return wasmModule
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(wrappedCode string) []string {
	return []string{"python", "-c", wrappedCode}
}

// SessionInit returns the bootstrap program a persistent session runs
// instead of a single snippet: it signals readiness, then loops reading
// NUL-terminated JSON frames off stdin and exec'ing each frame's code
// against the same module-level globals dict, so state a snippet
// defines (a variable, a function) is still there on the next frame.
// Frames with no "code" key (the interpreter host's global-priming
// handshake) are silently skipped.
func (p *Python) SessionInit() string {
	return sessionBootstrap
}

const sessionBootstrap = `
import sys
import json


def _snippetrun_read_frame():
    buf = []
    while True:
        ch = sys.stdin.read(1)
        if ch == "":
            return None
        if ch == "\x00":
            if not buf:
                continue
            break
        buf.append(ch)
    return "".join(buf)


def _snippetrun_session_loop():
    sys.stderr.write("\x00SNIPRUN_READY\x00")
    sys.stderr.flush()
    while True:
        raw = _snippetrun_read_frame()
        if raw is None:
            return
        try:
            cmd = json.loads(raw)
        except Exception:
            continue
        if not isinstance(cmd, dict) or "code" not in cmd:
            continue
        try:
            exec(cmd["code"], globals())
            sys.stderr.write("\x00SNIPRUN_DONE\x00")
        except BaseException as e:
            sys.stderr.write("\x00SNIPRUN_ERROR:" + type(e).__name__ + ": " + str(e) + "\x00")
        sys.stderr.flush()


_snippetrun_session_loop()
`
