// Package javascript provides the JavaScript language adapter, backed by
// the QuickJS WASI build and the shared builtin module wiring.
package javascript

import (
	"fmt"

	quickjswasi "github.com/paralin/go-quickjs-wasi"

	"github.com/snippetrun/snippetrun/builtin"
)

// wiringScript is computed once: the host-call bridge plus every builtin
// shim in dependency order. Per-run globals (args/env/cwd/stdin) are
// re-embedded fresh by executor.Session.Run/Executor.Run ahead of the
// snippet body rather than baked in here, since a single QuickJS process
// may run many snippets across a session's lifetime.
var wiringScript string

func init() {
	script, err := builtin.WireScriptJS(builtin.Globals{Cwd: "/"})
	if err != nil {
		panic(fmt.Sprintf("compose javascript wiring script: %v", err))
	}
	wiringScript = script
}

// JavaScript implements the executor.Language interface for JavaScript execution.
type JavaScript struct{}

// New returns a JavaScript language adapter.
func New() *JavaScript {
	return &JavaScript{}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Module returns the QuickJS WASM binary.
func (j *JavaScript) Module() []byte {
	return quickjswasi.QuickJSWASM
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (j *JavaScript) Args(wrappedCode string) []string {
	return []string{"qjs", "--std", "-e", wrappedCode}
}

// SessionInit returns the bootstrap program a persistent session runs
// instead of a single snippet: it signals readiness, then loops reading
// NUL-terminated JSON frames off stdin and indirect-eval'ing each frame's
// code in global scope, so state a snippet defines (a variable, a
// function) is still there on the next frame. Frames with no "code" key
// (the interpreter host's global-priming handshake) are silently skipped.
func (j *JavaScript) SessionInit() string {
	return sessionBootstrap
}

const sessionBootstrap = `
globalThis.__snippetrun_read_frame = function () {
  var buf = "";
  for (;;) {
    var ch = std.in.getByte();
    if (ch < 0) return null;
    if (ch === 0) {
      if (buf.length === 0) continue;
      break;
    }
    buf += String.fromCharCode(ch);
  }
  return buf;
};

(function snippetrunSessionLoop() {
  std.err.puts("\x00SNIPRUN_READY\x00");
  std.err.flush();
  for (;;) {
    var raw = globalThis.__snippetrun_read_frame();
    if (raw === null) return;
    var cmd;
    try {
      cmd = JSON.parse(raw);
    } catch (e) {
      continue;
    }
    if (!cmd || typeof cmd.code !== "string") continue;
    try {
      (0, eval)(cmd.code);
      std.err.puts("\x00SNIPRUN_DONE\x00");
    } catch (e) {
      var message = e && e.message !== undefined ? e.message : String(e);
      var name = e && e.name ? e.name : "Error";
      std.err.puts("\x00SNIPRUN_ERROR:" + name + ": " + message + "\x00");
    }
    std.err.flush();
  }
})();
`
