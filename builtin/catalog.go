// Package builtin holds the embedded shim sources that make up a
// session's BuiltinModuleRegistry and composes them, together with the
// pre-seeded globals spec.md requires, into the single wiring script a
// run call evaluates ahead of the snippet itself.
package builtin

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed js/*.js
var jsFS embed.FS

//go:embed py/*.py
var pyFS embed.FS

// jsModuleOrder and pyModuleOrder fix load order so a shim can reference one registered
// earlier in the same wiring script (e.g. console.js reads
// console_native.js's export).
var jsModuleOrder = []string{
	"console_native.js",
	"console.js",
	"timeout_native.js",
	"timeout.js",
	"fs_native.js",
	"fs.js",
	"process.js",
	"base64.js",
	"buffer.js",
	"ieee754.js",
	"eventemitter.js",
	"readline.js",
	"kv.js",
	"call.js",
}

var pyModuleOrder = []string{
	"console.py",
	"fs.py",
	"timeout.py",
	"process.py",
	"kv.py",
	"call.py",
}

// Globals are the values a run call seeds into the interpreter before
// any builtin or snippet code executes, per spec.md's pre-seeded global
// list (stdin, args, env, cwd, file_size_limit).
type Globals struct {
	Stdin         string
	Args          []string
	Env           map[string]string
	Cwd           string
	FileSizeLimit int64
}

// WireScriptJS returns the JS prelude: the __hostCall bridge, the
// __modules registry, every builtin shim in dependency order, and the
// pre-seeded globals — ready to be concatenated with the snippet body
// and evaluated as a single module.
func WireScriptJS(g Globals) (string, error) {
	argsJSON, err := json.Marshal(g.Args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(g.Env)
	if err != nil {
		return "", fmt.Errorf("marshal env: %w", err)
	}
	cwdJSON, err := json.Marshal(g.Cwd)
	if err != nil {
		return "", fmt.Errorf("marshal cwd: %w", err)
	}
	stdinJSON, err := json.Marshal(g.Stdin)
	if err != nil {
		return "", fmt.Errorf("marshal stdin: %w", err)
	}

	script := jsHostCallBridge + "\nglobalThis.__modules = {};\n"
	script += fmt.Sprintf("globalThis.__snippetrun_args = %s;\n", argsJSON)
	script += fmt.Sprintf("globalThis.__snippetrun_env = %s;\n", envJSON)
	script += fmt.Sprintf("globalThis.__snippetrun_cwd = %s;\n", cwdJSON)
	script += fmt.Sprintf("globalThis.__snippetrun_stdin = %s;\n", stdinJSON)
	script += fmt.Sprintf("globalThis.file_size_limit = %d;\n", g.FileSizeLimit)

	for _, name := range jsModuleOrder {
		data, err := jsFS.ReadFile("js/" + name)
		if err != nil {
			return "", fmt.Errorf("read builtin %s: %w", name, err)
		}
		script += "\n" + string(data)
	}
	return script, nil
}

// WireScriptPython returns the Python prelude: the _host_call bridge,
// the pre-seeded globals, and every builtin shim in dependency order.
func WireScriptPython(g Globals) (string, error) {
	argsJSON, err := json.Marshal(g.Args)
	if err != nil {
		return "", err
	}
	envJSON, err := json.Marshal(g.Env)
	if err != nil {
		return "", err
	}
	cwdJSON, err := json.Marshal(g.Cwd)
	if err != nil {
		return "", err
	}
	stdinJSON, err := json.Marshal(g.Stdin)
	if err != nil {
		return "", err
	}

	script := pyHostCallBridge + "\n"
	script += fmt.Sprintf("__snippetrun_args = %s\n", argsJSON)
	script += fmt.Sprintf("__snippetrun_env = %s\n", envJSON)
	script += fmt.Sprintf("__snippetrun_cwd = %s\n", cwdJSON)
	script += fmt.Sprintf("__snippetrun_stdin = %s\n", stdinJSON)
	script += fmt.Sprintf("file_size_limit = %d\n", g.FileSizeLimit)

	for _, name := range pyModuleOrder {
		data, err := pyFS.ReadFile("py/" + name)
		if err != nil {
			return "", fmt.Errorf("read builtin %s: %w", name, err)
		}
		script += "\n" + string(data) + "\n"
	}
	return script, nil
}

// ModuleIdentifiers lists every identifier a snippet may resolve through
// the registry, sorted for stable diagnostics/listing.
func ModuleIdentifiers() []string {
	ids := []string{
		"__exec_builtin/console_native",
		"__exec_builtin/console",
		"__exec_builtin/timeout_native",
		"__exec_builtin/timeout",
		"__exec_builtin/fs_native",
		"eventemitter",
		"readline",
		"process",
		"buffer",
		"fs",
		"base64",
		"ieee754",
		"kv",
		"call",
	}
	sort.Strings(ids)
	return ids
}

// jsHostCallBridge implements the synchronous call-out QuickJS shims use:
// frame the request on stderr, then busy-read the JSON response the host
// writes back onto stdin, byte by byte, until the NUL terminator.
const jsHostCallBridge = `
globalThis.__callCounter = 0;
globalThis.__hostCall = function (fn, args) {
  const id = String(globalThis.__callCounter++);
  const frame = JSON.stringify({ id: id, fn: fn, args: args });
  std.err.puts("\x00SNIPRUN:" + frame + "\x00");
  std.err.flush();
  let buf = "";
  for (;;) {
    const ch = std.in.getByte();
    if (ch < 0) break;
    if (ch === 0) {
      if (buf.length === 0) continue;
      break;
    }
    buf += String.fromCharCode(ch);
  }
  const resp = JSON.parse(buf);
  if (resp.error) throw new Error(resp.error);
  return resp.result;
};
`

// pyHostCallBridge mirrors jsHostCallBridge for RustPython: frame on
// stderr, then block reading stdin until a NUL-terminated JSON reply
// arrives.
const pyHostCallBridge = `
import sys
import json as _snippetrun_json

_snippetrun_call_counter = 0


def _host_call(fn, args):
    global _snippetrun_call_counter
    call_id = str(_snippetrun_call_counter)
    _snippetrun_call_counter += 1
    frame = _snippetrun_json.dumps({"id": call_id, "fn": fn, "args": args})
    sys.stderr.write("\x00SNIPRUN:" + frame + "\x00")
    sys.stderr.flush()
    buf = []
    while True:
        ch = sys.stdin.read(1)
        if ch == "":
            break
        if ch == "\x00":
            if not buf:
                continue
            break
        buf.append(ch)
    resp = _snippetrun_json.loads("".join(buf))
    if resp.get("error"):
        raise RuntimeError(resp["error"])
    return resp.get("result")
`
