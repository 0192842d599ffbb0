package builtin

import (
	"strings"
	"testing"
)

func TestWireScriptJSIncludesConsoleAndGlobals(t *testing.T) {
	script, err := WireScriptJS(Globals{
		Stdin:         "hello\n",
		Args:          []string{"a", "b"},
		Env:           map[string]string{"K": "V"},
		Cwd:           "/",
		FileSizeLimit: 1024,
	})
	if err != nil {
		t.Fatalf("WireScriptJS: %v", err)
	}
	if !strings.Contains(script, "__exec_builtin/console") {
		t.Fatalf("expected console module in wiring script")
	}
	if !strings.Contains(script, `"K":"V"`) {
		t.Fatalf("expected env to be embedded in wiring script, got: %s", script)
	}
}

func TestWireScriptPythonIncludesFsModule(t *testing.T) {
	script, err := WireScriptPython(Globals{Cwd: "/", Args: nil, Env: nil})
	if err != nil {
		t.Fatalf("WireScriptPython: %v", err)
	}
	if !strings.Contains(script, `sys.modules["fs"]`) {
		t.Fatalf("expected fs module registration in wiring script")
	}
}

func TestModuleIdentifiersIncludesSpecNames(t *testing.T) {
	ids := ModuleIdentifiers()
	want := []string{"fs", "process", "buffer", "base64", "ieee754", "eventemitter", "readline"}
	for _, w := range want {
		found := false
		for _, id := range ids {
			if id == w {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("ModuleIdentifiers() missing %q: %v", w, ids)
		}
	}
}
