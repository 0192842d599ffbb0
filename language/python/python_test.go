package python

import (
	"strings"
	"testing"
)

func TestModuleEmbedded(t *testing.T) {
	lang := New()
	wasm := lang.Module()
	if len(wasm) == 0 {
		t.Fatal("WASM bytes not embedded")
	}
	if len(wasm) < 1000000 {
		t.Errorf("WASM too small: %d bytes", len(wasm))
	}
}

func TestWiringScriptContents(t *testing.T) {
	if len(wiringScript) == 0 {
		t.Fatal("wiring script not composed")
	}
	checks := []string{
		"_host_call",
		"def kv_set",
		"fs_read_file",
		"def schedule(",
		"def call(",
	}
	for _, check := range checks {
		if !strings.Contains(wiringScript, check) {
			t.Errorf("wiring script missing %q", check)
		}
	}
}

func TestSessionInit(t *testing.T) {
	lang := New()
	init := lang.SessionInit()
	if !strings.Contains(init, "_snippetrun_session_loop") {
		t.Error("SessionInit missing the session read loop")
	}
	if !strings.Contains(init, "SNIPRUN_READY") {
		t.Error("SessionInit should signal readiness")
	}
}

func TestArgs(t *testing.T) {
	lang := New()
	args := lang.Args("test code")
	if len(args) == 0 {
		t.Error("Args should return non-empty slice")
	}
	if args[0] != "python" {
		t.Errorf("first arg should be 'python', got %q", args[0])
	}
}
