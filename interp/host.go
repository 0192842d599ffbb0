// Package interp hosts one persistent WASM interpreter instance per
// session. It factors out the host/guest JSON-over-stdio protocol that
// the teacher split across its stateless protocolHandler and stateful
// sessionProtocol into a single implementation, since a Session always
// wants the stateful, long-lived variant: one wazero module instance
// kept alive across many run() calls, fed new code through its stdin
// and drained through its stdout/stderr.
package interp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"

	"github.com/snippetrun/snippetrun/hostfunc"
)

var hostCounter atomic.Int64

// call is one decoded \x00SNIPRUN:{...}\x00 payload sent by the guest.
type call struct {
	ID   string         `json:"id"`
	Name string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// signalEvent is a session-lifecycle marker (ready/done/error) forwarded
// from the stderr pump to whichever call is waiting on it.
type signalEvent struct {
	kind string
	err  string
}

// Host drives a single WASM module instance as a persistent interpreter.
// Globals staged with SetGlobal before the guest starts are written to
// its stdin as one JSON priming frame ahead of any evaluation.
type Host struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	registry *hostfunc.Registry

	// moduleName is assigned before InstantiateModule so the live guest
	// module stays queryable through runtime.Module(moduleName) for the
	// whole run, not just the brief window before _start blocks.
	moduleName string

	mu      sync.Mutex
	globals map[string]any

	stdinW *io.PipeWriter

	runErr  chan error
	signals chan signalEvent
	started bool

	memLimitPages uint32

	Stdout *streamSink
	Stderr *streamSink
}

// streamSink accumulates text meant for the session's CapturedStreams,
// separate from the protocol-framed bytes that never reach the user.
type streamSink struct {
	mu   sync.Mutex
	text []byte
}

func (s *streamSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.text = append(s.text, p...)
	s.mu.Unlock()
	return len(p), nil
}

func (s *streamSink) Drain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := string(s.text)
	s.text = s.text[:0]
	return out
}

// New builds a Host ready to Start. No WASM instantiation happens yet,
// so the memory limit can still be adjusted.
func New(runtime wazero.Runtime, compiled wazero.CompiledModule, registry *hostfunc.Registry) *Host {
	id := hostCounter.Add(1)
	return &Host{
		runtime:    runtime,
		compiled:   compiled,
		registry:   registry,
		moduleName: fmt.Sprintf("snippetrun-interp-%d", id),
		globals:    make(map[string]any),
		Stdout:     &streamSink{},
		Stderr:     &streamSink{},
	}
}

// SetGlobal stages a value for the priming frame Start writes to the
// guest. Must be called before Start.
func (h *Host) SetGlobal(name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("cannot set global %q after interpreter start", name)
	}
	h.globals[name] = value
	return nil
}

// GetGlobal returns a previously staged global.
func (h *Host) GetGlobal(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.globals[name]
	return v, ok
}

// SetMemoryLimitPages records a page ceiling for the guest. The value is
// not passed to wazero, whose memory ceiling comes from the runtime's
// RuntimeConfig (built by the Executor); it is only what MemoryUsage
// reports when the live module cannot be found. Calls after Start are
// ignored.
func (h *Host) SetMemoryLimitPages(pages uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		h.memLimitPages = pages
	}
}

// Start instantiates the guest module, wiring its stdio through an
// internal pipe pair so protocol messages can be intercepted before
// user-visible output is forwarded to Stdout/Stderr.
func (h *Host) Start(ctx context.Context, args []string, env map[string]string, cfg wazero.ModuleConfig) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("interpreter already started")
	}
	h.started = true
	h.mu.Unlock()

	stdinR, stdinW := io.Pipe()
	h.stdinW = stdinW

	stderrR, stderrW := io.Pipe()

	mc := cfg.WithName(h.moduleName).WithStdin(stdinR).WithStdout(h.Stdout).WithStderr(stderrW).WithArgs(args...)
	for k, v := range env {
		mc = mc.WithEnv(k, v)
	}

	h.runErr = make(chan error, 1)
	h.signals = make(chan signalEvent, 16)
	go func() {
		_, err := h.runtime.InstantiateModule(ctx, h.compiled, mc)
		stderrW.Close()
		h.runErr <- err
	}()

	go h.pumpStderr(ctx, stderrR)

	if err := h.seedGlobals(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-h.runErr:
		return err
	case sig := <-h.signals:
		if sig.kind == "error" {
			return fmt.Errorf("interpreter failed to start: %s", sig.err)
		}
		return nil
	}
}

// seedGlobals pushes every staged global to the guest by writing a
// priming frame it reads at startup before entering its run loop.
func (h *Host) seedGlobals(ctx context.Context) error {
	h.mu.Lock()
	payload, err := json.Marshal(h.globals)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal globals: %w", err)
	}
	_, err = fmt.Fprintf(h.stdinW, "%s\x00", payload)
	return err
}

// pumpStderr scans the guest's raw stderr for protocol markers,
// dispatching host calls and forwarding everything else to Stderr.
func (h *Host) pumpStderr(ctx context.Context, r io.Reader) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = []byte(h.drainMarkers(ctx, string(buf)))
		}
		if err != nil {
			if len(buf) > 0 {
				h.Stderr.Write(buf)
			}
			return
		}
	}
}

// drainMarkers repeatedly extracts complete framed messages from content,
// dispatching calls/flushes and checking session signals, until nothing
// complete remains. It returns the leftover (possibly partial) text,
// having already forwarded any plain output to Stderr.
func (h *Host) drainMarkers(ctx context.Context, content string) string {
	for {
		if signal, errText, rem := checkSessionSignals(content); signal != "" {
			content = rem
			select {
			case h.signals <- signalEvent{kind: signal, err: errText}:
			default:
			}
			continue
		}

		idx, kind := findNextMessage(content)
		if kind == messageNone {
			break
		}

		var prefix string
		switch kind {
		case messageCall:
			prefix = markerCall
		case messageFlush:
			prefix = markerFlush
		}

		if idx > 0 {
			h.Stderr.Write([]byte(content[:idx]))
		}

		payload, remaining, ok := extractMessage(content, idx, prefix)
		if !ok {
			return content
		}
		content = remaining

		switch kind {
		case messageCall:
			h.dispatchCall(ctx, payload)
		case messageFlush:
			h.dispatchFlush(ctx, payload)
		}
	}
	return content
}

func (h *Host) dispatchCall(ctx context.Context, payload string) {
	var c call
	resp := callResponse{}
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		resp.Error = fmt.Sprintf("malformed call frame: %v", err)
	} else {
		resp.ID = c.ID
		fn, ok := h.registry.Get(c.Name)
		if !ok {
			resp.Error = fmt.Sprintf("unknown host function: %s", c.Name)
		} else if result, err := fn(ctx, c.Args); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}
	}
	h.writeResponse(resp)
}

// dispatchFlush handles a batch of call frames, sent as one JSON array,
// queued by async guest callbacks (e.g. multiple timer fires landing in
// the same tick).
func (h *Host) dispatchFlush(ctx context.Context, payload string) {
	var calls []call
	if err := json.Unmarshal([]byte(payload), &calls); err != nil {
		return
	}
	for _, c := range calls {
		resp := callResponse{ID: c.ID}
		fn, ok := h.registry.Get(c.Name)
		if !ok {
			resp.Error = fmt.Sprintf("unknown host function: %s", c.Name)
		} else if result, err := fn(ctx, c.Args); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}
		h.writeResponse(resp)
	}
}

func (h *Host) writeResponse(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(h.stdinW, "%s\x00", data)
}

// EvaluateModule sends a complete snippet to the running interpreter as
// its next unit of work and blocks until the guest signals done or
// error, or ctx is canceled.
func (h *Host) EvaluateModule(ctx context.Context, name, code string) error {
	frame, err := json.Marshal(map[string]string{"module": name, "code": code})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(h.stdinW, "%s\x00", frame); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-h.runErr:
		// The guest exited entirely rather than looping for another
		// evaluation; an unrecoverable interpreter error takes this path.
		if err == nil {
			err = fmt.Errorf("interpreter exited before signaling done")
		}
		return err
	case sig := <-h.signals:
		if sig.kind == "error" {
			return fmt.Errorf("%s", sig.err)
		}
		return nil
	}
}

// DriveIdle gives any pending async host-call responses a chance to
// reach the guest before the caller harvests output, without blocking
// for new protocol traffic.
func (h *Host) DriveIdle(ctx context.Context) {
	// pumpStderr already drains eagerly as bytes arrive; DriveIdle exists
	// as an explicit synchronization point for callers (mirrors
	// spec.md's drive_idle operation) and is a no-op here since there is
	// no separate queue to flush.
}

// MemoryUsage samples the guest's actual linear memory size in bytes.
// InstantiateModule blocks for the whole guest lifetime, so the
// api.Module value it eventually returns is never usable for a live
// sample; runtime.Module looks the instance up by the name Start gave
// it, which the runtime registers before _start runs, so it resolves to
// the live module for as long as the guest is up. Falls back to the
// configured ceiling only if the module can't be found (not yet
// started, or already torn down), so a caller still gets a number
// rather than a zero.
func (h *Host) MemoryUsage() int64 {
	if mod := h.runtime.Module(h.moduleName); mod != nil {
		if mem := mod.Memory(); mem != nil {
			return int64(mem.Size())
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(h.memLimitPages) * wasmPageSize
}

const wasmPageSize = 65536

// Close tears down the guest module and stdio pipes.
func (h *Host) Close(ctx context.Context) error {
	if h.stdinW != nil {
		h.stdinW.Close()
	}
	select {
	case err := <-h.runErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

