// Package capture buffers the text a running snippet writes through the
// console builtin, mirroring the teacher's sessionOutput but scoped to a
// single Session rather than a single process.
package capture

import (
	"strings"
	"sync"
)

// Streams holds the stdout/stderr text written since the last Reset.
// Safe for concurrent use, though a Session drives it from a single
// goroutine per the cooperative scheduling model.
type Streams struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
}

// New returns an empty Streams ready to receive writes.
func New() *Streams {
	return &Streams{}
}

// Println appends line to stdout, tagging nothing (the bare console.log /
// print path).
func (s *Streams) Println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdout.Len() > 0 {
		s.stdout.WriteByte('\n')
	}
	s.stdout.WriteString(line)
}

// Eprintln appends line to stderr untagged.
func (s *Streams) Eprintln(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stderr.Len() > 0 {
		s.stderr.WriteByte('\n')
	}
	s.stderr.WriteString(line)
}

// Tagged appends line to stdout prefixed with the level as an uppercase
// bracketed tag (e.g. "[WARN] "), the shape used by
// trace/debug/info/warn/error.
func (s *Streams) Tagged(level, line string) {
	s.Println("[" + strings.ToUpper(level) + "] " + line)
}

// Stdout returns everything written to stdout so far, newline-joined.
func (s *Streams) Stdout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.String()
}

// Stderr returns everything written to stderr so far, newline-joined.
func (s *Streams) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stderr.String()
}

// Harvest returns the accumulated stdout and stderr without resetting
// them. Session.Run calls Reset at the start of every run, so a harvest
// there reflects only that run's output.
func (s *Streams) Harvest() (stdout, stderr string) {
	return s.Stdout(), s.Stderr()
}

// Reset clears both buffers. Called between run calls so that each run's
// ExecResult only reflects output produced during that run.
func (s *Streams) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdout.Reset()
	s.stderr.Reset()
}
